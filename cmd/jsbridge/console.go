// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	jsbridge "github.com/buke/js-bridge"
	"github.com/charmbracelet/lipgloss"
)

var consoleStyles = map[string]lipgloss.Style{
	"log":   lipgloss.NewStyle(),
	"info":  infoStyle,
	"warn":  warnStyle,
	"error": errorMsgStyle,
}

// newConsoleModule returns the Console native module. Scripts reach it as
// NativeModules.Console; every method writes its arguments as one line.
func newConsoleModule(w io.Writer) *jsbridge.FuncModule {
	var mu sync.Mutex
	m := jsbridge.NewFuncModule("Console")
	for _, level := range []string{"log", "info", "warn", "error"} {
		style := consoleStyles[level]
		m.Method(level, func(args []any) error {
			line := formatArgs(args)
			mu.Lock()
			defer mu.Unlock()
			_, err := fmt.Fprintln(w, style.Render(line))
			return err
		})
	}
	return m
}

// formatArgs joins arguments the way console.log does: strings verbatim,
// everything else as JSON.
func formatArgs(args []any) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		if s, ok := arg.(string); ok {
			parts[i] = s
			continue
		}
		parts[i] = jsonText(arg)
	}
	return strings.Join(parts, " ")
}
