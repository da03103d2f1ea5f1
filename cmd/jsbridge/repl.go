// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	jsbridge "github.com/buke/js-bridge"
	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
)

// Styles
var (
	primaryColor = lipgloss.Color("#7C3AED")
	errorColor   = lipgloss.Color("#EF4444")
	warningColor = lipgloss.Color("#F59E0B")
	infoColor    = lipgloss.Color("#3B82F6")
	dimColor     = lipgloss.Color("#6B7280")
	stringColor  = lipgloss.Color("#10B981")

	promptStyle   = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	errorMsgStyle = lipgloss.NewStyle().Foreground(errorColor)
	warnStyle     = lipgloss.NewStyle().Foreground(warningColor)
	infoStyle     = lipgloss.NewStyle().Foreground(infoColor)
	dimStyle      = lipgloss.NewStyle().Foreground(dimColor)
	cmdStyle      = lipgloss.NewStyle().Foreground(warningColor)
	stringStyle   = lipgloss.NewStyle().Foreground(stringColor)
	numberStyle   = lipgloss.NewStyle().Foreground(infoColor)
	boolStyle     = lipgloss.NewStyle().Foreground(warningColor)
	nullStyle     = lipgloss.NewStyle().Foreground(dimColor)
)

type commandKind int

const (
	cmdCall commandKind = iota
	cmdCallback
	cmdGlobal
	cmdPressure
	cmdMemory
	cmdHelp
	cmdQuit
)

// command is one parsed REPL line.
type command struct {
	kind       commandKind
	module     string
	method     string
	callbackID uint64
	name       string
	args       []any
	jsonValue  []byte
	level      int
}

var errEmptyCommand = errors.New("empty command")

// parseCommand parses a REPL line:
//
//	call Module.method [json array]
//	callback id [json array]
//	global name json
//	pressure level
//	memory | help | quit
func parseCommand(line string) (*command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, errEmptyCommand
	}
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "call":
		target, argsJSON, _ := strings.Cut(rest, " ")
		module, method, ok := strings.Cut(target, ".")
		if !ok || module == "" || method == "" {
			return nil, fmt.Errorf("usage: call Module.method [json array]")
		}
		args, err := parseArgs(argsJSON)
		if err != nil {
			return nil, err
		}
		return &command{kind: cmdCall, module: module, method: method, args: args}, nil
	case "callback":
		idText, argsJSON, _ := strings.Cut(rest, " ")
		id, err := strconv.ParseUint(idText, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("usage: callback id [json array]")
		}
		args, err := parseArgs(argsJSON)
		if err != nil {
			return nil, err
		}
		return &command{kind: cmdCallback, callbackID: id, args: args}, nil
	case "global":
		name, value, _ := strings.Cut(rest, " ")
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			return nil, fmt.Errorf("usage: global name json")
		}
		if !json.Valid([]byte(value)) {
			return nil, fmt.Errorf("global %s: invalid JSON value", name)
		}
		return &command{kind: cmdGlobal, name: name, jsonValue: []byte(value)}, nil
	case "pressure":
		level, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("usage: pressure level")
		}
		return &command{kind: cmdPressure, level: level}, nil
	case "memory":
		return &command{kind: cmdMemory}, nil
	case "help", "?":
		return &command{kind: cmdHelp}, nil
	case "quit", "exit":
		return &command{kind: cmdQuit}, nil
	}
	return nil, fmt.Errorf("unknown command %q, try help", verb)
}

// parseArgs decodes an optional JSON array of call arguments.
func parseArgs(s string) ([]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []any{}, nil
	}
	var args []any
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON array: %w", err)
	}
	return args, nil
}

// formatValue renders a dynamic value as colored JSON.
func formatValue(v any) string {
	text := jsonText(v)
	switch jsbridge.KindOf(v) {
	case jsbridge.KindNull:
		return nullStyle.Render(text)
	case jsbridge.KindBool:
		return boolStyle.Render(text)
	case jsbridge.KindNumber:
		return numberStyle.Render(text)
	case jsbridge.KindString:
		return stringStyle.Render(text)
	}
	return text
}

func jsonText(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func printHelp(w io.Writer) {
	cmds := []struct{ cmd, desc string }{
		{"call Module.method [args]", "Call a registered script module"},
		{"callback id [args]", "Invoke a script callback"},
		{"global name json", "Set a global variable"},
		{"pressure level", "Send a memory pressure event"},
		{"memory", "Show peak engine memory"},
		{"help", "Show this help"},
		{"quit", "Exit"},
	}
	for _, c := range cmds {
		fmt.Fprintf(w, "  %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-26s", c.cmd)), dimStyle.Render(c.desc))
	}
}

func newReadline() (*readline.Instance, error) {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".jsbridge_history")
	}

	completer := readline.NewPrefixCompleter(
		readline.PcItem("call"),
		readline.PcItem("callback"),
		readline.PcItem("global"),
		readline.PcItem("pressure"),
		readline.PcItem("memory"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
	return readline.NewEx(&readline.Config{
		Prompt:            promptStyle.Render("jsbridge") + dimStyle.Render(" > "),
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		AutoComplete:      completer,
		InterruptPrompt:   "^C",
		EOFPrompt:         "quit",
		HistorySearchFold: true,
	})
}

// runREPL reads commands until quit or EOF.
func runREPL(rl *readline.Instance, h *host) {
	out := rl.Stdout()
	fmt.Fprintln(out, dimStyle.Render("Engine "+h.engine+". Type ")+
		cmdStyle.Render("help")+dimStyle.Render(" for commands."))
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			continue
		}

		cmd, err := parseCommand(line)
		if errors.Is(err, errEmptyCommand) {
			continue
		}
		if err != nil {
			printError(out, err)
			continue
		}
		if cmd.kind == cmdQuit {
			break
		}
		if err := h.execute(cmd); err != nil {
			printError(out, err)
		}
	}
	fmt.Fprintln(out, dimStyle.Render("Goodbye!"))
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("Error:")+" "+errorMsgStyle.Render(err.Error()))
}
