// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Command jsbridge loads a script into a bridged JavaScript engine and calls
// into it, once from the command line or interactively.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chzyer/readline"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("jsbridge", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "bridge.yaml", "path to the bridge config")
	call := flags.String("call", "", "call Module.method after loading the script")
	callArgs := flags.String("args", "[]", "JSON array of arguments for -call")
	repl := flags.Bool("repl", false, "start an interactive REPL")
	timeout := flags.Duration("timeout", 10*time.Second, "how long to wait for script to go idle")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		printError(stderr, err)
		return 1
	}

	// Script output shares the terminal with the prompt in REPL mode
	out := stdout
	var rl *readline.Instance
	if *repl {
		rl, err = newReadline()
		if err != nil {
			printError(stderr, fmt.Errorf("failed to initialize readline: %w", err))
			return 1
		}
		defer rl.Close()
		out = rl.Stdout()
	}

	h, err := startHost(cfg, out, cfg.Logger(stderr), *timeout)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	defer h.Close()

	if *call != "" {
		cmd, err := parseCommand("call " + *call + " " + *callArgs)
		if err != nil {
			printError(stderr, err)
			return 2
		}
		if err := h.execute(cmd); err != nil {
			printError(stderr, err)
			return 1
		}
	}

	if rl != nil {
		runREPL(rl, h)
	}
	return 0
}
