// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	jsbridge "github.com/buke/js-bridge"
)

// host owns an Instance built from a Config and executes commands on it.
type host struct {
	engine   string
	instance *jsbridge.Instance
	queue    *jsbridge.ThreadQueue
	tracker  *jsbridge.PendingCallTracker
	out      io.Writer
	timeout  time.Duration
}

// startHost creates the instance, applies globals and bundles, and loads the
// configured script. Console output and asynchronous errors go to out.
func startHost(cfg *Config, out io.Writer, logger *slog.Logger, timeout time.Duration) (*host, error) {
	factory, err := cfg.Factory()
	if err != nil {
		return nil, err
	}
	registry, err := jsbridge.NewNativeModuleRegistry(newConsoleModule(out))
	if err != nil {
		return nil, err
	}

	h := &host{
		engine:   cfg.Engine,
		instance: jsbridge.NewInstance(jsbridge.WithInstanceLogger(logger)),
		tracker:  jsbridge.NewPendingCallTracker(),
		out:      out,
		timeout:  timeout,
	}
	h.queue = jsbridge.NewThreadQueue(
		jsbridge.WithQueueName("js"),
		jsbridge.WithQueueLogger(logger),
		jsbridge.WithErrorHandler(h.asyncError),
	)
	if err := h.instance.InitializeBridge(h.tracker, nil, factory, h.queue, registry); err != nil {
		h.queue.QuitSynchronous()
		return nil, err
	}

	names, values, err := cfg.GlobalsJSON()
	if err != nil {
		h.Close()
		return nil, err
	}
	for i, name := range names {
		h.instance.SetGlobalVariable(name, values[i])
	}
	for _, b := range cfg.Bundles {
		h.instance.RegisterBundle(b.ID, cfg.Resolve(b.Path))
	}

	if cfg.Script != "" {
		path := cfg.Resolve(cfg.Script)
		script, err := os.ReadFile(path)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("failed to read script: %w", err)
		}
		if err := h.instance.LoadApplicationSync(nil, script, 1, path, ""); err != nil {
			h.Close()
			return nil, err
		}
	}
	return h, nil
}

// asyncError reports a failed queue task. A failed call never reaches the
// end of its batch, so its pending count is released here. Other tasks hold
// no pending count.
func (h *host) asyncError(err error) {
	printError(h.out, err)
	var callErr *jsbridge.CallError
	if errors.As(err, &callErr) {
		h.tracker.DecrementPendingJSCalls()
	}
}

// execute runs cmd and waits for the script to go idle.
func (h *host) execute(cmd *command) error {
	switch cmd.kind {
	case cmdCall:
		h.instance.CallJSFunction(cmd.module, cmd.method, cmd.args)
	case cmdCallback:
		h.instance.CallJSCallback(cmd.callbackID, cmd.args)
	case cmdGlobal:
		h.instance.SetGlobalVariable(cmd.name, cmd.jsonValue)
	case cmdPressure:
		h.instance.HandleMemoryPressure(cmd.level)
	case cmdMemory:
		peak := h.instance.GetPeakJsMemoryUsage()
		if peak < 0 {
			fmt.Fprintln(h.out, dimStyle.Render("peak memory unknown for "+h.engine))
		} else {
			fmt.Fprintln(h.out, "peak memory "+formatValue(float64(peak))+" bytes")
		}
		return nil
	case cmdHelp:
		printHelp(h.out)
		return nil
	case cmdQuit:
		return nil
	default:
		return fmt.Errorf("unknown command kind %d", cmd.kind)
	}
	return h.wait()
}

// wait blocks until every queued task has run and no call is pending.
func (h *host) wait() error {
	if err := h.queue.RunOnQueueSync(func() error { return nil }); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.tracker.WaitIdle(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%d calls still pending after %s", h.tracker.Pending(), h.timeout)
		}
		return err
	}
	return nil
}

// Close destroys the instance.
func (h *host) Close() error {
	return h.instance.Destroy()
}
