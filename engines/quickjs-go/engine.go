// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package quickjsengine

import (
	"fmt"

	jsbridge "github.com/buke/js-bridge"
	"github.com/buke/quickjs-go"
)

// Option configures a QuickJS runtime.
type Option = jsbridge.RuntimeOption

// Runtime implements jsbridge.ScriptRuntime with QuickJS. A QuickJS runtime
// is bound to the OS thread that created it, so it must only be used from
// the bridge's JS queue.
type Runtime struct {
	Runtime *quickjs.Runtime // QuickJS runtime instance
	Ctx     *quickjs.Context // QuickJS context instance
	Option  *RuntimeOption   // Runtime configuration options
}

// NewFactory returns a jsbridge.ExecutorFactory speaking the batched bridge
// protocol over a fresh QuickJS runtime per executor.
func NewFactory(options ...Option) jsbridge.ExecutorFactory {
	return jsbridge.NewBatchedExecutorFactory(func() (jsbridge.ScriptRuntime, error) {
		return NewRuntime(options...)
	}, jsbridge.WithExecutorName("quickjs"))
}

// NewRuntime creates a QuickJS runtime and context and applies options.
func NewRuntime(options ...Option) (*Runtime, error) {
	rt := quickjs.NewRuntime()
	ctx := rt.NewContext()

	r := &Runtime{
		Runtime: rt,
		Ctx:     ctx,
		Option: &RuntimeOption{
			MemoryLimit:        0,     // Default memory limit (no limit)
			GCThreshold:        -1,    // Default GC threshold. -1 means no threshold
			Timeout:            0,     // Default timeout (no timeout)
			MaxStackSize:       0,     // Default max stack size
			CanBlock:           false, // Blocking not allowed by default
			EnableModuleImport: false, // Module import disabled by default
			Strip:              1,     // Default strip behavior
		},
	}

	for _, option := range options {
		if err := option(r); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

// Eval implements jsbridge.ScriptRuntime. Pending promise jobs run after the
// script, so continuations that call native modules flush immediately.
func (r *Runtime) Eval(code, fileName string) (string, error) {
	if r.Ctx == nil {
		return "", fmt.Errorf("quickjs runtime is closed")
	}
	val := r.Ctx.Eval(code, quickjs.EvalFileName(fileName))
	defer val.Free()
	if val.IsException() {
		return "", r.Ctx.Exception()
	}
	result := val.String()
	r.Ctx.Loop()
	return result, nil
}

// SetHook implements jsbridge.ScriptRuntime by binding fn as a global
// function. Arguments are passed as strings; an error is thrown into script.
func (r *Runtime) SetHook(name string, fn jsbridge.HostFunc) error {
	if r.Ctx == nil {
		return fmt.Errorf("quickjs runtime is closed")
	}
	hook := r.Ctx.Function(func(ctx *quickjs.Context, this *quickjs.Value, args []*quickjs.Value) *quickjs.Value {
		strArgs := make([]string, len(args))
		for i, arg := range args {
			strArgs[i] = arg.String()
		}
		result, err := fn(strArgs)
		if err != nil {
			return ctx.ThrowError(err)
		}
		if result == "" {
			return ctx.Undefined()
		}
		return ctx.String(result)
	})
	r.Ctx.Globals().Set(name, hook)
	return nil
}

// HandleMemoryPressure runs the garbage collector.
func (r *Runtime) HandleMemoryPressure(level int) {
	if r.Runtime != nil {
		r.Runtime.RunGC()
	}
}

// Context returns the underlying *quickjs.Context.
func (r *Runtime) Context() any {
	return r.Ctx
}

// Close releases the context and runtime.
func (r *Runtime) Close() error {
	if r.Ctx != nil {
		r.Ctx.Close()
		r.Ctx = nil
	}
	if r.Runtime != nil {
		r.Runtime.Close()
		r.Runtime = nil
	}
	return nil
}
