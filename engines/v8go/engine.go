//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package v8engine

import (
	"fmt"

	jsbridge "github.com/buke/js-bridge"
	"github.com/tommie/v8go"
)

var (
	// Make these functions variables so they can be mocked in tests.
	v8NewIsolate = v8go.NewIsolate
	v8NewContext = v8go.NewContext
	v8NewValue   = v8go.NewValue
)

// Option configures a V8 runtime.
type Option = jsbridge.RuntimeOption

// Runtime implements jsbridge.ScriptRuntime using the V8 engine.
// It encapsulates a V8 Isolate and Context.
type Runtime struct {
	// Iso is the V8 Isolate, representing a single-threaded VM instance.
	// It is exposed publicly to allow for advanced custom options.
	Iso *v8go.Isolate

	// Ctx is the V8 Context, representing the execution environment.
	// It is exposed publicly to allow for advanced custom options.
	Ctx *v8go.Context

	// Option holds the runtime-specific configurations.
	Option *RuntimeOption
}

// NewFactory creates a jsbridge.ExecutorFactory speaking the batched bridge
// protocol over a fresh V8 isolate per executor.
func NewFactory(opts ...Option) jsbridge.ExecutorFactory {
	return jsbridge.NewBatchedExecutorFactory(func() (jsbridge.ScriptRuntime, error) {
		return NewRuntime(opts...)
	}, jsbridge.WithExecutorName("v8"))
}

// NewRuntime creates and initializes a new V8 runtime.
func NewRuntime(opts ...Option) (*Runtime, error) {
	r := &Runtime{
		Option: &RuntimeOption{},
	}

	// Apply user-provided options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	// Create a new V8 Isolate
	iso := v8NewIsolate()
	if iso == nil {
		return nil, fmt.Errorf("failed to create v8 isolate")
	}
	r.Iso = iso

	// Create a new V8 Context
	ctx := v8NewContext(iso)
	if ctx == nil {
		iso.Dispose() // Clean up isolate if context creation fails
		r.Iso = nil
		return nil, fmt.Errorf("failed to create v8 context")
	}
	r.Ctx = ctx

	return r, nil
}

// Eval implements jsbridge.ScriptRuntime.
func (r *Runtime) Eval(code, fileName string) (string, error) {
	if r.Ctx == nil {
		return "", fmt.Errorf("v8 runtime is closed")
	}
	val, err := r.Ctx.RunScript(code, fileName)
	if err != nil {
		return "", err
	}
	if val == nil {
		return "undefined", nil
	}
	return val.String(), nil
}

// SetHook implements jsbridge.ScriptRuntime. Errors returned by fn are
// thrown into script as strings.
func (r *Runtime) SetHook(name string, fn jsbridge.HostFunc) error {
	iso := r.Iso
	tmpl := v8go.NewFunctionTemplate(iso, func(info *v8go.FunctionCallbackInfo) *v8go.Value {
		args := make([]string, len(info.Args()))
		for i, arg := range info.Args() {
			args[i] = arg.String()
		}
		res, err := fn(args)
		if err != nil {
			msg, _ := v8NewValue(iso, err.Error())
			return iso.ThrowException(msg)
		}
		if res == "" {
			return nil
		}
		val, err := v8NewValue(iso, res)
		if err != nil {
			msg, _ := v8NewValue(iso, err.Error())
			return iso.ThrowException(msg)
		}
		return val
	})
	if err := r.Ctx.Global().Set(name, tmpl.GetFunction(r.Ctx)); err != nil {
		return fmt.Errorf("failed to set %s: %w", name, err)
	}
	return nil
}

// PeakMemoryUsage returns the isolate's peak malloced memory in bytes.
func (r *Runtime) PeakMemoryUsage() int64 {
	if r.Iso == nil {
		return -1
	}
	return int64(r.Iso.GetHeapStatistics().PeakMallocedMemory)
}

// Context returns the underlying *v8go.Context.
func (r *Runtime) Context() any {
	return r.Ctx
}

// IsInspectable reports whether the isolate accepts an inspector.
func (r *Runtime) IsInspectable() bool {
	return r.Option.Inspectable
}

// Close releases all resources associated with the V8 runtime.
func (r *Runtime) Close() error {
	if r.Ctx != nil {
		r.Ctx.Close()
		r.Ctx = nil
	}
	if r.Iso != nil {
		r.Iso.Dispose()
		r.Iso = nil
	}
	return nil
}
