// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package gojaengine

import (
	"fmt"

	jsbridge "github.com/buke/js-bridge"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// Option configures a Goja runtime.
type Option = jsbridge.RuntimeOption

// Runtime implements jsbridge.ScriptRuntime using the Goja JS engine.
// A goja.Runtime is not goroutine-safe; the bridge only touches it from its
// JS queue.
type Runtime struct {
	VM       *goja.Runtime     // The underlying Goja runtime.
	Option   *RuntimeOption    // Runtime configuration options.
	registry *require.Registry // Lazily created by WithRequire or WithEnableConsole.
}

// NewFactory returns a jsbridge.ExecutorFactory speaking the batched bridge
// protocol over a fresh Goja runtime per executor.
func NewFactory(opts ...Option) jsbridge.ExecutorFactory {
	return jsbridge.NewBatchedExecutorFactory(func() (jsbridge.ScriptRuntime, error) {
		return NewRuntime(opts...)
	}, jsbridge.WithExecutorName("goja"))
}

// NewRuntime creates a Goja runtime and applies opts.
func NewRuntime(opts ...Option) (*Runtime, error) {
	r := &Runtime{
		VM:     goja.New(),
		Option: &RuntimeOption{},
	}

	// Default mapper, may be overridden by opts.
	WithFieldNameMapper(goja.TagFieldNameMapper("json", true))(r)

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return r, nil
}

// Eval implements jsbridge.ScriptRuntime.
func (r *Runtime) Eval(code, fileName string) (string, error) {
	if r.VM == nil {
		return "", fmt.Errorf("goja runtime is closed")
	}
	v, err := r.VM.RunScript(fileName, code)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "undefined", nil
	}
	return v.String(), nil
}

// SetHook implements jsbridge.ScriptRuntime. Errors returned by fn are
// thrown into script as GoError objects.
func (r *Runtime) SetHook(name string, fn jsbridge.HostFunc) error {
	vm := r.VM
	return vm.Set(name, func(call goja.FunctionCall) goja.Value {
		args := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.String()
		}
		res, err := fn(args)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		if res == "" {
			return goja.Undefined()
		}
		return vm.ToValue(res)
	})
}

// Context returns the underlying *goja.Runtime.
func (r *Runtime) Context() any {
	return r.VM
}

// Close implements jsbridge.ScriptRuntime.
func (r *Runtime) Close() error {
	if r.VM != nil {
		r.VM.Interrupt("runtime closed")
		r.VM = nil
	}
	return nil
}

func (r *Runtime) requireRegistry() *require.Registry {
	if r.registry == nil {
		r.registry = new(require.Registry)
		r.registry.Enable(r.VM)
	}
	return r.registry
}
