// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package gojaengine

import (
	"fmt"

	jsbridge "github.com/buke/js-bridge"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
)

// RuntimeOption records what the options applied to a Runtime. It is a
// record, not an input: build a runtime with the With functions.
type RuntimeOption struct {
	MaxCallStackSize int
	EnableConsole    bool
	EnableRequire    bool
	FieldNameMapper  goja.FieldNameMapper
}

func asRuntime(rt jsbridge.ScriptRuntime) (*Runtime, error) {
	r, ok := rt.(*Runtime)
	if !ok {
		return nil, fmt.Errorf("goja option applied to %T", rt)
	}
	return r, nil
}

// WithMaxCallStackSize bounds script recursion. Overflow fails the current
// batch. Zero or less removes the bound.
func WithMaxCallStackSize(size int) Option {
	return func(rt jsbridge.ScriptRuntime) error {
		r, err := asRuntime(rt)
		if err != nil {
			return err
		}
		r.Option.MaxCallStackSize = size
		r.VM.SetMaxCallStackSize(size)
		return nil
	}
}

// WithEnableConsole installs the goja_nodejs console and its printer. Leave
// it off to have console forward to nativeLoggingHook and so to the bridge
// logger.
func WithEnableConsole() Option {
	return func(rt jsbridge.ScriptRuntime) error {
		r, err := asRuntime(rt)
		if err != nil {
			return err
		}
		r.Option.EnableConsole = true
		r.requireRegistry()
		console.Enable(r.VM)
		return nil
	}
}

// WithRequire exposes require() for CommonJS modules on disk. Bundle segments
// registered with the bridge are loaded through nativeRequire instead.
func WithRequire() Option {
	return func(rt jsbridge.ScriptRuntime) error {
		r, err := asRuntime(rt)
		if err != nil {
			return err
		}
		r.Option.EnableRequire = true
		r.requireRegistry()
		return nil
	}
}

// WithFieldNameMapper controls how Go struct fields look in script. It only
// matters for values exported with VM.ToValue; bridge arguments cross as
// JSON. A nil mapper is ignored.
func WithFieldNameMapper(mapper goja.FieldNameMapper) Option {
	return func(rt jsbridge.ScriptRuntime) error {
		r, err := asRuntime(rt)
		if err != nil {
			return err
		}
		if mapper != nil {
			r.Option.FieldNameMapper = mapper
			r.VM.SetFieldNameMapper(mapper)
		}
		return nil
	}
}
