// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package quickjsengine

import (
	"fmt"

	jsbridge "github.com/buke/js-bridge"
)

// RuntimeOption is the QuickJS section of a bridge config file. The yaml and
// json keys are what cmd/jsbridge reads under "quickjs". A zero field keeps
// the runtime default.
type RuntimeOption struct {
	Timeout            uint64 `json:"timeout" yaml:"timeout"`                       // seconds per Eval
	MemoryLimit        uint64 `json:"memoryLimit" yaml:"memoryLimit"`               // bytes
	GCThreshold        int64  `json:"gcThreshold" yaml:"gcThreshold"`               // bytes, -1 disables automatic GC
	MaxStackSize       uint64 `json:"maxStackSize" yaml:"maxStackSize"`             // bytes
	CanBlock           bool   `json:"canBlock" yaml:"canBlock"`                     // allow Atomics.wait
	EnableModuleImport bool   `json:"enableModuleImport" yaml:"enableModuleImport"` // allow import in bundles
	Strip              int    `json:"strip" yaml:"strip"`                           // 0 to 2
}

// configure wraps set as an Option that only accepts a QuickJS *Runtime.
func configure(name string, set func(r *Runtime) error) Option {
	return func(rt jsbridge.ScriptRuntime) error {
		r, ok := rt.(*Runtime)
		if !ok {
			return fmt.Errorf("invalid runtime type for %s: %T", name, rt)
		}
		return set(r)
	}
}

// WithGCThreshold sets the allocation threshold that triggers a collection.
// -1 turns automatic collection off; the bridge still collects on memory
// pressure.
func WithGCThreshold(threshold int64) Option {
	return configure("WithGCThreshold", func(r *Runtime) error {
		if threshold < -1 {
			return fmt.Errorf("invalid GC threshold: %d", threshold)
		}
		r.Option.GCThreshold = threshold
		r.Runtime.SetGCThreshold(threshold)
		return nil
	})
}

// WithMemoryLimit caps the heap. Zero removes the cap.
func WithMemoryLimit(limit uint64) Option {
	return configure("WithMemoryLimit", func(r *Runtime) error {
		r.Option.MemoryLimit = limit
		r.Runtime.SetMemoryLimit(limit)
		return nil
	})
}

// WithTimeout interrupts any single Eval, and so any batch, running longer
// than timeout seconds.
func WithTimeout(timeout uint64) Option {
	return configure("WithTimeout", func(r *Runtime) error {
		r.Option.Timeout = timeout
		r.Runtime.SetExecuteTimeout(timeout)
		return nil
	})
}

func WithMaxStackSize(size uint64) Option {
	return configure("WithMaxStackSize", func(r *Runtime) error {
		r.Option.MaxStackSize = size
		r.Runtime.SetMaxStackSize(size)
		return nil
	})
}

// WithCanBlock lets script block the executor queue with Atomics.wait.
func WithCanBlock(canBlock bool) Option {
	return configure("WithCanBlock", func(r *Runtime) error {
		r.Option.CanBlock = canBlock
		r.Runtime.SetCanBlock(canBlock)
		return nil
	})
}

func WithEnableModuleImport(enable bool) Option {
	return configure("WithEnableModuleImport", func(r *Runtime) error {
		r.Option.EnableModuleImport = enable
		r.Runtime.SetModuleImport(enable)
		return nil
	})
}

// WithStrip drops debug info from compiled bundles: 1 strips source,
// 2 strips all debug info.
func WithStrip(strip int) Option {
	return configure("WithStrip", func(r *Runtime) error {
		if strip < 0 || strip > 2 {
			return fmt.Errorf("invalid strip level: %d", strip)
		}
		r.Option.Strip = strip
		r.Runtime.SetStripInfo(strip)
		return nil
	})
}

// WithOptions applies a decoded config section. Only non-zero fields are
// applied, so a partial section leaves the rest at their defaults.
func WithOptions(opt RuntimeOption) Option {
	return func(rt jsbridge.ScriptRuntime) error {
		var options []Option
		if opt.Timeout > 0 {
			options = append(options, WithTimeout(opt.Timeout))
		}
		if opt.MemoryLimit > 0 {
			options = append(options, WithMemoryLimit(opt.MemoryLimit))
		}
		if opt.GCThreshold != 0 {
			options = append(options, WithGCThreshold(opt.GCThreshold))
		}
		if opt.MaxStackSize > 0 {
			options = append(options, WithMaxStackSize(opt.MaxStackSize))
		}
		if opt.CanBlock {
			options = append(options, WithCanBlock(true))
		}
		if opt.EnableModuleImport {
			options = append(options, WithEnableModuleImport(true))
		}
		if opt.Strip != 0 {
			options = append(options, WithStrip(opt.Strip))
		}
		for _, o := range options {
			if err := o(rt); err != nil {
				return err
			}
		}
		return nil
	}
}
