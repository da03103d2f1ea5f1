//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package v8engine

import (
	"fmt"

	jsbridge "github.com/buke/js-bridge"
)

// RuntimeOption records how a V8 runtime was built.
type RuntimeOption struct {
	// Inspectable is reported by Bridge.IsInspectable. Attaching an
	// inspector is up to the host.
	Inspectable bool
}

// WithInspectable sets what the bridge reports for IsInspectable. It is
// read once, when the bridge is created.
func WithInspectable(inspectable bool) Option {
	return func(rt jsbridge.ScriptRuntime) error {
		r, ok := rt.(*Runtime)
		if !ok {
			return fmt.Errorf("invalid runtime type for WithInspectable")
		}
		r.Option.Inspectable = inspectable
		return nil
	}
}
