//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	jsbridge "github.com/buke/js-bridge"
	v8engine "github.com/buke/js-bridge/engines/v8go"
)

func newV8Factory(cfg V8Config) (jsbridge.ExecutorFactory, error) {
	return v8engine.NewFactory(v8engine.WithInspectable(cfg.Inspectable)), nil
}
