// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	jsbridge "github.com/buke/js-bridge"
)

func newV8Factory(V8Config) (jsbridge.ExecutorFactory, error) {
	return nil, fmt.Errorf("engine %q is not available on windows", EngineV8)
}
