// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

import "errors"

var (
	// ErrBadApplicationBundle is returned for every call into script after the
	// application script failed to evaluate.
	ErrBadApplicationBundle = errors.New("bad application bundle")

	// ErrQueueStopped is returned when work is submitted synchronously to a queue that has quit.
	ErrQueueStopped = errors.New("message queue stopped")

	// ErrInvalidBatch is returned when a flushed queue from script cannot be decoded.
	ErrInvalidBatch = errors.New("did not get valid calls back from JS")

	ErrUnknownModule = errors.New("unknown native module")
	ErrUnknownMethod = errors.New("unknown native method")

	// ErrHookUnsupported is returned by a ScriptRuntime that cannot expose host functions.
	ErrHookUnsupported = errors.New("host functions not supported by runtime")

	ErrNoBundleRegistry = errors.New("no bundle registry installed")

	// ErrNotInitialized is returned by Instance methods that need a bridge
	// when InitializeBridge has not succeeded.
	ErrNotInitialized = errors.New("bridge not initialized")
)
