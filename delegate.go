// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

import (
	"fmt"
	"sync/atomic"
)

// JsToNativeBridge is the default ExecutorDelegate. It dispatches the native
// calls flushed by script to the module registry and reports batch
// completion to the instance callback.
//
// CallNativeModules and CallSerializableNativeHook are invoked by the
// executor on its queue; the executor is destroyed on that queue, so the
// delegate never outlives its use.
type JsToNativeBridge struct {
	registry ModuleRegistry
	callback InstanceCallback

	batchHadNativeModuleCalls atomic.Bool
}

// NewJsToNativeBridge creates a delegate. registry may be nil when script is
// not expected to call native modules.
func NewJsToNativeBridge(registry ModuleRegistry, callback InstanceCallback) *JsToNativeBridge {
	return &JsToNativeBridge{registry: registry, callback: callback}
}

// ModuleRegistry implements ExecutorDelegate.
func (b *JsToNativeBridge) ModuleRegistry() ModuleRegistry {
	return b.registry
}

// IsBatchActive implements ExecutorDelegate.
func (b *JsToNativeBridge) IsBatchActive() bool {
	return b.batchHadNativeModuleCalls.Load()
}

// CallNativeModules implements ExecutorDelegate. Calls are dispatched in
// order; the first failing call stops the rest of the batch and its error is
// returned. Calls already dispatched are not undone.
func (b *JsToNativeBridge) CallNativeModules(_ JSExecutor, calls any, isEndOfBatch bool) error {
	methodCalls, err := ParseMethodCalls(calls)
	if err != nil {
		return err
	}

	if b.registry == nil && len(methodCalls) > 0 {
		panic("jsbridge: native module calls cannot be completed with no native modules")
	}

	if len(methodCalls) > 0 {
		b.batchHadNativeModuleCalls.Store(true)
	}

	for _, call := range methodCalls {
		if err := b.registry.CallNativeMethod(call.ModuleID, call.MethodID, call.Arguments, call.CallID); err != nil {
			return fmt.Errorf("native call %d.%d failed: %w", call.ModuleID, call.MethodID, err)
		}
	}

	if isEndOfBatch {
		// OnBatchComplete may hop to another queue while the decrement below
		// is synchronous, so native calls can still be running when the
		// pending count reaches zero.
		if b.batchHadNativeModuleCalls.Swap(false) && b.callback != nil {
			b.callback.OnBatchComplete()
		}
		if b.callback != nil {
			b.callback.DecrementPendingJSCalls()
		}
	}
	return nil
}

// CallSerializableNativeHook implements ExecutorDelegate.
func (b *JsToNativeBridge) CallSerializableNativeHook(_ JSExecutor, moduleID, methodID uint32, args []any) (MethodCallResult, error) {
	if b.registry == nil {
		return MethodCallResult{}, fmt.Errorf("%w: module id %d", ErrUnknownModule, moduleID)
	}
	return b.registry.CallSerializableNativeHook(moduleID, methodID, args)
}
