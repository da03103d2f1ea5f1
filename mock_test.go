// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

import (
	"sync"
)

// mockExecutor records every call it receives. Hooks override behavior.
type mockExecutor struct {
	mu    sync.Mutex
	calls []string

	LoadFunc     func(script []byte, sourceURL string) error
	CallFunc     func(module, method string, args []any) error
	CallbackFunc func(callbackID float64, args []any) error
	DestroyFunc  func() error
	inspectable  bool
	peakMemory   int64
	registry     BundleRegistry
}

func (m *mockExecutor) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockExecutor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockExecutor) LoadApplicationScript(script []byte, scriptVersion uint64, sourceURL string, bytecodeFileName string) error {
	m.record("load:" + sourceURL)
	if m.LoadFunc != nil {
		return m.LoadFunc(script, sourceURL)
	}
	return nil
}

func (m *mockExecutor) SetBundleRegistry(registry BundleRegistry) error {
	m.record("bundleRegistry")
	m.registry = registry
	return nil
}

func (m *mockExecutor) RegisterBundle(bundleID uint32, bundlePath string) error {
	m.record("registerBundle:" + bundlePath)
	return nil
}

func (m *mockExecutor) CallFunction(module, method string, args []any) error {
	m.record("call:" + module + "." + method)
	if m.CallFunc != nil {
		return m.CallFunc(module, method, args)
	}
	return nil
}

func (m *mockExecutor) InvokeCallback(callbackID float64, args []any) error {
	m.record("callback")
	if m.CallbackFunc != nil {
		return m.CallbackFunc(callbackID, args)
	}
	return nil
}

func (m *mockExecutor) SetGlobalVariable(name string, jsonValue []byte) error {
	m.record("global:" + name + "=" + string(jsonValue))
	return nil
}

func (m *mockExecutor) GetJavaScriptContext() any { return "mock-context" }
func (m *mockExecutor) IsInspectable() bool      { return m.inspectable }
func (m *mockExecutor) Description() string      { return "mock" }

func (m *mockExecutor) HandleMemoryPressure(level int) {
	m.record("pressure")
}

func (m *mockExecutor) GetPeakJsMemoryUsage() int64 { return m.peakMemory }

func (m *mockExecutor) Flush() error {
	m.record("flush")
	return nil
}

func (m *mockExecutor) Destroy() error {
	m.record("destroy")
	if m.DestroyFunc != nil {
		return m.DestroyFunc()
	}
	return nil
}

func mockFactory(m *mockExecutor) ExecutorFactory {
	return func(ExecutorDelegate, MessageQueueThread) (JSExecutor, error) {
		return m, nil
	}
}

// recordingCallback is an InstanceCallback counting every notification.
type recordingCallback struct {
	mu        sync.Mutex
	complete  int
	increment int
	decrement int
}

func (c *recordingCallback) OnBatchComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complete++
}

func (c *recordingCallback) IncrementPendingJSCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.increment++
}

func (c *recordingCallback) DecrementPendingJSCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decrement++
}

func (c *recordingCallback) counts() (complete, increment, decrement int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.complete, c.increment, c.decrement
}

// recordingRegistry is a ModuleRegistry recording dispatched calls.
type recordingRegistry struct {
	mu      sync.Mutex
	calls   []MethodCall
	failOn  int // index of the call that fails, -1 for none
	syncRes MethodCallResult
}

func newRecordingRegistry() *recordingRegistry {
	return &recordingRegistry{failOn: -1}
}

func (r *recordingRegistry) CallNativeMethod(moduleID, methodID uint32, args []any, callID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, MethodCall{ModuleID: moduleID, MethodID: methodID, Arguments: args, CallID: callID})
	if len(r.calls)-1 == r.failOn {
		return ErrUnknownMethod
	}
	return nil
}

func (r *recordingRegistry) CallSerializableNativeHook(moduleID, methodID uint32, args []any) (MethodCallResult, error) {
	return r.syncRes, nil
}

func (r *recordingRegistry) Calls() []MethodCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MethodCall(nil), r.calls...)
}
