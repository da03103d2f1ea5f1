// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

// JSExecutor evaluates script on a single queue and reports outgoing native
// calls through its ExecutorDelegate. Every method except GetPeakJsMemoryUsage
// and IsInspectable must be called on the executor's queue.
type JSExecutor interface {
	// LoadApplicationScript evaluates the application script.
	LoadApplicationScript(script []byte, scriptVersion uint64, sourceURL string, bytecodeFileName string) error

	// SetBundleRegistry installs a registry of additional bundle segments.
	SetBundleRegistry(registry BundleRegistry) error

	// RegisterBundle registers the file path of an additional bundle segment.
	RegisterBundle(bundleID uint32, bundlePath string) error

	// CallFunction invokes module.method(args...) in script. Resulting native
	// calls are delivered through the delegate.
	CallFunction(module, method string, args []any) error

	// InvokeCallback invokes a script callback by id.
	InvokeCallback(callbackID float64, args []any) error

	// SetGlobalVariable assigns the JSON encoded value to a global.
	SetGlobalVariable(name string, jsonValue []byte) error

	// GetJavaScriptContext returns the engine specific context handle, or nil.
	GetJavaScriptContext() any

	// IsInspectable reports whether the engine supports remote debugging.
	IsInspectable() bool

	// Description is a human readable name of the executor.
	Description() string

	HandleMemoryPressure(level int)

	// GetPeakJsMemoryUsage returns peak engine memory in bytes, or -1 if unknown.
	GetPeakJsMemoryUsage() int64

	// Flush delivers any native calls queued by script since the last flush.
	Flush() error

	// Destroy releases the engine. It is called exactly once, on the queue.
	Destroy() error
}

// ExecutorFactory creates a JSExecutor bound to the given delegate and queue.
type ExecutorFactory func(delegate ExecutorDelegate, queue MessageQueueThread) (JSExecutor, error)

// ExecutorDelegate is the upcall contract executors use to reach native code.
type ExecutorDelegate interface {
	ModuleRegistry() ModuleRegistry

	// CallNativeModules decodes a flushed queue and dispatches every call in order.
	CallNativeModules(executor JSExecutor, calls any, isEndOfBatch bool) error

	// CallSerializableNativeHook performs a synchronous native call.
	CallSerializableNativeHook(executor JSExecutor, moduleID, methodID uint32, args []any) (MethodCallResult, error)

	// IsBatchActive reports whether the current batch dispatched native calls.
	IsBatchActive() bool
}

// ExecutorDelegateFactory creates a delegate for the given registry and callback.
type ExecutorDelegateFactory func(registry ModuleRegistry, callback InstanceCallback) ExecutorDelegate

// MethodCallResult is the result of a synchronous native hook. Valid is
// false when the method returned nothing.
type MethodCallResult struct {
	Value any
	Valid bool
}

// BundleRegistry resolves the segments of a split application bundle.
type BundleRegistry interface {
	// RegisterBundle records the path of an additional bundle.
	RegisterBundle(bundleID uint32, bundlePath string) error

	// Module returns the source of one module of a registered bundle.
	Module(bundleID, moduleID uint32) (*BundleModule, error)
}

// BundleModule is one lazily required module of a bundle.
type BundleModule struct {
	Name string // Source URL used when evaluating Code
	Code string
}

// MainBundleID is the id of the application bundle itself.
const MainBundleID uint32 = 0
