// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

import (
	"fmt"
	"log/slog"
	"sync"
)

// Instance is the embedding side of the bridge. It owns the Bridge, wires
// the executor, delegate, module registry and callback together, and keeps
// the pending call count of its callback in step with calls into script.
type Instance struct {
	callback InstanceCallback
	registry ModuleRegistry
	queue    MessageQueueThread
	bridge   *Bridge

	initMu    sync.Mutex
	syncReady chan struct{} // Closed when the latest InitializeBridge attempt ends
	initErr   error

	destroyOnce sync.Once
	destroyErr  error

	logger *slog.Logger
}

// NewInstance creates an instance. InitializeBridge must be called before use.
func NewInstance(opts ...func(*Instance)) *Instance {
	i := &Instance{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// WithInstanceLogger configures the logger for the instance and its bridge.
// nil disables logging.
func WithInstanceLogger(logger *slog.Logger) func(*Instance) {
	return func(i *Instance) {
		i.logger = logger
	}
}

// InitializeBridge creates the bridge on queue and waits for it. If
// delegateFactory is nil the default JsToNativeBridge is used.
func (i *Instance) InitializeBridge(callback InstanceCallback, delegateFactory ExecutorDelegateFactory,
	factory ExecutorFactory, queue MessageQueueThread, registry ModuleRegistry) error {
	i.initMu.Lock()
	if i.bridge != nil {
		i.initMu.Unlock()
		return fmt.Errorf("bridge already initialized")
	}
	if queue == nil {
		i.initMu.Unlock()
		return fmt.Errorf("executor queue must be provided")
	}
	ready := make(chan struct{})
	i.syncReady = ready
	i.initMu.Unlock()
	defer close(ready)

	i.callback = callback
	i.registry = registry
	i.queue = queue

	var delegate ExecutorDelegate
	if delegateFactory != nil {
		delegate = delegateFactory(registry, callback)
	}

	// Engines bound to one OS thread must be created on the queue
	err := queue.RunOnQueueSync(func() error {
		bridge, err := NewBridge(factory, delegate, registry, queue, callback, WithBridgeLogger(i.logger))
		if err != nil {
			return err
		}
		i.initMu.Lock()
		i.bridge = bridge
		i.initMu.Unlock()
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed to initialize bridge: %w", err)
	}
	i.initMu.Lock()
	i.initErr = err
	i.initMu.Unlock()
	return err
}

// Bridge returns the bridge, or nil before InitializeBridge.
func (i *Instance) Bridge() *Bridge {
	return i.bridge
}

// ModuleRegistry returns the module registry.
func (i *Instance) ModuleRegistry() ModuleRegistry {
	return i.registry
}

// LoadApplication evaluates the application script asynchronously.
func (i *Instance) LoadApplication(bundleRegistry BundleRegistry, script []byte, scriptVersion uint64,
	sourceURL string, bytecodeFileName string) {
	b := i.mustBridge()
	i.incrementPending()
	b.LoadApplication(bundleRegistry, script, scriptVersion, sourceURL, bytecodeFileName)
}

// LoadApplicationSync evaluates the application script on the executor queue
// and waits for it, returning the evaluation error. It waits for an
// InitializeBridge in progress and returns ErrNotInitialized if there is no
// bridge once that ends.
func (i *Instance) LoadApplicationSync(bundleRegistry BundleRegistry, script []byte, scriptVersion uint64,
	sourceURL string, bytecodeFileName string) error {
	i.initMu.Lock()
	ready := i.syncReady
	i.initMu.Unlock()
	if ready == nil {
		return ErrNotInitialized
	}
	<-ready

	i.initMu.Lock()
	b, initErr := i.bridge, i.initErr
	i.initMu.Unlock()
	if b == nil {
		return fmt.Errorf("%w: %w", ErrNotInitialized, initErr)
	}
	if b.IsDestroyed() {
		return ErrQueueStopped
	}
	// The bridge was created on the queue, so this is its creating goroutine
	return i.queue.RunOnQueueSync(func() error {
		return b.LoadApplicationSync(bundleRegistry, script, scriptVersion, sourceURL, bytecodeFileName)
	})
}

// SetSourceURL records the source URL without evaluating any script.
func (i *Instance) SetSourceURL(sourceURL string) {
	b := i.mustBridge()
	i.incrementPending()
	b.LoadApplication(nil, nil, 0, sourceURL, "")
}

// LoadScriptFromString loads a script synchronously or asynchronously.
// The asynchronous variant always returns nil.
func (i *Instance) LoadScriptFromString(script []byte, scriptVersion uint64, sourceURL string,
	loadSynchronously bool, bytecodeFileName string) error {
	if loadSynchronously {
		return i.LoadApplicationSync(nil, script, scriptVersion, sourceURL, bytecodeFileName)
	}
	i.LoadApplication(nil, script, scriptVersion, sourceURL, bytecodeFileName)
	return nil
}

// SetGlobalVariable assigns a JSON encoded value to a script global.
func (i *Instance) SetGlobalVariable(name string, jsonValue []byte) {
	i.mustBridge().SetGlobalVariable(name, jsonValue)
}

// GetJavaScriptContext returns the engine context; call it on the executor queue.
func (i *Instance) GetJavaScriptContext() any {
	if i.bridge == nil {
		return nil
	}
	return i.bridge.GetJavaScriptContext()
}

// IsInspectable reports whether the executor supports remote debugging.
func (i *Instance) IsInspectable() bool {
	if i.bridge == nil {
		return false
	}
	return i.bridge.IsInspectable()
}

// IsBatchActive reports whether the current batch dispatched native calls.
func (i *Instance) IsBatchActive() bool {
	if i.bridge == nil {
		return false
	}
	return i.bridge.IsBatchActive()
}

// CallJSFunction invokes module.method(args...) in script.
func (i *Instance) CallJSFunction(module, method string, args []any) {
	b := i.mustBridge()
	i.incrementPending()
	b.CallFunction(module, method, args)
}

// CallJSCallback invokes a script callback by id.
func (i *Instance) CallJSCallback(callbackID uint64, args []any) {
	b := i.mustBridge()
	i.incrementPending()
	b.InvokeCallback(float64(callbackID), args)
}

// RegisterBundle registers an additional bundle segment.
func (i *Instance) RegisterBundle(bundleID uint32, bundlePath string) {
	i.mustBridge().RegisterBundle(bundleID, bundlePath)
}

// HandleMemoryPressure forwards a memory pressure event to the executor.
func (i *Instance) HandleMemoryPressure(level int) {
	i.mustBridge().HandleMemoryPressure(level)
}

// GetPeakJsMemoryUsage returns the executor's peak memory in bytes, or -1.
func (i *Instance) GetPeakJsMemoryUsage() int64 {
	if i.bridge == nil {
		return -1
	}
	return i.bridge.GetPeakJsMemoryUsage()
}

// InvokeAsync runs fn on the executor queue and then flushes the native
// calls script queued meanwhile.
func (i *Instance) InvokeAsync(fn func()) {
	i.mustBridge().RunOnExecutorQueue(func(executor JSExecutor) error {
		fn()
		return executor.Flush()
	})
}

// Destroy destroys the bridge. It is safe to call more than once.
func (i *Instance) Destroy() error {
	i.destroyOnce.Do(func() {
		if i.bridge != nil {
			i.destroyErr = i.bridge.Destroy()
		}
	})
	return i.destroyErr
}

func (i *Instance) incrementPending() {
	if i.callback != nil {
		i.callback.IncrementPendingJSCalls()
	}
}

func (i *Instance) mustBridge() *Bridge {
	if i.bridge == nil {
		panic("jsbridge: Instance used before InitializeBridge")
	}
	return i.bridge
}
