// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
)

// Bridge marshals calls from native code onto the executor's queue. All
// methods are safe for concurrent use unless documented otherwise.
//
// Every task touching the executor runs on the queue and checks the shared
// destroyed flag right before running. Destroy sets the flag and then runs
// the teardown on the same queue, so tasks queued earlier either finish
// before teardown or observe the flag and do nothing.
type Bridge struct {
	destroyed       *atomic.Bool // Shared with every queued task
	appScriptFailed atomic.Bool

	delegate ExecutorDelegate
	executor JSExecutor // Read and cleared only on the queue after construction
	queue    MessageQueueThread

	inspectable bool // Captured at construction

	logger *slog.Logger
}

// NewBridge creates a bridge and its executor. The executor is created on
// the calling goroutine. If delegate is nil a JsToNativeBridge over registry
// and callback is used.
func NewBridge(factory ExecutorFactory, delegate ExecutorDelegate, registry ModuleRegistry,
	queue MessageQueueThread, callback InstanceCallback, opts ...func(*Bridge)) (*Bridge, error) {
	if factory == nil {
		return nil, fmt.Errorf("executor factory must be provided")
	}
	if queue == nil {
		return nil, fmt.Errorf("executor queue must be provided")
	}

	b := &Bridge{
		destroyed: new(atomic.Bool),
		delegate:  delegate,
		queue:     queue,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.delegate == nil {
		b.delegate = NewJsToNativeBridge(registry, callback)
	}

	executor, err := factory(b.delegate, queue)
	if err != nil {
		return nil, fmt.Errorf("failed to create JS executor: %w", err)
	}
	if executor == nil {
		return nil, fmt.Errorf("executor factory returned nil executor")
	}
	b.executor = executor
	b.inspectable = executor.IsInspectable()

	runtime.SetFinalizer(b, func(b *Bridge) {
		if !b.destroyed.Load() && b.logger != nil {
			b.logger.Error("Bridge was garbage collected without Destroy")
		}
	})

	if b.logger != nil {
		b.logger.Debug("Bridge created", "executor", executor.Description(), "inspectable", b.inspectable)
	}
	return b, nil
}

// WithBridgeLogger configures the logger for the bridge. nil disables logging.
func WithBridgeLogger(logger *slog.Logger) func(*Bridge) {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// LoadApplication installs bundleRegistry, if any, and evaluates the
// application script on the queue. If evaluation fails every later
// CallFunction and InvokeCallback fails with ErrBadApplicationBundle.
func (b *Bridge) LoadApplication(bundleRegistry BundleRegistry, script []byte, scriptVersion uint64,
	sourceURL string, bytecodeFileName string) {
	b.RunOnExecutorQueue(func(executor JSExecutor) error {
		err := b.loadApplication(executor, bundleRegistry, script, scriptVersion, sourceURL, bytecodeFileName)
		if err != nil {
			return &CallError{Kind: CallLoadApplication, Target: sourceURL, Err: err}
		}
		return nil
	})
}

// LoadApplicationSync is LoadApplication without the queue. It must be called
// from the goroutine that created the bridge, before any other work is queued.
func (b *Bridge) LoadApplicationSync(bundleRegistry BundleRegistry, script []byte, scriptVersion uint64,
	sourceURL string, bytecodeFileName string) error {
	return b.loadApplication(b.executor, bundleRegistry, script, scriptVersion, sourceURL, bytecodeFileName)
}

func (b *Bridge) loadApplication(executor JSExecutor, bundleRegistry BundleRegistry, script []byte,
	scriptVersion uint64, sourceURL string, bytecodeFileName string) error {
	if bundleRegistry != nil {
		if err := executor.SetBundleRegistry(bundleRegistry); err != nil {
			return fmt.Errorf("failed to set bundle registry: %w", err)
		}
	}
	if err := executor.LoadApplicationScript(script, scriptVersion, sourceURL, bytecodeFileName); err != nil {
		b.appScriptFailed.Store(true)
		if b.logger != nil {
			b.logger.Error("Application script failed", "sourceURL", sourceURL, "error", err)
		}
		return fmt.Errorf("failed to load application script %s: %w", sourceURL, err)
	}
	return nil
}

// CallFunction invokes module.method(args...) in script.
func (b *Bridge) CallFunction(module, method string, args []any) {
	b.RunOnExecutorQueue(func(executor JSExecutor) error {
		if b.appScriptFailed.Load() {
			err := fmt.Errorf("attempting to call JS function %s.%s() on a %w", module, method, ErrBadApplicationBundle)
			if b.logger != nil {
				b.logger.Error("Call on bad application bundle", "module", module, "method", method)
			}
			return &CallError{Kind: CallFunction, Target: module + "." + method, Err: err}
		}
		if err := executor.CallFunction(module, method, args); err != nil {
			return &CallError{Kind: CallFunction, Target: module + "." + method, Err: err}
		}
		return nil
	})
}

// InvokeCallback invokes a script callback by id.
func (b *Bridge) InvokeCallback(callbackID float64, args []any) {
	b.RunOnExecutorQueue(func(executor JSExecutor) error {
		if b.appScriptFailed.Load() {
			err := fmt.Errorf("attempting to invoke JS callback %v on a %w", callbackID, ErrBadApplicationBundle)
			if b.logger != nil {
				b.logger.Error("Callback on bad application bundle", "callbackID", callbackID)
			}
			return &CallError{Kind: CallInvokeCallback, Target: fmt.Sprint(callbackID), Err: err}
		}
		if err := executor.InvokeCallback(callbackID, args); err != nil {
			return &CallError{Kind: CallInvokeCallback, Target: fmt.Sprint(callbackID), Err: err}
		}
		return nil
	})
}

// RegisterBundle registers an additional bundle segment.
func (b *Bridge) RegisterBundle(bundleID uint32, bundlePath string) {
	b.RunOnExecutorQueue(func(executor JSExecutor) error {
		return executor.RegisterBundle(bundleID, bundlePath)
	})
}

// SetGlobalVariable assigns a JSON encoded value to a global.
func (b *Bridge) SetGlobalVariable(name string, jsonValue []byte) {
	b.RunOnExecutorQueue(func(executor JSExecutor) error {
		return executor.SetGlobalVariable(name, jsonValue)
	})
}

// HandleMemoryPressure forwards a memory pressure event to the executor.
func (b *Bridge) HandleMemoryPressure(level int) {
	b.RunOnExecutorQueue(func(executor JSExecutor) error {
		executor.HandleMemoryPressure(level)
		return nil
	})
}

// Dispatch submits a Call. CallDestroy destroys the bridge synchronously and
// returns its error; every other kind is queued and returns nil.
func (b *Bridge) Dispatch(call Call) error {
	switch call.Kind {
	case CallFunction:
		b.CallFunction(call.Module, call.Method, call.Args)
	case CallInvokeCallback:
		b.InvokeCallback(call.CallbackID, call.Args)
	case CallSetGlobalVariable:
		b.SetGlobalVariable(call.Name, call.JSONValue)
	case CallRegisterBundle:
		b.RegisterBundle(call.BundleID, call.Path)
	case CallLoadApplication:
		b.LoadApplication(call.BundleRegistry, call.Script, call.ScriptVersion, call.SourceURL, call.BytecodeFileName)
	case CallMemoryPressure:
		b.HandleMemoryPressure(call.PressureLevel)
	case CallDestroy:
		return b.Destroy()
	default:
		return fmt.Errorf("unknown call kind %d", call.Kind)
	}
	return nil
}

// GetJavaScriptContext returns the executor's engine context. Call it only
// from the executor queue.
func (b *Bridge) GetJavaScriptContext() any {
	if b.executor == nil {
		return nil
	}
	return b.executor.GetJavaScriptContext()
}

// IsInspectable reports whether the executor supports remote debugging.
func (b *Bridge) IsInspectable() bool {
	return b.inspectable
}

// IsBatchActive reports whether the current batch dispatched native calls.
func (b *Bridge) IsBatchActive() bool {
	return b.delegate.IsBatchActive()
}

// GetPeakJsMemoryUsage returns the executor's peak memory in bytes, or -1.
// Engines are not safe to query off their queue, so the read runs on the
// queue and waits behind work already queued.
func (b *Bridge) GetPeakJsMemoryUsage() int64 {
	if b.destroyed.Load() {
		return -1
	}
	peak := int64(-1)
	err := b.queue.RunOnQueueSync(func() error {
		if !b.destroyed.Load() && b.executor != nil {
			peak = b.executor.GetPeakJsMemoryUsage()
		}
		return nil
	})
	if err != nil {
		return -1
	}
	return peak
}

// IsDestroyed reports whether Destroy has been called.
func (b *Bridge) IsDestroyed() bool {
	return b.destroyed.Load()
}

// Destroy tears the executor down on its queue and stops the queue, blocking
// until both are done. Work queued but not yet started is skipped and work
// submitted afterwards is ignored. Destroy must be called exactly once.
func (b *Bridge) Destroy() error {
	// Set first so pending tasks bail out instead of running before teardown
	if !b.destroyed.CompareAndSwap(false, true) {
		panic("jsbridge: Bridge.Destroy called more than once")
	}

	err := b.queue.RunOnQueueSync(func() error {
		err := b.destroyExecutor()
		b.queue.QuitSynchronous()
		return err
	})
	if errors.Is(err, ErrQueueStopped) {
		// Stopped by someone else; once its loop has exited nothing else
		// can reach the executor.
		if d, ok := b.queue.(interface{ Done() <-chan struct{} }); ok {
			<-d.Done()
		}
		err = b.destroyExecutor()
	}
	if b.logger != nil {
		if err != nil {
			b.logger.Error("Bridge destroy failed", "error", err)
		} else {
			b.logger.Debug("Bridge destroyed")
		}
	}
	return err
}

func (b *Bridge) destroyExecutor() error {
	if b.executor == nil {
		return nil
	}
	err := b.executor.Destroy()
	b.executor = nil
	return err
}

// RunOnExecutorQueue queues a task that receives the executor. The task is
// dropped if the bridge is destroyed before it starts.
func (b *Bridge) RunOnExecutorQueue(task func(executor JSExecutor) error) {
	if b.destroyed.Load() {
		return
	}

	isDestroyed := b.destroyed
	b.queue.RunOnQueue(func() error {
		if isDestroyed.Load() {
			return nil
		}
		// The executor is cleared only by the teardown task on this queue,
		// and that task has not run yet.
		return task(b.executor)
	})
}
