// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

//go:embed batched_bridge.js
var batchedBridgeScript string

// ScriptRuntime is the minimal surface a script engine must offer to run
// the batched bridge protocol.
type ScriptRuntime interface {
	// Eval evaluates code and returns the string conversion of its completion value.
	Eval(code, fileName string) (string, error)

	// SetHook exposes fn as a global function. Arguments are converted to
	// strings; a returned error is thrown into script. Runtimes that cannot
	// expose host functions return ErrHookUnsupported.
	SetHook(name string, fn HostFunc) error

	// Close releases the runtime.
	Close() error
}

// HostFunc is a Go function callable from script.
type HostFunc func(args []string) (string, error)

// RuntimeOption is a function that configures a ScriptRuntime.
type RuntimeOption func(ScriptRuntime) error

// MemoryPressureHandler is implemented by runtimes that can release memory on demand.
type MemoryPressureHandler interface {
	HandleMemoryPressure(level int)
}

// PeakMemoryReporter is implemented by runtimes that track peak memory.
type PeakMemoryReporter interface {
	PeakMemoryUsage() int64
}

// ContextProvider is implemented by runtimes that expose their engine context.
type ContextProvider interface {
	Context() any
}

// Inspectable is implemented by runtimes that support remote debugging.
type Inspectable interface {
	IsInspectable() bool
}

// ModuleConfigProvider is implemented by module registries that can describe
// their modules to script, such as NativeModuleRegistry.
type ModuleConfigProvider interface {
	Config() map[string]any
}

// Global names of the host functions installed by BatchedExecutor.
const (
	HookCallSync            = "nativeCallSyncHook"
	HookFlushQueueImmediate = "nativeFlushQueueImmediate"
	HookLogging             = "nativeLoggingHook"
	HookRequire             = "nativeRequire"
)

const bridgeFileName = "batched_bridge.js"

// BatchedExecutor is a JSExecutor speaking the batched bridge protocol over
// any ScriptRuntime: calls into script return the queue of native calls
// script made, which is handed to the delegate as one batch.
type BatchedExecutor struct {
	runtime  ScriptRuntime
	delegate ExecutorDelegate
	queue    MessageQueueThread

	name           string
	hooks          bool // Host functions are available
	bundleRegistry BundleRegistry
	scriptVersion  uint64
	sourceURL      string

	logger *slog.Logger
}

// NewBatchedExecutor installs the bridge into rt. It must be called on the
// goroutine that will drive rt.
func NewBatchedExecutor(rt ScriptRuntime, delegate ExecutorDelegate, queue MessageQueueThread, opts ...func(*BatchedExecutor)) (*BatchedExecutor, error) {
	if rt == nil {
		return nil, fmt.Errorf("script runtime must be provided")
	}
	e := &BatchedExecutor{
		runtime:  rt,
		delegate: delegate,
		queue:    queue,
		name:     "batched",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.installHooks(); err != nil {
		return nil, err
	}

	if delegate != nil {
		if provider, ok := delegate.ModuleRegistry().(ModuleConfigProvider); ok {
			config, err := json.Marshal(provider.Config())
			if err != nil {
				return nil, fmt.Errorf("failed to encode module config: %w", err)
			}
			if err := e.SetGlobalVariable("__fbBatchedBridgeConfig", config); err != nil {
				return nil, err
			}
		}
	}

	if _, err := rt.Eval(batchedBridgeScript, bridgeFileName); err != nil {
		return nil, fmt.Errorf("failed to install batched bridge: %w", err)
	}
	return e, nil
}

// WithExecutorName sets the name returned by Description.
func WithExecutorName(name string) func(*BatchedExecutor) {
	return func(e *BatchedExecutor) {
		if name != "" {
			e.name = name
		}
	}
}

// WithExecutorLogger configures the logger for the executor. nil disables logging.
func WithExecutorLogger(logger *slog.Logger) func(*BatchedExecutor) {
	return func(e *BatchedExecutor) {
		e.logger = logger
	}
}

// NewBatchedExecutorFactory returns an ExecutorFactory creating a fresh
// runtime with newRuntime for every executor.
func NewBatchedExecutorFactory(newRuntime func() (ScriptRuntime, error), opts ...func(*BatchedExecutor)) ExecutorFactory {
	return func(delegate ExecutorDelegate, queue MessageQueueThread) (JSExecutor, error) {
		rt, err := newRuntime()
		if err != nil {
			return nil, fmt.Errorf("failed to create script runtime: %w", err)
		}
		e, err := NewBatchedExecutor(rt, delegate, queue, opts...)
		if err != nil {
			rt.Close()
			return nil, err
		}
		return e, nil
	}
}

// Runtime returns the underlying script runtime.
func (e *BatchedExecutor) Runtime() ScriptRuntime {
	return e.runtime
}

func (e *BatchedExecutor) installHooks() error {
	hooks := []struct {
		name string
		fn   HostFunc
	}{
		{HookCallSync, e.callSyncHook},
		{HookFlushQueueImmediate, e.flushQueueImmediate},
		{HookLogging, e.loggingHook},
		{HookRequire, e.nativeRequire},
	}
	for _, hook := range hooks {
		err := e.runtime.SetHook(hook.name, hook.fn)
		if errors.Is(err, ErrHookUnsupported) {
			if e.logger != nil {
				e.logger.Debug("Runtime has no host functions, sync hooks disabled", "executor", e.name)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to install %s: %w", hook.name, err)
		}
	}
	e.hooks = true
	return nil
}

// LoadApplicationScript implements JSExecutor. Native calls made while the
// script evaluates are delivered as one batch afterwards.
func (e *BatchedExecutor) LoadApplicationScript(script []byte, scriptVersion uint64, sourceURL string, bytecodeFileName string) error {
	e.scriptVersion = scriptVersion
	e.sourceURL = sourceURL
	if script != nil {
		if _, err := e.runtime.Eval(string(script), sourceURL); err != nil {
			return fmt.Errorf("failed to evaluate %s: %w", sourceURL, err)
		}
	}
	if e.logger != nil {
		e.logger.Debug("Application script loaded",
			"executor", e.name,
			"sourceURL", sourceURL,
			"version", scriptVersion,
			"bytecode", bytecodeFileName)
	}
	return e.Flush()
}

// SetBundleRegistry implements JSExecutor.
func (e *BatchedExecutor) SetBundleRegistry(registry BundleRegistry) error {
	e.bundleRegistry = registry
	return nil
}

// RegisterBundle implements JSExecutor. Without a bundle registry the file
// at bundlePath is evaluated right away.
func (e *BatchedExecutor) RegisterBundle(bundleID uint32, bundlePath string) error {
	if e.bundleRegistry != nil {
		return e.bundleRegistry.RegisterBundle(bundleID, bundlePath)
	}
	code, err := os.ReadFile(bundlePath)
	if err != nil {
		return fmt.Errorf("failed to read bundle %d: %w", bundleID, err)
	}
	sourceURL := SyntheticBundlePath(bundleID, bundlePath)
	if _, err := e.runtime.Eval(string(code), sourceURL); err != nil {
		return fmt.Errorf("failed to evaluate bundle %s: %w", sourceURL, err)
	}
	return nil
}

// CallFunction implements JSExecutor.
func (e *BatchedExecutor) CallFunction(module, method string, args []any) error {
	argsJSON, err := toJSON(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments of %s.%s: %w", module, method, err)
	}
	code := "JSON.stringify(__fbBatchedBridge.callFunctionReturnFlushedQueue(" +
		jsString(module) + ", " + jsString(method) + ", " + argsJSON + "))"
	return e.callAndFlush(code, module+"."+method)
}

// InvokeCallback implements JSExecutor.
func (e *BatchedExecutor) InvokeCallback(callbackID float64, args []any) error {
	argsJSON, err := toJSON(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments of callback %v: %w", callbackID, err)
	}
	code := "JSON.stringify(__fbBatchedBridge.invokeCallbackAndReturnFlushedQueue(" +
		strconv.FormatFloat(callbackID, 'f', -1, 64) + ", " + argsJSON + "))"
	return e.callAndFlush(code, "callback "+strconv.FormatFloat(callbackID, 'f', -1, 64))
}

// Flush implements JSExecutor.
func (e *BatchedExecutor) Flush() error {
	return e.callAndFlush("JSON.stringify(__fbBatchedBridge.flushedQueue())", "flush")
}

func (e *BatchedExecutor) callAndFlush(code, what string) error {
	result, err := e.runtime.Eval(code, bridgeFileName)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	batch, err := fromJSON(result)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", what, ErrInvalidBatch, err)
	}
	if e.delegate == nil {
		return nil
	}
	return e.delegate.CallNativeModules(e, batch, true)
}

// SetGlobalVariable implements JSExecutor.
func (e *BatchedExecutor) SetGlobalVariable(name string, jsonValue []byte) error {
	if !json.Valid(jsonValue) {
		return fmt.Errorf("value of global %s is not valid JSON", name)
	}
	code := "(typeof globalThis !== 'undefined' ? globalThis : this)[" + jsString(name) +
		"] = JSON.parse(" + jsString(string(jsonValue)) + "); undefined"
	if _, err := e.runtime.Eval(code, "setGlobalVariable"); err != nil {
		return fmt.Errorf("failed to set global %s: %w", name, err)
	}
	return nil
}

// GetJavaScriptContext implements JSExecutor.
func (e *BatchedExecutor) GetJavaScriptContext() any {
	if p, ok := e.runtime.(ContextProvider); ok {
		return p.Context()
	}
	return nil
}

// IsInspectable implements JSExecutor.
func (e *BatchedExecutor) IsInspectable() bool {
	if i, ok := e.runtime.(Inspectable); ok {
		return i.IsInspectable()
	}
	return false
}

// Description implements JSExecutor.
func (e *BatchedExecutor) Description() string {
	return e.name
}

// HandleMemoryPressure implements JSExecutor.
func (e *BatchedExecutor) HandleMemoryPressure(level int) {
	if h, ok := e.runtime.(MemoryPressureHandler); ok {
		h.HandleMemoryPressure(level)
		return
	}
	if e.logger != nil {
		e.logger.Debug("Memory pressure ignored", "executor", e.name, "level", level)
	}
}

// GetPeakJsMemoryUsage implements JSExecutor.
func (e *BatchedExecutor) GetPeakJsMemoryUsage() int64 {
	if r, ok := e.runtime.(PeakMemoryReporter); ok {
		return r.PeakMemoryUsage()
	}
	return -1
}

// Destroy implements JSExecutor.
func (e *BatchedExecutor) Destroy() error {
	if e.runtime == nil {
		return nil
	}
	err := e.runtime.Close()
	e.runtime = nil
	return err
}

// callSyncHook serves nativeCallSyncHook(moduleID, methodID, argsJSON).
func (e *BatchedExecutor) callSyncHook(args []string) (string, error) {
	if len(args) < 3 {
		return "", fmt.Errorf("%s expects 3 arguments, got %d", HookCallSync, len(args))
	}
	moduleID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return "", fmt.Errorf("invalid module id %q", args[0])
	}
	methodID, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return "", fmt.Errorf("invalid method id %q", args[1])
	}
	params, err := fromJSON(args[2])
	if err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	list, _ := params.([]any)
	if e.delegate == nil {
		return "", fmt.Errorf("%w: module id %d", ErrUnknownModule, moduleID)
	}
	res, err := e.delegate.CallSerializableNativeHook(e, uint32(moduleID), uint32(methodID), list)
	if err != nil {
		return "", err
	}
	if !res.Valid {
		return "", nil
	}
	return toJSON(res.Value)
}

// flushQueueImmediate serves nativeFlushQueueImmediate(queueJSON).
func (e *BatchedExecutor) flushQueueImmediate(args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("%s expects 1 argument", HookFlushQueueImmediate)
	}
	batch, err := fromJSON(args[0])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	if e.delegate == nil {
		return "", nil
	}
	return "", e.delegate.CallNativeModules(e, batch, false)
}

// loggingHook serves nativeLoggingHook(message, level).
func (e *BatchedExecutor) loggingHook(args []string) (string, error) {
	if e.logger == nil || len(args) == 0 {
		return "", nil
	}
	level := 1
	if len(args) > 1 {
		if l, err := strconv.Atoi(args[1]); err == nil {
			level = l
		}
	}
	switch level {
	case 0:
		e.logger.Debug(args[0], "executor", e.name)
	case 2:
		e.logger.Warn(args[0], "executor", e.name)
	case 3:
		e.logger.Error(args[0], "executor", e.name)
	default:
		e.logger.Info(args[0], "executor", e.name)
	}
	return "", nil
}

// nativeRequire serves nativeRequire(moduleID, bundleID).
func (e *BatchedExecutor) nativeRequire(args []string) (string, error) {
	if e.bundleRegistry == nil {
		return "", ErrNoBundleRegistry
	}
	if len(args) < 1 {
		return "", fmt.Errorf("%s expects a module id", HookRequire)
	}
	moduleID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return "", fmt.Errorf("invalid module id %q", args[0])
	}
	bundleID := uint64(MainBundleID)
	if len(args) > 1 && args[1] != "undefined" {
		if bundleID, err = strconv.ParseUint(args[1], 10, 32); err != nil {
			return "", fmt.Errorf("invalid bundle id %q", args[1])
		}
	}
	module, err := e.bundleRegistry.Module(uint32(bundleID), uint32(moduleID))
	if err != nil {
		return "", err
	}
	if _, err := e.runtime.Eval(module.Code, module.Name); err != nil {
		return "", fmt.Errorf("failed to evaluate %s: %w", module.Name, err)
	}
	return "", nil
}

// jsString returns s as a JavaScript string literal.
func jsString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

// SyntheticBundlePath returns the source URL used for an additional bundle.
// The main bundle keeps its own path.
func SyntheticBundlePath(bundleID uint32, bundlePath string) string {
	if bundleID == MainBundleID {
		return bundlePath
	}
	return filepath.Join(filepath.Dir(bundlePath), "seg-"+strconv.FormatUint(uint64(bundleID), 10)+".js")
}
