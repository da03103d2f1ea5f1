// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

import (
	"fmt"
	"sync"
)

// ModuleRegistry resolves (module id, method id) pairs to native methods
// and executes them.
type ModuleRegistry interface {
	// CallNativeMethod invokes an asynchronous native method.
	CallNativeMethod(moduleID, methodID uint32, args []any, callID int) error

	// CallSerializableNativeHook invokes a synchronous native method.
	CallSerializableNativeHook(moduleID, methodID uint32, args []any) (MethodCallResult, error)
}

// MethodType describes how script invokes a native method.
type MethodType string

const (
	MethodAsync   MethodType = "async"   // Fire and forget, optional callbacks
	MethodPromise MethodType = "promise" // Returns a promise settled through callbacks
	MethodSync    MethodType = "sync"    // Returns a value through the sync hook
)

// MethodDescriptor describes one method of a native module.
type MethodDescriptor struct {
	Name string
	Type MethodType
}

// NativeModule is a named set of methods callable from script.
type NativeModule interface {
	Name() string
	Methods() []MethodDescriptor
	Invoke(methodID uint32, args []any, callID int) error
	CallSerializableNativeHook(methodID uint32, args []any) (MethodCallResult, error)
}

// ConstantsProvider is implemented by modules that export constants to script.
type ConstantsProvider interface {
	Constants() map[string]any
}

// NativeModuleRegistry is a ModuleRegistry over modules identified by their
// registration order.
type NativeModuleRegistry struct {
	mu      sync.RWMutex
	modules []NativeModule
	index   map[string]uint32
}

// NewNativeModuleRegistry creates a registry holding the given modules.
func NewNativeModuleRegistry(modules ...NativeModule) (*NativeModuleRegistry, error) {
	r := &NativeModuleRegistry{index: make(map[string]uint32)}
	for _, m := range modules {
		if _, err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a module and returns its id.
func (r *NativeModuleRegistry) Register(module NativeModule) (uint32, error) {
	if module == nil {
		return 0, fmt.Errorf("native module cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index == nil {
		r.index = make(map[string]uint32)
	}
	name := module.Name()
	if _, exists := r.index[name]; exists {
		return 0, fmt.Errorf("native module %q already registered", name)
	}
	id := uint32(len(r.modules))
	r.modules = append(r.modules, module)
	r.index[name] = id
	return id, nil
}

// ModuleID returns the id of the named module.
func (r *NativeModuleRegistry) ModuleID(name string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.index[name]
	return id, ok
}

// ModuleNames returns module names in id order.
func (r *NativeModuleRegistry) ModuleNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.modules))
	for i, m := range r.modules {
		names[i] = m.Name()
	}
	return names
}

// Config returns the module configuration consumed by the script side:
// {"remoteModuleConfig": [[name, constants, methods, promiseIds, syncIds], ...]}.
func (r *NativeModuleRegistry) Config() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config := make([]any, len(r.modules))
	for i, m := range r.modules {
		var constants any
		if cp, ok := m.(ConstantsProvider); ok && cp.Constants() != nil {
			if c, err := ToDynamic(cp.Constants()); err == nil {
				constants = c
			}
		}
		methods := []any{}
		promiseIDs := []any{}
		syncIDs := []any{}
		for j, d := range m.Methods() {
			methods = append(methods, d.Name)
			switch d.Type {
			case MethodPromise:
				promiseIDs = append(promiseIDs, float64(j))
			case MethodSync:
				syncIDs = append(syncIDs, float64(j))
			}
		}
		config[i] = []any{m.Name(), constants, methods, promiseIDs, syncIDs}
	}
	return map[string]any{"remoteModuleConfig": config}
}

// CallNativeMethod implements ModuleRegistry.
func (r *NativeModuleRegistry) CallNativeMethod(moduleID, methodID uint32, args []any, callID int) error {
	m, err := r.module(moduleID)
	if err != nil {
		return err
	}
	if err := m.Invoke(methodID, args, callID); err != nil {
		return fmt.Errorf("%s.%d: %w", m.Name(), methodID, err)
	}
	return nil
}

// CallSerializableNativeHook implements ModuleRegistry.
func (r *NativeModuleRegistry) CallSerializableNativeHook(moduleID, methodID uint32, args []any) (MethodCallResult, error) {
	m, err := r.module(moduleID)
	if err != nil {
		return MethodCallResult{}, err
	}
	res, err := m.CallSerializableNativeHook(methodID, args)
	if err != nil {
		return MethodCallResult{}, fmt.Errorf("%s.%d: %w", m.Name(), methodID, err)
	}
	return res, nil
}

func (r *NativeModuleRegistry) module(moduleID uint32) (NativeModule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(moduleID) >= len(r.modules) {
		return nil, fmt.Errorf("%w: module id %d", ErrUnknownModule, moduleID)
	}
	return r.modules[moduleID], nil
}

type funcMethod struct {
	desc MethodDescriptor
	fn   func(args []any) (any, error)
}

// FuncModule is a NativeModule built from Go funcs.
type FuncModule struct {
	name      string
	methods   []funcMethod
	constants map[string]any
}

// NewFuncModule creates an empty module.
func NewFuncModule(name string) *FuncModule {
	return &FuncModule{name: name}
}

// Method adds an asynchronous method.
func (m *FuncModule) Method(name string, fn func(args []any) error) *FuncModule {
	return m.add(name, MethodAsync, func(args []any) (any, error) {
		return nil, fn(args)
	})
}

// PromiseMethod adds a method that script sees as returning a promise. The
// last two arguments are the reject and resolve callback ids.
func (m *FuncModule) PromiseMethod(name string, fn func(args []any) error) *FuncModule {
	return m.add(name, MethodPromise, func(args []any) (any, error) {
		return nil, fn(args)
	})
}

// SyncMethod adds a method whose result is returned to script immediately.
func (m *FuncModule) SyncMethod(name string, fn func(args []any) (any, error)) *FuncModule {
	return m.add(name, MethodSync, fn)
}

// WithConstants sets the constants exported to script.
func (m *FuncModule) WithConstants(constants map[string]any) *FuncModule {
	m.constants = constants
	return m
}

func (m *FuncModule) add(name string, typ MethodType, fn func(args []any) (any, error)) *FuncModule {
	m.methods = append(m.methods, funcMethod{desc: MethodDescriptor{Name: name, Type: typ}, fn: fn})
	return m
}

// Name implements NativeModule.
func (m *FuncModule) Name() string { return m.name }

// Constants implements ConstantsProvider.
func (m *FuncModule) Constants() map[string]any { return m.constants }

// Methods implements NativeModule.
func (m *FuncModule) Methods() []MethodDescriptor {
	out := make([]MethodDescriptor, len(m.methods))
	for i, fm := range m.methods {
		out[i] = fm.desc
	}
	return out
}

// Invoke implements NativeModule.
func (m *FuncModule) Invoke(methodID uint32, args []any, callID int) error {
	fm, err := m.method(methodID)
	if err != nil {
		return err
	}
	_, err = fm.fn(args)
	return err
}

// CallSerializableNativeHook implements NativeModule.
func (m *FuncModule) CallSerializableNativeHook(methodID uint32, args []any) (MethodCallResult, error) {
	fm, err := m.method(methodID)
	if err != nil {
		return MethodCallResult{}, err
	}
	if fm.desc.Type != MethodSync {
		return MethodCallResult{}, fmt.Errorf("method %s is %s, not sync", fm.desc.Name, fm.desc.Type)
	}
	v, err := fm.fn(args)
	if err != nil {
		return MethodCallResult{}, err
	}
	v, err = ToDynamic(v)
	if err != nil {
		return MethodCallResult{}, err
	}
	return MethodCallResult{Value: v, Valid: true}, nil
}

func (m *FuncModule) method(methodID uint32) (*funcMethod, error) {
	if int(methodID) >= len(m.methods) {
		return nil, fmt.Errorf("%w: %s method id %d", ErrUnknownMethod, m.name, methodID)
	}
	return &m.methods[methodID], nil
}
