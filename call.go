// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

import (
	"fmt"
	"math"
)

// CallKind identifies the kind of work sent into the script engine.
type CallKind int

const (
	CallFunction          CallKind = iota // Invoke module.method(args...)
	CallInvokeCallback                    // Invoke a script callback by id
	CallSetGlobalVariable                 // Assign a JSON value to a global
	CallRegisterBundle                    // Register an additional bundle segment
	CallLoadApplication                   // Evaluate the application script
	CallMemoryPressure                    // Forward a memory pressure event
	CallDestroy                           // Tear the bridge down
)

// String returns the string representation of a CallKind.
func (k CallKind) String() string {
	switch k {
	case CallFunction:
		return "callFunction"
	case CallInvokeCallback:
		return "invokeCallback"
	case CallSetGlobalVariable:
		return "setGlobalVariable"
	case CallRegisterBundle:
		return "registerBundle"
	case CallLoadApplication:
		return "loadApplication"
	case CallMemoryPressure:
		return "handleMemoryPressure"
	case CallDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// Call is a unit of work sent into the script engine. Only the fields
// relevant to Kind are read.
type Call struct {
	Kind CallKind

	Module string // CallFunction
	Method string // CallFunction
	Args   []any  // CallFunction, CallInvokeCallback

	CallbackID float64 // CallInvokeCallback

	Name      string // CallSetGlobalVariable
	JSONValue []byte // CallSetGlobalVariable

	BundleID uint32 // CallRegisterBundle
	Path     string // CallRegisterBundle

	BundleRegistry   BundleRegistry // CallLoadApplication, optional
	Script           []byte         // CallLoadApplication
	ScriptVersion    uint64         // CallLoadApplication
	SourceURL        string         // CallLoadApplication
	BytecodeFileName string         // CallLoadApplication

	PressureLevel int // CallMemoryPressure
}

// CallError reports a call into script that failed before its batch ended.
// No end-of-batch was delivered for it, so its pending count is still held.
type CallError struct {
	Kind   CallKind
	Target string // module.method, callback id or source URL
	Err    error
}

func (e *CallError) Error() string { return e.Err.Error() }

func (e *CallError) Unwrap() error { return e.Err }

// MethodCall is one native module invocation decoded from a flushed queue.
type MethodCall struct {
	ModuleID  uint32
	MethodID  uint32
	Arguments []any
	CallID    int
}

const (
	requestModuleIDs = 0
	requestMethodIDs = 1
	requestParams    = 2
	requestCallID    = 3
)

// ParseMethodCalls decodes a flushed queue of the shape
// [moduleIds, methodIds, params, callId?] into method calls, preserving order.
// A nil batch holds no calls.
func ParseMethodCalls(batch any) ([]MethodCall, error) {
	if batch == nil {
		return nil, nil
	}

	data, ok := batch.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: batch is a %s", ErrInvalidBatch, KindOf(batch))
	}
	if len(data) < requestParams+1 {
		return nil, fmt.Errorf("%w: size == %d", ErrInvalidBatch, len(data))
	}

	moduleIDs, ok1 := data[requestModuleIDs].([]any)
	methodIDs, ok2 := data[requestMethodIDs].([]any)
	params, ok3 := data[requestParams].([]any)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("%w: module ids, method ids and params must be lists", ErrInvalidBatch)
	}

	callID := -1
	if len(data) > requestCallID {
		id, ok := data[requestCallID].(float64)
		if !ok {
			return nil, fmt.Errorf("%w: call id is a %s", ErrInvalidBatch, KindOf(data[requestCallID]))
		}
		callID = int(id)
	}

	if len(moduleIDs) != len(methodIDs) || len(moduleIDs) != len(params) {
		return nil, fmt.Errorf("%w: %d module ids, %d method ids, %d params",
			ErrInvalidBatch, len(moduleIDs), len(methodIDs), len(params))
	}

	calls := make([]MethodCall, 0, len(moduleIDs))
	for i := range moduleIDs {
		args, ok := params[i].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: call argument %d isn't a list", ErrInvalidBatch, i)
		}
		moduleID, err := toID(moduleIDs[i])
		if err != nil {
			return nil, fmt.Errorf("%w: module id %d: %v", ErrInvalidBatch, i, err)
		}
		methodID, err := toID(methodIDs[i])
		if err != nil {
			return nil, fmt.Errorf("%w: method id %d: %v", ErrInvalidBatch, i, err)
		}
		calls = append(calls, MethodCall{
			ModuleID:  moduleID,
			MethodID:  methodID,
			Arguments: args,
			CallID:    callID,
		})
		// the call id is optional; only advance a real one
		if callID != -1 {
			callID++
		}
	}
	return calls, nil
}

func toID(v any) (uint32, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("expected number, got %s", KindOf(v))
	}
	if f < 0 || f > math.MaxUint32 || f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not a valid id", f)
	}
	return uint32(f), nil
}
