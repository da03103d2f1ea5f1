//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package v8engine

import (
	"errors"
	"testing"

	jsbridge "github.com/buke/js-bridge"
	"github.com/stretchr/testify/require"
	"github.com/tommie/v8go"
)

// TestNewRuntime tests the creation of a new V8 runtime.
func TestNewRuntime(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		rt, err := NewRuntime()
		require.NoError(t, err)
		require.NotNil(t, rt)
		require.NotNil(t, rt.Iso)
		require.NotNil(t, rt.Ctx)
		require.False(t, rt.IsInspectable())
		rt.Close()
	})

	t.Run("With Option", func(t *testing.T) {
		rt, err := NewRuntime(WithInspectable(true))
		require.NoError(t, err)
		require.True(t, rt.IsInspectable())
		rt.Close()
	})

	t.Run("With Failing Option", func(t *testing.T) {
		expectedErr := errors.New("option failed")
		failingOption := func(jsbridge.ScriptRuntime) error {
			return expectedErr
		}
		rt, err := NewRuntime(failingOption)
		require.Error(t, err)
		require.ErrorIs(t, err, expectedErr)
		require.Nil(t, rt)
	})
}

// TestNewRuntime_Fails tests the failure paths of NewRuntime.
func TestNewRuntime_Fails(t *testing.T) {
	t.Run("Isolate Creation Fails", func(t *testing.T) {
		originalNewIsolate := v8NewIsolate
		v8NewIsolate = func() *v8go.Isolate {
			return nil
		}
		defer func() {
			v8NewIsolate = originalNewIsolate
		}()

		_, err := NewRuntime()
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to create v8 isolate")
	})

	t.Run("Context Creation Fails", func(t *testing.T) {
		originalNewContext := v8NewContext
		// The mock function must have the correct signature to match the original.
		v8NewContext = func(opt ...v8go.ContextOption) *v8go.Context {
			return nil
		}
		defer func() {
			v8NewContext = originalNewContext
		}()

		_, err := NewRuntime()
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to create v8 context")
	})
}

func TestRuntime_Eval(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)
	defer rt.Close()

	result, err := rt.Eval("1 + 2", "sum.js")
	require.NoError(t, err)
	require.Equal(t, "3", result)

	_, err = rt.Eval("throw new Error('boom')", "throw.js")
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestRuntime_SetHook(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)
	defer rt.Close()

	var got []string
	require.NoError(t, rt.SetHook("hostEcho", func(args []string) (string, error) {
		got = args
		return "echo:" + args[0], nil
	}))
	result, err := rt.Eval("hostEcho('hi', 7)", "hook.js")
	require.NoError(t, err)
	require.Equal(t, "echo:hi", result)
	require.Equal(t, []string{"hi", "7"}, got)

	require.NoError(t, rt.SetHook("hostVoid", func([]string) (string, error) { return "", nil }))
	result, err = rt.Eval("typeof hostVoid()", "void.js")
	require.NoError(t, err)
	require.Equal(t, "undefined", result)
}

func TestRuntime_SetHook_Errors(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, rt.SetHook("hostFail", func([]string) (string, error) {
		return "", errors.New("host failure")
	}))
	result, err := rt.Eval("try { hostFail(); 'no' } catch (e) { 'caught: ' + e }", "catch.js")
	require.NoError(t, err)
	require.Equal(t, "caught: host failure", result)

	t.Run("Result Conversion Fails", func(t *testing.T) {
		originalNewValue := v8NewValue
		v8NewValue = func(iso *v8go.Isolate, val interface{}) (*v8go.Value, error) {
			if val == "unconvertible" {
				return nil, errors.New("conversion failed")
			}
			return originalNewValue(iso, val)
		}
		defer func() { v8NewValue = originalNewValue }()

		require.NoError(t, rt.SetHook("hostOdd", func([]string) (string, error) { return "unconvertible", nil }))
		result, err := rt.Eval("try { hostOdd(); 'no' } catch (e) { 'caught: ' + e }", "odd.js")
		require.NoError(t, err)
		require.Equal(t, "caught: conversion failed", result)
	})
}

func TestRuntime_PeakMemoryUsage(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)

	_, err = rt.Eval("var big = []; for (var i = 0; i < 10000; i++) big.push('x' + i);", "alloc.js")
	require.NoError(t, err)
	require.GreaterOrEqual(t, rt.PeakMemoryUsage(), int64(0))

	_, ok := rt.Context().(*v8go.Context)
	require.True(t, ok)

	rt.Close()
	require.Equal(t, int64(-1), rt.PeakMemoryUsage())
}

// TestRuntime_Close tests the Close method.
func TestRuntime_Close(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)

	// First close should be successful
	err = rt.Close()
	require.NoError(t, err)
	require.Nil(t, rt.Iso)
	require.Nil(t, rt.Ctx)

	// Second close should also be successful (idempotent)
	err = rt.Close()
	require.NoError(t, err)

	_, err = rt.Eval("1", "closed.js")
	require.Error(t, err)
}

func TestWithInspectable_InvalidRuntime(t *testing.T) {
	type otherRuntime struct{ jsbridge.ScriptRuntime }
	require.Error(t, WithInspectable(true)(otherRuntime{}))
}
