// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package quickjsengine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	jsbridge "github.com/buke/js-bridge"
	"github.com/stretchr/testify/require"
)

const appScript = `
registerCallableModule('App', {
  greet: function (name) {
    NativeModules.Echo.say('Hello, ' + name + '!');
  },
  ask: function (question) {
    NativeModules.Echo.ask(question, function (err) {
      NativeModules.Echo.say('error: ' + err);
    }, function (answer) {
      NativeModules.Echo.say('answer: ' + answer);
    });
  },
  config: function () {
    NativeModules.Echo.say(JSON.stringify(appConfig));
  },
  add: function (a, b) {
    NativeModules.Echo.say('sum ' + NativeModules.Echo.add(a, b));
  },
  fetch: function (key) {
    NativeModules.Echo.fetch(key).then(function (value) {
      NativeModules.Echo.say('fetched ' + value);
    });
  },
  log: function (message) {
    console.log(message);
    NativeModules.Echo.say('logged');
  }
});
`

func newQuickJSInstance(t *testing.T) (*jsbridge.Instance, chan string, chan error) {
	t.Helper()
	inst := jsbridge.NewInstance()
	said := make(chan string, 16)
	errs := make(chan error, 16)

	echo := jsbridge.NewFuncModule("Echo").
		Method("say", func(args []any) error {
			said <- fmt.Sprint(args[0])
			return nil
		}).
		Method("ask", func(args []any) error {
			inst.CallJSCallback(uint64(args[2].(float64)), []any{"42"})
			return nil
		}).
		PromiseMethod("fetch", func(args []any) error {
			// args: key, reject callback id, resolve callback id
			inst.CallJSCallback(uint64(args[2].(float64)), []any{"value of " + args[0].(string)})
			return nil
		}).
		SyncMethod("add", func(args []any) (any, error) {
			return args[0].(float64) + args[1].(float64), nil
		})
	registry, err := jsbridge.NewNativeModuleRegistry(echo)
	require.NoError(t, err)

	queue := jsbridge.NewThreadQueue(
		jsbridge.WithQueueName("quickjs-js"),
		jsbridge.WithErrorHandler(func(err error) { errs <- err }),
	)
	tracker := jsbridge.NewPendingCallTracker()
	require.NoError(t, inst.InitializeBridge(tracker, nil, NewFactory(WithMemoryLimit(64*1024*1024)), queue, registry))
	t.Cleanup(func() { inst.Destroy() })
	return inst, said, errs
}

func receive(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for native call")
		return ""
	}
}

func TestIntegration_QuickJS_CallFunction(t *testing.T) {
	inst, said, _ := newQuickJSInstance(t)
	require.NoError(t, inst.LoadApplicationSync(nil, []byte(appScript), 1, "app.js", ""))

	inst.CallJSFunction("App", "greet", []any{"QuickJS"})
	require.Equal(t, "Hello, QuickJS!", receive(t, said))
}

func TestIntegration_QuickJS_CallbackRoundTrip(t *testing.T) {
	inst, said, _ := newQuickJSInstance(t)
	require.NoError(t, inst.LoadApplicationSync(nil, []byte(appScript), 1, "app.js", ""))

	inst.CallJSFunction("App", "ask", []any{"meaning of life"})
	require.Equal(t, "answer: 42", receive(t, said))
}

func TestIntegration_QuickJS_OrderPreserved(t *testing.T) {
	inst, said, _ := newQuickJSInstance(t)
	require.NoError(t, inst.LoadApplicationSync(nil, []byte(appScript), 1, "app.js", ""))

	for i := 0; i < 20; i++ {
		inst.CallJSFunction("App", "greet", []any{i})
	}
	for i := 0; i < 20; i++ {
		require.Equal(t, fmt.Sprintf("Hello, %d!", i), receive(t, said))
	}
}

func TestIntegration_QuickJS_SetGlobalVariable(t *testing.T) {
	inst, said, _ := newQuickJSInstance(t)
	require.NoError(t, inst.LoadApplicationSync(nil, []byte(appScript), 1, "app.js", ""))

	inst.SetGlobalVariable("appConfig", []byte(`{"name":"demo"}`))
	inst.CallJSFunction("App", "config", nil)
	require.Equal(t, `{"name":"demo"}`, receive(t, said))
}

func TestIntegration_QuickJS_SyncMethod(t *testing.T) {
	inst, said, _ := newQuickJSInstance(t)
	require.NoError(t, inst.LoadApplicationSync(nil, []byte(appScript), 1, "app.js", ""))

	inst.CallJSFunction("App", "add", []any{2, 3})
	require.Equal(t, "sum 5", receive(t, said))
}

// The continuation runs as a promise job after the resolving callback and
// reaches native code through an immediate flush.
func TestIntegration_QuickJS_Promise(t *testing.T) {
	inst, said, _ := newQuickJSInstance(t)
	require.NoError(t, inst.LoadApplicationSync(nil, []byte(appScript), 1, "app.js", ""))

	inst.CallJSFunction("App", "fetch", []any{"key"})
	require.Equal(t, "fetched value of key", receive(t, said))
}

func TestIntegration_QuickJS_Console(t *testing.T) {
	inst, said, errs := newQuickJSInstance(t)
	require.NoError(t, inst.LoadApplicationSync(nil, []byte(appScript), 1, "app.js", ""))

	inst.CallJSFunction("App", "log", []any{"from quickjs"})
	require.Equal(t, "logged", receive(t, said))
	require.Empty(t, errs)
}

func TestIntegration_QuickJS_BadBundle(t *testing.T) {
	inst, said, errs := newQuickJSInstance(t)
	require.Error(t, inst.LoadApplicationSync(nil, []byte("function ("), 1, "bad.js", ""))

	inst.CallJSFunction("App", "greet", []any{"nobody"})
	select {
	case err := <-errs:
		require.True(t, errors.Is(err, jsbridge.ErrBadApplicationBundle))
	case <-time.After(5 * time.Second):
		t.Fatal("expected bad bundle error")
	}
	require.Empty(t, said)
}

func TestIntegration_QuickJS_MemoryPressure(t *testing.T) {
	inst, said, _ := newQuickJSInstance(t)
	require.NoError(t, inst.LoadApplicationSync(nil, []byte(appScript), 1, "app.js", ""))

	inst.HandleMemoryPressure(2)
	inst.CallJSFunction("App", "greet", []any{"after gc"})
	require.Equal(t, "Hello, after gc!", receive(t, said))
}
