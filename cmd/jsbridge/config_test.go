// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
engine: quickjs
quickjs:
  memoryLimit: 1048576
  canBlock: true
script: app.js
bundles:
  - id: 1
    path: seg-1.js
globals:
  debug: true
  app:
    name: demo
    retries: 3
log:
  level: debug
  format: json
`))
	require.NoError(t, err)
	require.Equal(t, EngineQuickJS, cfg.Engine)
	require.Equal(t, uint64(1048576), cfg.QuickJS.MemoryLimit)
	require.True(t, cfg.QuickJS.CanBlock)
	require.Equal(t, "app.js", cfg.Script)
	require.Equal(t, []BundleConfig{{ID: 1, Path: "seg-1.js"}}, cfg.Bundles)

	names, values, err := cfg.GlobalsJSON()
	require.NoError(t, err)
	require.Equal(t, []string{"app", "debug"}, names)
	require.JSONEq(t, `{"name":"demo","retries":3}`, string(values[0]))
	require.Equal(t, "true", string(values[1]))
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	require.Equal(t, EngineGoja, cfg.Engine)

	factory, err := cfg.Factory()
	require.NoError(t, err)
	require.NotNil(t, factory)
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig([]byte("engine: [unclosed"))
	require.ErrorContains(t, err, "failed to parse config")

	_, err = ParseConfig([]byte("engine: goja\nunknownKey: 1\n"))
	require.Error(t, err)

	_, err = ParseConfig([]byte(`
engine: spidermonkey
goja:
  maxCallStackSize: -1
bundles:
  - id: 2
  - id: 2
    path: b.js
log:
  level: loud
  format: xml
`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{
		`unknown engine "spidermonkey"`,
		"goja.maxCallStackSize must not be negative",
		"bundles[0]: path is required",
		"bundles[1]: duplicate id 2",
		`unknown log level "loud"`,
		`unknown log format "xml"`,
	}, verr.Issues)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: goja\nscript: app.js\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "app.js"), cfg.Resolve(cfg.Script))
	require.Equal(t, "/abs/app.js", cfg.Resolve("/abs/app.js"))
	require.Equal(t, "", cfg.Resolve(""))

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.ErrorContains(t, err, "failed to read config")
}

func TestConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Log: LogConfig{Level: "warn", Format: "json"}}
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)

	level, err := parseLevel("")
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, level)
}

func TestConfig_GlobalsJSONError(t *testing.T) {
	cfg := &Config{Globals: map[string]any{"bad": make(chan int)}}
	_, _, err := cfg.GlobalsJSON()
	require.ErrorContains(t, err, "global bad")
}
