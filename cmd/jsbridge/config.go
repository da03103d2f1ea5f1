// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	jsbridge "github.com/buke/js-bridge"
	gojaengine "github.com/buke/js-bridge/engines/goja"
	quickjsengine "github.com/buke/js-bridge/engines/quickjs-go"
	"gopkg.in/yaml.v3"
)

// Engine names accepted in the config file.
const (
	EngineGoja    = "goja"
	EngineQuickJS = "quickjs"
	EngineV8      = "v8"
)

// Config is the parsed contents of a bridge.yaml file.
type Config struct {
	Engine  string                      `yaml:"engine"`
	Goja    GojaConfig                  `yaml:"goja"`
	QuickJS quickjsengine.RuntimeOption `yaml:"quickjs"`
	V8      V8Config                    `yaml:"v8"`

	Script  string         `yaml:"script"`
	Bundles []BundleConfig `yaml:"bundles"`
	Globals map[string]any `yaml:"globals"`
	Log     LogConfig      `yaml:"log"`

	// Directory of the config file; relative paths are resolved against it.
	dir string
}

// GojaConfig selects the Goja runtime options.
type GojaConfig struct {
	MaxCallStackSize int  `yaml:"maxCallStackSize"`
	Console          bool `yaml:"console"`
	Require          bool `yaml:"require"`
}

// V8Config selects the V8 runtime options.
type V8Config struct {
	Inspectable bool `yaml:"inspectable"`
}

// BundleConfig registers an additional bundle segment by file path.
type BundleConfig struct {
	ID   uint32 `yaml:"id"`
	Path string `yaml:"path"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// ValidationError aggregates config validation failures.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed: " + strings.Join(e.Issues, "; ")
}

// LoadConfig reads and validates the config file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// ParseConfig decodes and validates a YAML config. Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{Engine: EngineGoja}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for values no engine can use.
func (c *Config) Validate() error {
	var issues []string
	switch c.Engine {
	case EngineGoja, EngineQuickJS, EngineV8:
	default:
		issues = append(issues, fmt.Sprintf("unknown engine %q", c.Engine))
	}
	if c.Goja.MaxCallStackSize < 0 {
		issues = append(issues, "goja.maxCallStackSize must not be negative")
	}
	if c.QuickJS.GCThreshold < -1 {
		issues = append(issues, "quickjs.gcThreshold must be -1 or greater")
	}
	seen := make(map[uint32]bool)
	for i, b := range c.Bundles {
		if b.Path == "" {
			issues = append(issues, fmt.Sprintf("bundles[%d]: path is required", i))
		}
		if seen[b.ID] {
			issues = append(issues, fmt.Sprintf("bundles[%d]: duplicate id %d", i, b.ID))
		}
		seen[b.ID] = true
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		issues = append(issues, err.Error())
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// Resolve returns path relative to the config file's directory.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}

// Factory returns the executor factory for the configured engine.
func (c *Config) Factory() (jsbridge.ExecutorFactory, error) {
	switch c.Engine {
	case EngineGoja:
		var opts []gojaengine.Option
		if c.Goja.MaxCallStackSize > 0 {
			opts = append(opts, gojaengine.WithMaxCallStackSize(c.Goja.MaxCallStackSize))
		}
		if c.Goja.Console {
			opts = append(opts, gojaengine.WithEnableConsole())
		}
		if c.Goja.Require {
			opts = append(opts, gojaengine.WithRequire())
		}
		return gojaengine.NewFactory(opts...), nil
	case EngineQuickJS:
		return quickjsengine.NewFactory(quickjsengine.WithOptions(c.QuickJS)), nil
	case EngineV8:
		return newV8Factory(c.V8)
	}
	return nil, fmt.Errorf("unknown engine %q", c.Engine)
}

// GlobalsJSON encodes each configured global as JSON, sorted by name.
func (c *Config) GlobalsJSON() ([]string, [][]byte, error) {
	names := make([]string, 0, len(c.Globals))
	for name := range c.Globals {
		names = append(names, name)
	}
	slices.Sort(names)

	values := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := json.Marshal(c.Globals[name])
		if err != nil {
			return nil, nil, fmt.Errorf("global %s: %w", name, err)
		}
		values = append(values, data)
	}
	return names, values, nil
}

// Logger builds the slog logger described by the log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
