// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

import (
	"fmt"
	"strconv"
	"sync"
)

type bundleKey struct {
	bundleID uint32
	moduleID uint32
}

// MemoryBundleRegistry is a BundleRegistry holding module sources in memory.
type MemoryBundleRegistry struct {
	mu      sync.RWMutex
	paths   map[uint32]string
	modules map[bundleKey]string
}

// NewMemoryBundleRegistry creates an empty registry.
func NewMemoryBundleRegistry() *MemoryBundleRegistry {
	return &MemoryBundleRegistry{
		paths:   map[uint32]string{},
		modules: map[bundleKey]string{},
	}
}

// AddModule stores the source of one module.
func (r *MemoryBundleRegistry) AddModule(bundleID, moduleID uint32, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[bundleKey{bundleID, moduleID}] = code
}

// RegisterBundle implements BundleRegistry.
func (r *MemoryBundleRegistry) RegisterBundle(bundleID uint32, bundlePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.paths[bundleID]; ok && existing != bundlePath {
		return fmt.Errorf("bundle %d already registered at %s", bundleID, existing)
	}
	r.paths[bundleID] = bundlePath
	return nil
}

// BundlePath returns the path registered for a bundle.
func (r *MemoryBundleRegistry) BundlePath(bundleID uint32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.paths[bundleID]
	return p, ok
}

// Module implements BundleRegistry.
func (r *MemoryBundleRegistry) Module(bundleID, moduleID uint32) (*BundleModule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.modules[bundleKey{bundleID, moduleID}]
	if !ok {
		return nil, fmt.Errorf("module %d not found in bundle %d", moduleID, bundleID)
	}
	name := strconv.FormatUint(uint64(moduleID), 10) + ".js"
	if p, ok := r.paths[bundleID]; ok {
		name = SyntheticBundlePath(bundleID, p) + "#" + name
	}
	return &BundleModule{Name: name, Code: code}, nil
}
