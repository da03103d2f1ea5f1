// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryBundleRegistry(t *testing.T) {
	r := NewMemoryBundleRegistry()
	r.AddModule(MainBundleID, 1, "main module")
	r.AddModule(3, 2, "segment module")

	require.NoError(t, r.RegisterBundle(3, "/app/main.bundle"))
	// Registering the same path again is fine
	require.NoError(t, r.RegisterBundle(3, "/app/main.bundle"))
	require.Error(t, r.RegisterBundle(3, "/elsewhere.bundle"))

	path, ok := r.BundlePath(3)
	require.True(t, ok)
	require.Equal(t, "/app/main.bundle", path)
	_, ok = r.BundlePath(4)
	require.False(t, ok)

	m, err := r.Module(MainBundleID, 1)
	require.NoError(t, err)
	require.Equal(t, "1.js", m.Name)
	require.Equal(t, "main module", m.Code)

	m, err = r.Module(3, 2)
	require.NoError(t, err)
	require.Equal(t, "/app/seg-3.js#2.js", m.Name)
	require.Equal(t, "segment module", m.Code)

	_, err = r.Module(3, 99)
	require.Error(t, err)
}

func TestSyntheticBundlePath(t *testing.T) {
	require.Equal(t, "/app/main.bundle", SyntheticBundlePath(MainBundleID, "/app/main.bundle"))
	require.Equal(t, "/app/seg-12.js", SyntheticBundlePath(12, "/app/main.bundle"))
	require.Equal(t, "seg-1.js", SyntheticBundlePath(1, "main.bundle"))
}
