// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsExist(t *testing.T) {
	assert.True(t, IsExist(os.Args[0]))
	assert.False(t, IsExist(os.Args[0]+"-foo-bar-buz"))
}

func TestWriteFileListDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteFile(filepath.Join(dir, "b"), []byte("bb")))
	require.NoError(t, WriteFile(filepath.Join(dir, "a"), []byte("a")))
	require.NoError(t, WriteFile(filepath.Join(dir, ".hidden"), nil))
	require.NoError(t, MkdirAll(filepath.Join(dir, "sub")))
	// Overwrite must replace contents atomically.
	require.NoError(t, WriteFile(filepath.Join(dir, "b"), []byte("b")))

	names, err := ListDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
	data, err := os.ReadFile(filepath.Join(dir, "b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)
}

func TestIsAccessible(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, IsAccessible(dir))
	assert.Error(t, IsAccessible(filepath.Join(dir, "missing")))
}
