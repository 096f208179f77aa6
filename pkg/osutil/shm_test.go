// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

package osutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSysvShm(t *testing.T) {
	shm, err := CreateSysvShm(1 << 16)
	if err != nil {
		t.Skipf("no SysV shared memory: %v", err)
	}
	defer shm.Close()
	require.Len(t, shm.Mem, 1<<16)

	// A second attachment observes writes through the first one.
	other, err := AttachSysvShm(shm.ID)
	require.NoError(t, err)
	defer unix.SysvShmDetach(other)
	shm.Mem[42] = 7
	assert.Equal(t, byte(7), other[42])
	other[100] = 1
	assert.Equal(t, byte(1), shm.Mem[100])
}

func TestSysvShmBadSize(t *testing.T) {
	_, err := CreateSysvShm(0)
	assert.Error(t, err)
}
