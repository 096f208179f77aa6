// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package cover implements the edge coverage map shared with instrumented targets.
//
// The target increments map[edge] every time control flow crosses an instrumented edge.
// The fuzzer clears the map before every run and reads it back after the run finished.
package cover

import (
	"fmt"

	"github.com/forkfuzz/forkfuzz/pkg/osutil"
)

const (
	// DefaultMapSize is the map size used by AFL-style instrumentation unless told otherwise.
	DefaultMapSize = 1 << 16

	// EnvShmID names the environment variable that carries the shared memory segment ID.
	EnvShmID = "__AFL_SHM_ID"
	// EnvMapSize tells instrumentation that supports dynamic maps how large ours is.
	EnvMapSize = "AFL_MAP_SIZE"
)

// Map is a fixed-size array of 8-bit edge hit counters.
type Map struct {
	mem []byte
	shm *osutil.SysvShm
}

// NewMap allocates a map in private memory, for in-process targets.
func NewMap(size int) (*Map, error) {
	if size <= 0 {
		return nil, fmt.Errorf("bad coverage map size %v", size)
	}
	return &Map{mem: make([]byte, size)}, nil
}

// NewSharedMap allocates a map in a System V shared memory segment
// that child processes can attach to via EnvShmID.
func NewSharedMap(size int) (*Map, error) {
	if size <= 0 {
		return nil, fmt.Errorf("bad coverage map size %v", size)
	}
	shm, err := osutil.CreateSysvShm(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create coverage map: %w", err)
	}
	return &Map{mem: shm.Mem, shm: shm}, nil
}

// Bytes returns the underlying counters. The slice stays valid until Close.
func (m *Map) Bytes() []byte {
	return m.mem
}

func (m *Map) Len() int {
	return len(m.mem)
}

// Reset zeroes all counters.
func (m *Map) Reset() {
	clear(m.mem)
}

// Shared reports whether the map lives in shared memory.
func (m *Map) Shared() bool {
	return m.shm != nil
}

// ShmID returns the shared memory segment ID, or -1 for private maps.
func (m *Map) ShmID() int {
	if m.shm == nil {
		return -1
	}
	return m.shm.ID
}

// Env returns environment entries that point instrumented targets at the map.
func (m *Map) Env() []string {
	if m.shm == nil {
		return nil
	}
	return []string{
		fmt.Sprintf("%v=%v", EnvShmID, m.shm.ID),
		fmt.Sprintf("%v=%v", EnvMapSize, len(m.mem)),
	}
}

func (m *Map) Close() error {
	if m.shm == nil {
		return nil
	}
	err := m.shm.Close()
	m.shm = nil
	m.mem = nil
	return err
}
