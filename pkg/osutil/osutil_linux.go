// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"fmt"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func setPdeathsig(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = new(syscall.SysProcAttr)
	}
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}

// SysvShm is a System V shared memory segment attached to the current process.
// Instrumented targets locate it by its ID.
type SysvShm struct {
	ID  int
	Mem []byte
}

// CreateSysvShm allocates a private segment of the given size and attaches it.
func CreateSysvShm(size int) (*SysvShm, error) {
	if size <= 0 {
		return nil, fmt.Errorf("bad shared memory size %v", size)
	}
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|unix.IPC_EXCL|0600)
	if err != nil {
		return nil, fmt.Errorf("shmget(%v) failed: %w", size, err)
	}
	mem, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, fmt.Errorf("shmat(%v) failed: %w", id, err)
	}
	return &SysvShm{ID: id, Mem: mem[:size]}, nil
}

// Close detaches the segment and marks it for removal.
func (shm *SysvShm) Close() error {
	err1 := unix.SysvShmDetach(shm.Mem)
	_, err2 := unix.SysvShmCtl(shm.ID, unix.IPC_RMID, nil)
	shm.Mem = nil
	if err1 != nil {
		return fmt.Errorf("shmdt failed: %w", err1)
	}
	if err2 != nil {
		return fmt.Errorf("shmctl(IPC_RMID) failed: %w", err2)
	}
	return nil
}

// AttachSysvShm attaches an existing segment, as an instrumented target does.
func AttachSysvShm(id int) ([]byte, error) {
	mem, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shmat(%v) failed: %w", id, err)
	}
	return mem, nil
}
