// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !linux

package osutil

import (
	"fmt"
	"os/exec"
	"runtime"
)

func setPdeathsig(cmd *exec.Cmd) {
}

type SysvShm struct {
	ID  int
	Mem []byte
}

func CreateSysvShm(size int) (*SysvShm, error) {
	return nil, fmt.Errorf("System V shared memory is not supported on %v", runtime.GOOS)
}

func (shm *SysvShm) Close() error {
	return nil
}

func AttachSysvShm(id int) ([]byte, error) {
	return nil, fmt.Errorf("System V shared memory is not supported on %v", runtime.GOOS)
}
