// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !unix

package ipc

import (
	"fmt"
	"runtime"

	"github.com/forkfuzz/forkfuzz/pkg/cover"
)

type Forkserver struct {
	Simple
}

func NewForkserver(cfg *Config, cmap *cover.Map) (*Forkserver, error) {
	return nil, fmt.Errorf("fork server is not supported on %v, set use_fork_server=false", runtime.GOOS)
}
