// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ipc

import (
	"fmt"
)

// Fork server file descriptors in the target.
const (
	forkSrvCtlFd    = 198
	forkSrvStatusFd = forkSrvCtlFd + 1
)

// Option bits of the fork server hello, as defined by AFL++ instrumentation.
const (
	fsOptEnabled   = 0x80000001
	fsOptMapSize   = 0x40000000
	fsOptSnapshot  = 0x20000000
	fsOptAutoDict  = 0x10000000
	fsOptShmemFuzz = 0x01000000
	fsOptError     = 0xf800008f

	maxAutoDictSize = 128 << 10
)

// FsOptMapSize encodes map size into the hello options.
func FsOptMapSize(size int) uint32 {
	if size <= 1 || size > 1<<23 {
		return 0
	}
	return fsOptMapSize | uint32(size-1)<<1
}

// Hello option values that test targets and tools may want to send.
const (
	FsOptEnabled  = fsOptEnabled
	FsOptAutoDict = fsOptAutoDict
)

// ParseAutoDict parses the auto dictionary blob: a sequence of length-prefixed tokens.
func ParseAutoDict(data []byte) ([][]byte, error) {
	var res [][]byte
	for pos := 0; pos < len(data); {
		n := int(data[pos])
		pos++
		if n == 0 || pos+n > len(data) {
			return nil, fmt.Errorf("corrupted auto dictionary at offset %v", pos-1)
		}
		res = append(res, append([]byte(nil), data[pos:pos+n]...))
		pos += n
	}
	return res, nil
}

func forkserverErrorString(code uint32) string {
	switch code {
	case 1:
		return "shmget() failed"
	case 2:
		return "shmat() failed"
	case 4:
		return "mmap() failed"
	case 8:
		return "target map size is too large"
	case 16:
		return "shared memory input delivery failed"
	case 32:
		return "old AFL++ instrumentation"
	}
	return fmt.Sprintf("code %v", code)
}
