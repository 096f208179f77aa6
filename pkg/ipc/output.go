// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ipc

import (
	"sync"
)

const outputBufSize = 128 << 10

// outputBuffer keeps the tail of the target output.
// Targets that constantly print must not make us consume unbounded memory.
type outputBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (o *outputBuffer) Write(data []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(data) >= outputBufSize/2 {
		o.buf = append(o.buf[:0], data[len(data)-outputBufSize/2:]...)
		return len(data), nil
	}
	o.buf = append(o.buf, data...)
	if len(o.buf) >= outputBufSize*3/4 {
		n := copy(o.buf, o.buf[len(o.buf)-outputBufSize/2:])
		o.buf = o.buf[:n]
	}
	return len(data), nil
}

// take returns everything written since the previous call.
func (o *outputBuffer) take() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.buf) == 0 {
		return nil
	}
	res := append([]byte(nil), o.buf...)
	o.buf = o.buf[:0]
	return res
}
