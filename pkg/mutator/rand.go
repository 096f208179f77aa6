// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mutator

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"math/rand"
)

type randGen struct {
	*rand.Rand
}

func (r *randGen) bin() bool {
	return r.Intn(2) == 0
}

func (r *randGen) oneOf(n int) bool {
	return r.Intn(n) == 0
}

// nOutOf returns true n out of outOf times.
func (r *randGen) nOutOf(n, outOf int) bool {
	if n <= 0 || n >= outOf {
		panic("bad probability")
	}
	return r.Intn(outOf) < n
}

// randRange returns a random int in range [begin..end].
func (r *randGen) randRange(begin, end int) int {
	return begin + r.Intn(end-begin+1)
}

const (
	blockSmall  = 32
	blockMedium = 128
	blockLarge  = 1500
	blockXLarge = 32768
)

// blockLen returns a length in range [1..limit] for block operations.
// Short blocks are much more likely than long ones.
func (r *randGen) blockLen(limit int) int {
	lo, hi := 1, blockSmall
	switch r.Intn(4) {
	case 0, 1:
	case 2:
		lo, hi = blockSmall, blockMedium
	default:
		if r.oneOf(10) {
			lo, hi = blockLarge, blockXLarge
		} else {
			lo, hi = blockMedium, blockLarge
		}
	}
	if lo >= limit {
		lo = 1
	}
	return r.randRange(lo, min(hi, limit))
}

func loadInt(data []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(data[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(data))
	case 4:
		return uint64(binary.LittleEndian.Uint32(data))
	case 8:
		return binary.LittleEndian.Uint64(data)
	default:
		panic(fmt.Sprintf("loadInt: bad size %v", size))
	}
}

func storeInt(data []byte, v uint64, size int) {
	switch size {
	case 1:
		data[0] = uint8(v)
	case 2:
		binary.LittleEndian.PutUint16(data, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(data, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(data, v)
	default:
		panic(fmt.Sprintf("storeInt: bad size %v", size))
	}
}

func swapInt(v uint64, size int) uint64 {
	switch size {
	case 1:
		return v
	case 2:
		return uint64(bits.ReverseBytes16(uint16(v)))
	case 4:
		return uint64(bits.ReverseBytes32(uint32(v)))
	case 8:
		return bits.ReverseBytes64(v)
	default:
		panic(fmt.Sprintf("swapInt: bad size %v", size))
	}
}
