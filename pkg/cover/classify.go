// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package cover

// bucketTable maps a raw hit count to its hit count class.
// Classes are 1, 2, 3, 4-7, 8-15, 16-31, 32-127, 128+; each class gets its own bit,
// so that classes seen for one edge can be accumulated with a bitwise OR.
var bucketTable = func() [256]byte {
	var t [256]byte
	for v := 1; v < 256; v++ {
		switch {
		case v == 1:
			t[v] = 1
		case v == 2:
			t[v] = 2
		case v == 3:
			t[v] = 4
		case v <= 7:
			t[v] = 8
		case v <= 15:
			t[v] = 16
		case v <= 31:
			t[v] = 32
		case v <= 127:
			t[v] = 64
		default:
			t[v] = 128
		}
	}
	return t
}()

// Bucket returns the hit count class bit of a raw counter value.
func Bucket(v byte) byte {
	return bucketTable[v]
}

// Classify replaces raw counters with their hit count class in place.
func Classify(buf []byte) {
	for i, v := range buf {
		if v != 0 {
			buf[i] = bucketTable[v]
		}
	}
}

// Indexes returns the ascending list of edges with non-zero counters.
func Indexes(buf []byte) []uint32 {
	var res []uint32
	for i, v := range buf {
		if v != 0 {
			res = append(res, uint32(i))
		}
	}
	return res
}

// Count returns the number of edges with non-zero counters.
func Count(buf []byte) int {
	n := 0
	for _, v := range buf {
		if v != 0 {
			n++
		}
	}
	return n
}
