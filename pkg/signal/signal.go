// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package signal provides types for working with coverage feedback signal.
//
// Signal element is an edge index, its value is the set of hit count classes
// (see cover.Bucket) observed for the edge, one bit per class.
package signal

import (
	"slices"
)

type (
	elemType = uint32
	bitsType = uint8
)

// Signal is a sparse edge -> class bits map. It is used as a per-input coverage fingerprint.
type Signal map[elemType]bitsType

// Serial is the flat form of Signal used for persistence.
type Serial struct {
	Elems []uint32 `json:"elems,omitempty"`
	Bits  []uint8  `json:"bits,omitempty"`
}

// FromMap builds a signal from a classified coverage map.
func FromMap(buf []byte) Signal {
	var s Signal
	for i, v := range buf {
		if v == 0 {
			continue
		}
		if s == nil {
			s = make(Signal)
		}
		s[elemType(i)] = v
	}
	return s
}

func (s Signal) Len() int {
	return len(s)
}

func (s Signal) Empty() bool {
	return len(s) == 0
}

func (s Signal) Copy() Signal {
	if s == nil {
		return nil
	}
	c := make(Signal, len(s))
	for e, b := range s {
		c[e] = b
	}
	return c
}

// Indexes returns the ascending list of edges in the signal.
func (s Signal) Indexes() []uint32 {
	res := make([]uint32, 0, len(s))
	for e := range s {
		res = append(res, e)
	}
	slices.Sort(res)
	return res
}

func (s Signal) Serialize() Serial {
	if s.Empty() {
		return Serial{}
	}
	res := Serial{
		Elems: s.Indexes(),
		Bits:  make([]uint8, len(s)),
	}
	for i, e := range res.Elems {
		res.Bits[i] = s[e]
	}
	return res
}

func (ser Serial) Deserialize() Signal {
	if len(ser.Elems) != len(ser.Bits) {
		panic("corrupted Serial")
	}
	if len(ser.Elems) == 0 {
		return nil
	}
	s := make(Signal, len(ser.Elems))
	for i, e := range ser.Elems {
		s[e] |= ser.Bits[i]
	}
	return s
}

// Diff returns the part of s1 that is not present in s.
func (s Signal) Diff(s1 Signal) Signal {
	var res Signal
	for e, b1 := range s1 {
		if n := b1 &^ s[e]; n != 0 {
			if res == nil {
				res = make(Signal)
			}
			res[e] = n
		}
	}
	return res
}

// Intersection returns the part of s that is also present in s1.
func (s Signal) Intersection(s1 Signal) Signal {
	var res Signal
	for e, b := range s {
		if n := b & s1[e]; n != 0 {
			if res == nil {
				res = make(Signal)
			}
			res[e] = n
		}
	}
	return res
}

func (s *Signal) Merge(s1 Signal) {
	if s1.Empty() {
		return
	}
	if *s == nil {
		*s = make(Signal, len(s1))
	}
	s0 := *s
	for e, b := range s1 {
		s0[e] |= b
	}
}

// Context pairs a signal with an arbitrary payload for Minimize.
type Context struct {
	Signal  Signal
	Context any
}

// Minimize returns the payloads of a subset of corpus that covers the same signal.
// The corpus must be ordered from the most to the least preferred entry:
// an entry is kept only if it adds something to the entries kept before it.
// The result preserves corpus order and depends only on the input.
func Minimize(corpus []Context) []any {
	covered := make(Signal)
	var res []any
	for _, inp := range corpus {
		if covered.Diff(inp.Signal).Empty() {
			continue
		}
		covered.Merge(inp.Signal)
		res = append(res, inp.Context)
	}
	return res
}
