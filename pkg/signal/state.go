// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package signal

import (
	"fmt"
)

// State is the accumulated coverage of all executions evaluated against it.
// It only ever grows. It is dense (one byte per map entry) since it is consulted
// after every execution.
type State struct {
	seen  []byte
	edges int
}

func NewState(size int) *State {
	return &State{seen: make([]byte, size)}
}

// Len returns the map size the state was created for.
func (st *State) Len() int {
	return len(st.seen)
}

// Count returns the number of distinct edges ever merged.
func (st *State) Count() int {
	return st.edges
}

// Has reports whether any class of the edge was merged.
func (st *State) Has(edge uint32) bool {
	return int(edge) < len(st.seen) && st.seen[edge] != 0
}

// HasNew reports whether the classified map buf contains anything not in the state.
func (st *State) HasNew(buf []byte) bool {
	st.check(buf)
	for i, v := range buf {
		if v&^st.seen[i] != 0 {
			return true
		}
	}
	return false
}

// Diff returns the edges and classes of the classified map buf that are not in the state.
func (st *State) Diff(buf []byte) Signal {
	st.check(buf)
	var res Signal
	for i, v := range buf {
		if n := v &^ st.seen[i]; n != 0 {
			if res == nil {
				res = make(Signal)
			}
			res[elemType(i)] = n
		}
	}
	return res
}

// Merge adds s to the state and returns the number of edges seen for the first time.
func (st *State) Merge(s Signal) int {
	added := 0
	for e, b := range s {
		if int(e) >= len(st.seen) {
			panic(fmt.Sprintf("edge %v is out of map of size %v", e, len(st.seen)))
		}
		if st.seen[e] == 0 && b != 0 {
			added++
		}
		st.seen[e] |= b
	}
	st.edges += added
	return added
}

// Snapshot returns a copy of the state.
func (st *State) Snapshot() []byte {
	return append([]byte(nil), st.seen...)
}

func (st *State) check(buf []byte) {
	if len(buf) != len(st.seen) {
		panic(fmt.Sprintf("coverage map size %v does not match state size %v", len(buf), len(st.seen)))
	}
}
