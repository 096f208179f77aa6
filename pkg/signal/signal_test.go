// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package signal

import (
	"math/rand"
	"testing"

	"github.com/forkfuzz/forkfuzz/pkg/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDiffMerge(t *testing.T) {
	base := Signal{1: 1, 2: 1 | 4}
	assert.Nil(t, base.Diff(Signal{1: 1, 2: 4}))
	assert.Equal(t, Signal{2: 2, 3: 1}, base.Diff(Signal{1: 1, 2: 2, 3: 1}))
	assert.Equal(t, Signal{2: 4}, base.Intersection(Signal{2: 4 | 8, 5: 1}))

	base.Merge(Signal{2: 2, 3: 1})
	assert.Equal(t, Signal{1: 1, 2: 1 | 2 | 4, 3: 1}, base)

	var empty Signal
	empty.Merge(base)
	assert.Equal(t, base, empty)
}

func TestSerial(t *testing.T) {
	s := Signal{10: 8, 3: 1, 7: 64}
	ser := s.Serialize()
	assert.Equal(t, []uint32{3, 7, 10}, ser.Elems)
	assert.Equal(t, []uint8{1, 64, 8}, ser.Bits)
	assert.Equal(t, s, ser.Deserialize())
	assert.Nil(t, Serial{}.Deserialize())
}

func TestMinimize(t *testing.T) {
	corpus := []Context{
		{Signal: Signal{1: 1, 2: 1}, Context: "small"},
		{Signal: Signal{1: 1}, Context: "subsumed"},
		{Signal: Signal{2: 1, 3: 1}, Context: "adds edge"},
		{Signal: Signal{1: 2}, Context: "adds class"},
		{Signal: Signal{1: 3, 3: 1}, Context: "covered by combination"},
	}
	assert.Equal(t, []any{"small", "adds edge", "adds class"}, Minimize(corpus))
}

func TestStateMonotonic(t *testing.T) {
	r := rand.New(testutil.RandSource(t))
	const size = 64
	st := NewState(size)
	prev := st.Snapshot()
	for i := 0; i < testutil.IterCount(); i++ {
		buf := make([]byte, size)
		for j := 0; j < 4; j++ {
			buf[r.Intn(size)] = 1 << r.Intn(8)
		}
		diff := st.Diff(buf)
		assert.Equal(t, !diff.Empty(), st.HasNew(buf))
		st.Merge(diff)
		assert.False(t, st.HasNew(buf))
		cur := st.Snapshot()
		for e := range cur {
			if cur[e]&prev[e] != prev[e] {
				t.Fatalf("state lost bits for edge %v: %x -> %x", e, prev[e], cur[e])
			}
		}
		prev = cur
	}
}

func TestStateCount(t *testing.T) {
	st := NewState(8)
	assert.Equal(t, 2, st.Merge(Signal{1: 1, 5: 2}))
	assert.Equal(t, 0, st.Merge(Signal{1: 2}))
	assert.Equal(t, 2, st.Count())
	assert.True(t, st.Has(5))
	assert.False(t, st.Has(6))
	assert.False(t, st.Has(100))
	assert.Panics(t, func() { st.HasNew(make([]byte, 4)) })
}
