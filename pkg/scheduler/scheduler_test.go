// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package scheduler

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/corpus"
	"github.com/forkfuzz/forkfuzz/pkg/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrioQueueOrder(t *testing.T) {
	pq := prioQueue[int]{}
	pq.Push(1, priority{1})
	pq.Push(3, priority{3})
	pq.Push(2, priority{2, 1})
	pq.Push(4, priority{2, 0})

	assert.Equal(t, 3, pq.Pop())
	assert.Equal(t, 2, pq.Pop())
	assert.Equal(t, 4, pq.Pop())
	assert.Equal(t, 1, pq.Pop())
	assert.Zero(t, pq.Pop())
	assert.Zero(t, pq.Len())
}

func makeItem(id, size int, exec time.Duration, edges ...uint32) *corpus.Item {
	return &corpus.Item{
		ID:   id,
		Data: bytes.Repeat([]byte{'A'}, size),
		Meta: corpus.Meta{ExecTime: exec, Indexes: edges},
	}
}

func picks(s Scheduler, r *rand.Rand, n int) []int {
	var res []int
	for i := 0; i < n; i++ {
		res = append(res, s.Next(r).ID)
	}
	return res
}

func TestQueueTieBreak(t *testing.T) {
	q := NewQueue()
	r := rand.New(testutil.RandSource(t))
	assert.Nil(t, q.Next(r))
	for id := 0; id < 3; id++ {
		q.OnAdd(makeItem(id, 4, time.Millisecond, 1))
	}
	// Equal scores: insertion order, cycle after cycle.
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, picks(q, r, 7))
	assert.Equal(t, 2, q.Cycles())
}

func TestQueueScore(t *testing.T) {
	q := NewQueue()
	r := rand.New(testutil.RandSource(t))
	q.OnAdd(makeItem(0, 4, 10*time.Millisecond, 1))
	q.OnAdd(makeItem(1, 4, time.Millisecond, 1))
	assert.Equal(t, []int{1, 0}, picks(q, r, 2))
	assert.Greater(t, q.Score(1), q.Score(0))
	assert.Zero(t, q.Score(5))
}

func TestQueueNewInputs(t *testing.T) {
	q := NewQueue()
	r := rand.New(testutil.RandSource(t))
	q.OnAdd(makeItem(0, 4, time.Millisecond, 1))
	q.OnAdd(makeItem(1, 4, time.Millisecond, 1))
	assert.Equal(t, 0, q.Next(r).ID)
	// Inputs added mid-cycle join the next cycle.
	q.OnAdd(makeItem(2, 4, time.Millisecond, 1))
	assert.Equal(t, 1, q.Next(r).ID)
	// The new input is both recent and never picked.
	assert.Equal(t, 2, q.Next(r).ID)
}

func TestQueueRemove(t *testing.T) {
	q := NewQueue()
	r := rand.New(testutil.RandSource(t))
	for id := 0; id < 4; id++ {
		q.OnAdd(makeItem(id, 4, time.Millisecond, 1))
	}
	assert.Equal(t, 0, q.Next(r).ID)
	q.OnRemove(1)
	q.OnRemove(3)
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, []int{2, 0, 2}, picks(q, r, 3))
	q.OnRemove(0)
	q.OnRemove(2)
	assert.Nil(t, q.Next(r))
}

func TestQueueFavoredMidCycle(t *testing.T) {
	q := NewQueue()
	r := rand.New(testutil.RandSource(t))
	for id := 0; id < 4; id++ {
		q.OnAdd(makeItem(id, 4, time.Millisecond, 1))
	}
	assert.Equal(t, 0, q.Next(r).ID)
	q.setFavored(map[int]bool{3: true})
	assert.Equal(t, []int{3, 1, 2}, picks(q, r, 3))
	assert.Equal(t, 0, q.Cycles())
	assert.Equal(t, []int{3, 0, 1, 2}, picks(q, r, 4))
	assert.Equal(t, 1, q.Cycles())
}

func TestMinimizerFavored(t *testing.T) {
	m := NewMinimizer(NewQueue())
	m.OnAdd(makeItem(0, 10, time.Millisecond, 1, 2))
	m.OnAdd(makeItem(1, 1, time.Millisecond, 1))
	m.OnAdd(makeItem(2, 1, time.Millisecond, 2))
	// Same cost as input 1, the earlier input stays top rated.
	m.OnAdd(makeItem(3, 1, time.Millisecond, 1))
	assert.Equal(t, []int{1, 2}, m.Favored())

	m.OnRemove(1)
	assert.Equal(t, []int{2, 3}, m.Favored())
	assert.Equal(t, 3, m.Len())

	// A cheaper input covering both edges takes over.
	m.OnAdd(makeItem(4, 1, time.Microsecond, 1, 2))
	assert.Equal(t, []int{4}, m.Favored())
}

func TestMinimizerSkipsNonFavored(t *testing.T) {
	m := NewMinimizer(NewQueue())
	m.OnAdd(makeItem(0, 1, time.Millisecond, 1))
	for id := 1; id < 10; id++ {
		m.OnAdd(makeItem(id, 100, time.Millisecond, 1))
	}
	r := rand.New(testutil.RandSource(t))
	counts := make(map[int]int)
	for _, id := range picks(m, r, 1000) {
		counts[id]++
	}
	// Input 0 is picked once per cycle, each of the others only 5% of the cycles.
	assert.Greater(t, counts[0], 500)
}

func TestSchedulerDeterminism(t *testing.T) {
	run := func(seed int64) []int {
		m := NewMinimizer(NewQueue())
		for id := 0; id < 20; id++ {
			m.OnAdd(makeItem(id, 1+id%7, time.Duration(1+id%3)*time.Millisecond, uint32(id%5), uint32(id%11)))
		}
		return picks(m, rand.New(rand.NewSource(seed)), 200)
	}
	assert.Equal(t, run(1), run(1))
}
