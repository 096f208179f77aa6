// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package scheduler

import (
	"math/rand"
	"sort"

	"github.com/forkfuzz/forkfuzz/pkg/corpus"
)

// SkipNonFavored is the percentage of picks of non-favored inputs that are skipped
// while there are favored inputs.
const SkipNonFavored = 95

// Minimizer keeps for every edge the cheapest input (by corpus.Item.Cost) that hits it
// and favors a subset of these inputs that covers all edges.
type Minimizer struct {
	queue     *Queue
	topRated  map[uint32]*corpus.Item
	favored   map[int]bool
	dirty     bool
	skipRatio int
}

func NewMinimizer(queue *Queue) *Minimizer {
	return &Minimizer{
		queue:     queue,
		topRated:  make(map[uint32]*corpus.Item),
		favored:   make(map[int]bool),
		skipRatio: SkipNonFavored,
	}
}

func (m *Minimizer) OnAdd(item *corpus.Item) {
	m.queue.OnAdd(item)
	m.updateScore(item)
}

// updateScore makes item the top rated input for the edges where it is strictly cheaper,
// so for inputs with equal cost the earlier one stays.
func (m *Minimizer) updateScore(item *corpus.Item) {
	cost := item.Cost()
	for _, edge := range edges(item) {
		top := m.topRated[edge]
		if top == nil || top.ID == item.ID || cost < top.Cost() {
			m.topRated[edge] = item
			m.dirty = true
		}
	}
}

func (m *Minimizer) OnRemove(id int) {
	m.queue.OnRemove(id)
	affected := false
	for edge, top := range m.topRated {
		if top.ID == id {
			delete(m.topRated, edge)
			affected = true
		}
	}
	if !affected {
		return
	}
	// Re-elect top rated inputs for the orphaned edges in insertion order.
	ids := make([]int, 0, len(m.queue.entries))
	for id := range m.queue.entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		m.updateScore(m.queue.entries[id].item)
	}
	m.dirty = true
}

func (m *Minimizer) Len() int {
	return m.queue.Len()
}

func (m *Minimizer) Next(r *rand.Rand) *corpus.Item {
	if m.dirty {
		m.cull()
	}
	for {
		ent := m.queue.next()
		if ent == nil {
			return nil
		}
		if len(m.favored) != 0 && !ent.favored && r.Intn(100) < m.skipRatio {
			continue
		}
		return ent.item
	}
}

// Favored returns IDs of the favored inputs in ascending order.
func (m *Minimizer) Favored() []int {
	if m.dirty {
		m.cull()
	}
	res := make([]int, 0, len(m.favored))
	for id := range m.favored {
		res = append(res, id)
	}
	sort.Ints(res)
	return res
}

// cull walks edges in ascending order and favors the top rated input of every edge
// that is not yet covered by the inputs favored before.
func (m *Minimizer) cull() {
	m.dirty = false
	all := make([]uint32, 0, len(m.topRated))
	for edge := range m.topRated {
		all = append(all, edge)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	covered := make(map[uint32]bool)
	favored := make(map[int]bool)
	for _, edge := range all {
		if covered[edge] {
			continue
		}
		top := m.topRated[edge]
		favored[top.ID] = true
		for _, e := range edges(top) {
			covered[e] = true
		}
	}
	m.favored = favored
	m.queue.setFavored(favored)
}

func edges(item *corpus.Item) []uint32 {
	if len(item.Indexes) != 0 {
		return item.Indexes
	}
	return item.Signal.Indexes()
}
