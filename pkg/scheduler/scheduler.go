// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package scheduler selects the next corpus input to mutate.
//
// Queue walks the corpus in cycles. At the start of every cycle it scores all inputs
// and orders the cycle by (favored, score, insertion order), so among inputs with equal
// score the earliest inserted one goes first. Inputs that become favored in the middle
// of a cycle move ahead of the rest of that cycle. Minimizer marks a small favored subset of
// the corpus that still covers every known edge, preferring short and fast inputs,
// and makes the queue mostly skip the rest.
//
// Schedulers do not own randomness: the caller passes its generator to Next.
package scheduler

import (
	"math/rand"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/corpus"
)

type Scheduler interface {
	// OnAdd is called when the input is added to the corpus (or its metadata is updated).
	OnAdd(item *corpus.Item)
	// OnRemove is called when the input is removed from the corpus.
	OnRemove(id int)
	// Next returns the input to mutate next, or nil if the corpus is empty.
	Next(r *rand.Rand) *corpus.Item
	Len() int
}

const (
	baseScore = 100
	maxScore  = 16 * baseScore
)

type entry struct {
	item    *corpus.Item
	favored bool
	picks   int
	score   int
}

// Queue is the basic cyclic scheduler.
type Queue struct {
	entries map[int]*entry
	cycle   prioQueue[*entry]
	cycles  int
	started bool
	// Inputs with ID >= recentID were added during the previous cycle.
	recentID int
	nextID   int
}

func NewQueue() *Queue {
	return &Queue{entries: make(map[int]*entry)}
}

func (q *Queue) OnAdd(item *corpus.Item) {
	if ent := q.entries[item.ID]; ent != nil {
		ent.item = item
		return
	}
	q.entries[item.ID] = &entry{item: item}
	q.nextID = max(q.nextID, item.ID+1)
}

func (q *Queue) OnRemove(id int) {
	// Stale cycle entries are skipped in Next.
	delete(q.entries, id)
}

func (q *Queue) Len() int {
	return len(q.entries)
}

// Cycles returns the number of completed passes over the corpus.
func (q *Queue) Cycles() int {
	return q.cycles
}

func (q *Queue) Next(r *rand.Rand) *corpus.Item {
	ent := q.next()
	if ent == nil {
		return nil
	}
	return ent.item
}

func (q *Queue) next() *entry {
	if len(q.entries) == 0 {
		return nil
	}
	for {
		if q.cycle.Len() == 0 {
			q.rebuild()
		}
		ent := q.cycle.Pop()
		if q.entries[ent.item.ID] != ent {
			continue
		}
		ent.picks++
		return ent
	}
}

// Score returns the score the input got at the start of the current cycle.
func (q *Queue) Score(id int) int {
	if ent := q.entries[id]; ent != nil {
		return ent.score
	}
	return 0
}

// setFavored updates favored flags. Entries still waiting in the current cycle
// are reordered, so newly favored inputs go first already in this cycle.
func (q *Queue) setFavored(favored map[int]bool) {
	changed := false
	for id, ent := range q.entries {
		if ent.favored != favored[id] {
			ent.favored = favored[id]
			changed = true
		}
	}
	if !changed || q.cycle.Len() == 0 {
		return
	}
	var waiting []*entry
	for q.cycle.Len() != 0 {
		if ent := q.cycle.Pop(); q.entries[ent.item.ID] == ent {
			waiting = append(waiting, ent)
		}
	}
	for _, ent := range waiting {
		q.cycle.Push(ent, ent.priority())
	}
}

func (ent *entry) priority() priority {
	favored := int64(0)
	if ent.favored {
		favored = 1
	}
	return priority{favored, int64(ent.score), -int64(ent.item.ID)}
}

func (q *Queue) rebuild() {
	if q.started {
		q.cycles++
	}
	q.started = true
	var avg averages
	for _, ent := range q.entries {
		avg.add(ent.item)
	}
	avg.finish(len(q.entries))
	q.cycle.Reset()
	for id, ent := range q.entries {
		ent.score = calculateScore(ent, avg, id >= q.recentID)
		q.cycle.Push(ent, ent.priority())
	}
	q.recentID = q.nextID
}

type averages struct {
	execTime time.Duration
	edges    int
	length   int
}

func (avg *averages) add(item *corpus.Item) {
	avg.execTime += item.ExecTime
	avg.edges += edgeCount(item)
	avg.length += item.Len()
}

func (avg *averages) finish(n int) {
	if n == 0 {
		return
	}
	avg.execTime /= time.Duration(n)
	avg.edges /= n
	avg.length /= n
}

func edgeCount(item *corpus.Item) int {
	if len(item.Indexes) != 0 {
		return len(item.Indexes)
	}
	return len(item.Signal)
}

// calculateScore favors fast inputs with large coverage and few bytes,
// inputs that discovered many new edges, and recently added inputs.
func calculateScore(ent *entry, avg averages, recent bool) int {
	item := ent.item
	score := float64(baseScore)

	if t, a := float64(item.ExecTime), float64(avg.execTime); t > 0 && a > 0 {
		switch {
		case t*0.1 > a:
			score = 10
		case t*0.25 > a:
			score = 25
		case t*0.5 > a:
			score = 50
		case t*0.75 > a:
			score = 75
		case t*4 < a:
			score = 300
		case t*3 < a:
			score = 200
		case t*2 < a:
			score = 150
		}
	}

	if e, a := float64(edgeCount(item)), float64(avg.edges); a > 0 {
		switch {
		case e*0.3 > a:
			score *= 3
		case e*0.5 > a:
			score *= 2
		case e*0.75 > a:
			score *= 1.5
		case e*3 < a:
			score *= 0.25
		case e*2 < a:
			score *= 0.5
		case e*1.5 < a:
			score *= 0.75
		}
	}

	if l, a := float64(item.Len()), float64(avg.length); a > 0 {
		switch {
		case l > a*4:
			score *= 0.5
		case l > a*2:
			score *= 0.75
		case l*4 < a:
			score *= 1.5
		}
	}

	switch n := len(item.Novelties); {
	case n >= 16:
		score *= 2
	case n >= 4:
		score *= 1.5
	}
	if recent {
		score *= 2
	}
	if ent.picks == 0 {
		score *= 1.5
	}
	return max(1, min(int(score), maxScore))
}
