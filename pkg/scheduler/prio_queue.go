// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package scheduler

import (
	"container/heap"
)

// priority is compared lexicographically, higher values are popped first.
type priority []int64

func (p priority) greaterThan(other priority) bool {
	for i := range p {
		if i >= len(other) || p[i] > other[i] {
			return true
		}
		if p[i] < other[i] {
			return false
		}
	}
	return false
}

type prioQueue[T any] struct {
	impl prioQueueImpl[T]
}

func (pq *prioQueue[T]) Len() int {
	return pq.impl.Len()
}

func (pq *prioQueue[T]) Push(item T, prio priority) {
	heap.Push(&pq.impl, &prioQueueItem[T]{item, prio})
}

func (pq *prioQueue[T]) Pop() T {
	if len(pq.impl) == 0 {
		var def T
		return def
	}
	return heap.Pop(&pq.impl).(*prioQueueItem[T]).value
}

func (pq *prioQueue[T]) Reset() {
	pq.impl = nil
}

// The implementation below is based on the example provided
// by https://pkg.go.dev/container/heap.

type prioQueueItem[T any] struct {
	value T
	prio  priority
}

type prioQueueImpl[T any] []*prioQueueItem[T]

func (pq prioQueueImpl[T]) Len() int { return len(pq) }

func (pq prioQueueImpl[T]) Less(i, j int) bool {
	return pq[i].prio.greaterThan(pq[j].prio)
}

func (pq prioQueueImpl[T]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
}

func (pq *prioQueueImpl[T]) Push(x any) {
	*pq = append(*pq, x.(*prioQueueItem[T]))
}

func (pq *prioQueueImpl[T]) Pop() any {
	n := len(*pq)
	item := (*pq)[n-1]
	(*pq)[n-1] = nil
	*pq = (*pq)[:n-1]
	return item
}
