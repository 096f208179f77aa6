// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package observer extracts per-execution signals (coverage, time) for feedback evaluation.
package observer

import (
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/cover"
	"github.com/forkfuzz/forkfuzz/pkg/ipc"
)

// Observer is notified around every execution.
type Observer interface {
	Name() string
	PreExec()
	PostExec(res *ipc.Result)
}

// MapObserver exposes the coverage map of the last execution.
// It clears the map before every execution so that the map reflects exactly one run.
type MapObserver struct {
	name      string
	cmap      *cover.Map
	size      int
	hitcounts bool
}

func NewMapObserver(name string, cmap *cover.Map) *MapObserver {
	return &MapObserver{name: name, cmap: cmap, size: cmap.Len()}
}

// NewHitcountsMapObserver returns an observer that buckets raw counters into
// hit count classes after every execution.
func NewHitcountsMapObserver(name string, cmap *cover.Map) *MapObserver {
	obs := NewMapObserver(name, cmap)
	obs.hitcounts = true
	return obs
}

func (obs *MapObserver) Name() string {
	return obs.name
}

// Limit restricts the observed part of the map to the first size entries
// (targets may report a smaller map than allocated).
func (obs *MapObserver) Limit(size int) {
	if size > 0 && size <= obs.cmap.Len() {
		obs.size = size
	}
}

func (obs *MapObserver) PreExec() {
	obs.cmap.Reset()
}

func (obs *MapObserver) PostExec(res *ipc.Result) {
	if obs.hitcounts {
		cover.Classify(obs.Map())
	}
}

// Map returns the observed map. It is valid until the next execution.
func (obs *MapObserver) Map() []byte {
	return obs.cmap.Bytes()[:obs.size]
}

// Len returns the size of the observed map.
func (obs *MapObserver) Len() int {
	return obs.size
}

// Indexes returns the edges hit by the last execution.
func (obs *MapObserver) Indexes() []uint32 {
	return cover.Indexes(obs.Map())
}

// Count returns the number of edges hit by the last execution.
func (obs *MapObserver) Count() int {
	return cover.Count(obs.Map())
}

// TimeObserver records the wall clock duration of the last execution
// as measured by the executor around the target run.
type TimeObserver struct {
	name string
	last time.Duration
}

func NewTimeObserver(name string) *TimeObserver {
	return &TimeObserver{name: name}
}

func (obs *TimeObserver) Name() string {
	return obs.name
}

func (obs *TimeObserver) PreExec() {
	obs.last = 0
}

func (obs *TimeObserver) PostExec(res *ipc.Result) {
	obs.last = res.Elapsed
}

func (obs *TimeObserver) Last() time.Duration {
	return obs.last
}

// Set notifies a group of observers in order.
type Set []Observer

func (set Set) PreExec() {
	for _, obs := range set {
		obs.PreExec()
	}
}

func (set Set) PostExec(res *ipc.Result) {
	for _, obs := range set {
		obs.PostExec(res)
	}
}

// Find returns the observer with the given name, or nil.
func (set Set) Find(name string) Observer {
	for _, obs := range set {
		if obs.Name() == name {
			return obs
		}
	}
	return nil
}
