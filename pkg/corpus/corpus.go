// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package corpus stores the inputs the fuzzer decided to keep.
package corpus

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/db"
	"github.com/forkfuzz/forkfuzz/pkg/hash"
	"github.com/forkfuzz/forkfuzz/pkg/ipc"
	"github.com/forkfuzz/forkfuzz/pkg/signal"
)

// Meta is the information derived from executing an input.
type Meta struct {
	ExecTime time.Duration `json:"exec_time"`
	// Indexes are all edges the input hits.
	Indexes []uint32 `json:"indexes,omitempty"`
	// Novelties are the edges the input hit for the first time.
	Novelties []uint32 `json:"novelties,omitempty"`
	// Signal is the coverage fingerprint (edges and hit count classes).
	Signal signal.Signal `json:"signal,omitempty"`
	Status ipc.Status    `json:"status"`
	// Title is the crash title for objectives.
	Title string    `json:"title,omitempty"`
	Found time.Time `json:"found"`
	// Parent is the ID of the input this one was mutated from, -1 for seeds.
	Parent  int    `json:"parent"`
	Session string `json:"session,omitempty"`
}

// Item objects are to be treated as immutable, otherwise it's just
// too hard to reason about who sees which version of the metadata.
// When Corpus updates one of its items, it saves a copy of it.
type Item struct {
	// ID is the insertion index; it is never reused within a corpus.
	ID   int
	Sig  hash.Sig
	Data []byte
	Meta
}

func (item *Item) Len() int {
	return len(item.Data)
}

// Cost is the minimization cost of the input: smaller and faster inputs are cheaper.
func (item *Item) Cost() uint64 {
	return uint64(max(item.Len(), 1)) * uint64(max(item.ExecTime, time.Microsecond)/time.Microsecond)
}

// Name is the name of the input file.
func (item *Item) Name() string {
	return item.Sig.String()
}

var ErrDuplicate = errors.New("input is already in the corpus")

// Corpus is an ordered set of unique inputs, optionally mirrored to a directory.
type Corpus struct {
	name   string
	dir    string
	mu     sync.RWMutex
	items  []*Item // in insertion order
	byID   map[int]*Item
	bySig  map[hash.Sig]*Item
	nextID int
	bytes  int
	db     *db.DB
}

// New creates an in-memory corpus.
func New(name string) *Corpus {
	return &Corpus{
		name:  name,
		byID:  make(map[int]*Item),
		bySig: make(map[hash.Sig]*Item),
	}
}

func (corpus *Corpus) Name() string {
	return corpus.name
}

// Add inserts a new input. It returns ErrDuplicate if the same bytes are already present.
// If the input was inserted but could not be persisted, both the item and the error are returned.
func (corpus *Corpus) Add(data []byte, meta Meta) (*Item, error) {
	sig := hash.Hash(data)
	corpus.mu.Lock()
	defer corpus.mu.Unlock()
	if _, ok := corpus.bySig[sig]; ok {
		return nil, ErrDuplicate
	}
	item := &Item{
		ID:   corpus.nextID,
		Sig:  sig,
		Data: append([]byte(nil), data...),
		Meta: meta,
	}
	if item.Found.IsZero() {
		item.Found = time.Now()
	}
	corpus.insert(item)
	if err := corpus.persist(item); err != nil {
		return item, fmt.Errorf("%v: failed to save %v: %w", corpus.name, item.Name(), err)
	}
	return item, nil
}

func (corpus *Corpus) insert(item *Item) {
	corpus.items = append(corpus.items, item)
	corpus.byID[item.ID] = item
	corpus.bySig[item.Sig] = item
	corpus.nextID = max(corpus.nextID, item.ID+1)
	corpus.bytes += item.Len()
}

// UpdateMeta replaces metadata of an existing item.
func (corpus *Corpus) UpdateMeta(id int, meta Meta) (*Item, error) {
	corpus.mu.Lock()
	defer corpus.mu.Unlock()
	old := corpus.byID[id]
	if old == nil {
		return nil, fmt.Errorf("%v: no input with id %v", corpus.name, id)
	}
	item := &Item{
		ID:   old.ID,
		Sig:  old.Sig,
		Data: old.Data,
		Meta: meta,
	}
	corpus.byID[id] = item
	corpus.bySig[item.Sig] = item
	for i, it := range corpus.items {
		if it.ID == id {
			corpus.items[i] = item
			break
		}
	}
	return item, corpus.persistMeta(item)
}

// Remove deletes the input from memory and from disk.
func (corpus *Corpus) Remove(id int) error {
	corpus.mu.Lock()
	defer corpus.mu.Unlock()
	if err := corpus.removeLocked(id); err != nil {
		return err
	}
	return corpus.flush()
}

func (corpus *Corpus) removeLocked(id int) error {
	item := corpus.byID[id]
	if item == nil {
		return fmt.Errorf("%v: no input with id %v", corpus.name, id)
	}
	delete(corpus.byID, id)
	delete(corpus.bySig, item.Sig)
	idx := sort.Search(len(corpus.items), func(i int) bool { return corpus.items[i].ID >= id })
	corpus.items = append(corpus.items[:idx], corpus.items[idx+1:]...)
	corpus.bytes -= item.Len()
	return corpus.unpersist(item)
}

func (corpus *Corpus) Item(id int) *Item {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	return corpus.byID[id]
}

// Contains reports whether an input with the same bytes is present.
func (corpus *Corpus) Contains(data []byte) bool {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	return corpus.bySig[hash.Hash(data)] != nil
}

// Items returns all inputs in insertion order.
func (corpus *Corpus) Items() []*Item {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	return append([]*Item(nil), corpus.items...)
}

func (corpus *Corpus) Len() int {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	return len(corpus.items)
}

type Stats struct {
	Inputs int
	Bytes  int
	// NextID is the ID the next input will get (total inputs ever added).
	NextID int
}

func (corpus *Corpus) Stats() Stats {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	return Stats{
		Inputs: len(corpus.items),
		Bytes:  corpus.bytes,
		NextID: corpus.nextID,
	}
}
