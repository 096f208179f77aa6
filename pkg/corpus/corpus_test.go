// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/hash"
	"github.com/forkfuzz/forkfuzz/pkg/ipc"
	"github.com/forkfuzz/forkfuzz/pkg/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorpusOperation(t *testing.T) {
	corpus := New("queue")
	item0, err := corpus.Add([]byte("AA"), Meta{Parent: -1})
	require.NoError(t, err)
	assert.Equal(t, 0, item0.ID)
	assert.False(t, item0.Found.IsZero())

	item1, err := corpus.Add([]byte("BA"), Meta{Parent: 0, ExecTime: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 1, item1.ID)

	_, err = corpus.Add([]byte("AA"), Meta{})
	assert.ErrorIs(t, err, ErrDuplicate)

	assert.True(t, corpus.Contains([]byte("BA")))
	assert.False(t, corpus.Contains([]byte("CA")))
	assert.Equal(t, item1, corpus.Item(1))
	assert.Nil(t, corpus.Item(2))
	assert.Equal(t, []*Item{item0, item1}, corpus.Items())
	assert.Equal(t, Stats{Inputs: 2, Bytes: 4, NextID: 2}, corpus.Stats())

	require.NoError(t, corpus.Remove(0))
	assert.Error(t, corpus.Remove(0))
	assert.Equal(t, 1, corpus.Len())

	// IDs are never reused.
	item2, err := corpus.Add([]byte("AA"), Meta{})
	require.NoError(t, err)
	assert.Equal(t, 2, item2.ID)
	assert.Equal(t, Stats{Inputs: 2, Bytes: 4, NextID: 3}, corpus.Stats())
}

func TestCorpusCopiesData(t *testing.T) {
	corpus := New("queue")
	data := []byte("abc")
	item, err := corpus.Add(data, Meta{})
	require.NoError(t, err)
	data[0] = 'x'
	assert.Equal(t, []byte("abc"), item.Data)
}

func TestUpdateMeta(t *testing.T) {
	corpus := New("queue")
	old, err := corpus.Add([]byte("A"), Meta{ExecTime: time.Second})
	require.NoError(t, err)
	updated, err := corpus.UpdateMeta(old.ID, Meta{ExecTime: time.Millisecond, Indexes: []uint32{1}})
	require.NoError(t, err)
	// Items are immutable, the old version stays as is.
	assert.Equal(t, time.Second, old.ExecTime)
	assert.Equal(t, time.Millisecond, corpus.Item(old.ID).ExecTime)
	assert.Equal(t, updated, corpus.Items()[0])
	_, err = corpus.UpdateMeta(10, Meta{})
	assert.Error(t, err)
}

func TestCost(t *testing.T) {
	item := &Item{Data: []byte("abcd"), Meta: Meta{ExecTime: 10 * time.Microsecond}}
	assert.Equal(t, uint64(40), item.Cost())
	// Zero length and zero time still have a positive cost.
	assert.Equal(t, uint64(1), (&Item{}).Cost())
}

func TestMinimize(t *testing.T) {
	corpus := New("queue")
	add := func(data string, exec time.Duration, sig signal.Signal) *Item {
		item, err := corpus.Add([]byte(data), Meta{ExecTime: exec, Signal: sig})
		require.NoError(t, err)
		return item
	}
	big := add("AAAAAAAA", time.Millisecond, signal.Signal{1: 1, 2: 1, 3: 1})
	small1 := add("B", time.Millisecond, signal.Signal{1: 1, 2: 1})
	small2 := add("C", time.Millisecond, signal.Signal{3: 1})
	dup := add("D", time.Millisecond, signal.Signal{3: 1})
	hits := add("EEEE", time.Millisecond, signal.Signal{1: 2})

	removed := corpus.Minimize()
	assert.Equal(t, []int{big.ID, dup.ID}, removed)
	assert.Equal(t, []*Item{small1, small2, hits}, corpus.Items())
	// Minimization of a minimal corpus is a no-op.
	assert.Empty(t, corpus.Minimize())
}

func TestMinimizeNoSignal(t *testing.T) {
	corpus := New("queue")
	_, err := corpus.Add([]byte("AAA"), Meta{})
	require.NoError(t, err)
	_, err = corpus.Add([]byte("B"), Meta{})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, corpus.Minimize())
	assert.Equal(t, 1, corpus.Len())
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	corpus, err := Open("queue", dir)
	require.NoError(t, err)
	meta := Meta{
		ExecTime:  123 * time.Microsecond,
		Indexes:   []uint32{1, 5},
		Novelties: []uint32{5},
		Signal:    signal.Signal{1: 1, 5: 4},
		Status:    ipc.StatusCrashed,
		Title:     "SEGV",
		Parent:    3,
		Session:   "s1",
	}
	for _, data := range []string{"first", "second", "third"} {
		_, err := corpus.Add([]byte(data), meta)
		require.NoError(t, err)
	}
	require.NoError(t, corpus.Remove(1))
	assert.FileExists(t, filepath.Join(dir, hash.String([]byte("first"))))
	assert.NoFileExists(t, filepath.Join(dir, hash.String([]byte("second"))))

	// A file dropped into the directory by the user is picked up as well,
	// a file with a mismatching name is not.
	require.NoError(t, os.WriteFile(filepath.Join(dir, hash.String([]byte("user"))), []byte("user"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, hash.String([]byte("bad"))), []byte("not bad"), 0644))

	loaded, err := Open("queue", dir)
	require.NoError(t, err)
	items, err := loaded.Load()
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []byte("first"), items[0].Data)
	assert.Equal(t, 0, items[0].ID)
	assert.Equal(t, []byte("third"), items[1].Data)
	assert.Equal(t, 2, items[1].ID)
	assert.Equal(t, []byte("user"), items[2].Data)
	assert.Equal(t, 3, items[2].ID)
	assert.Equal(t, -1, items[2].Parent)
	assert.Equal(t, meta.Signal, items[0].Signal)
	assert.Equal(t, meta.Indexes, items[0].Indexes)
	assert.Equal(t, meta.Title, items[0].Title)
	assert.Equal(t, meta.ExecTime, items[0].ExecTime)
	assert.Equal(t, meta.Status, items[0].Status)

	// The next input continues numbering.
	item, err := loaded.Add([]byte("fourth"), Meta{})
	require.NoError(t, err)
	assert.Equal(t, 4, item.ID)
}

func TestConcurrentAdd(t *testing.T) {
	corpus := New("queue")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				corpus.Add([]byte{byte(i), byte(j)}, Meta{})
				corpus.Items()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 800, corpus.Len())
	for i, item := range corpus.Items() {
		assert.Equal(t, i, item.ID)
	}
}
