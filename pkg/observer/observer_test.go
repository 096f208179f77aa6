// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package observer

import (
	"testing"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/cover"
	"github.com/forkfuzz/forkfuzz/pkg/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservers(t *testing.T) {
	cmap, err := cover.NewMap(8)
	require.NoError(t, err)
	edges := NewHitcountsMapObserver("edges", cmap)
	timer := NewTimeObserver("time")
	set := Set{edges, timer}

	cmap.Bytes()[0] = 9 // leftover from a previous run
	set.PreExec()
	assert.Equal(t, 0, edges.Count())
	assert.Zero(t, timer.Last())

	cmap.Bytes()[2] = 3
	cmap.Bytes()[7] = 200
	set.PostExec(&ipc.Result{Elapsed: 5 * time.Millisecond})
	assert.Equal(t, []byte{0, 0, 4, 0, 0, 0, 0, 128}, edges.Map())
	assert.Equal(t, []uint32{2, 7}, edges.Indexes())
	assert.Equal(t, 5*time.Millisecond, timer.Last())

	assert.Equal(t, timer, set.Find("time"))
	assert.Nil(t, set.Find("nope"))
}

func TestRawMapObserver(t *testing.T) {
	cmap, err := cover.NewMap(8)
	require.NoError(t, err)
	obs := NewMapObserver("raw", cmap)
	obs.PreExec()
	cmap.Bytes()[1] = 3
	cmap.Bytes()[6] = 1
	obs.PostExec(&ipc.Result{})
	assert.Equal(t, byte(3), obs.Map()[1])
	obs.Limit(4)
	assert.Equal(t, 4, obs.Len())
	assert.Equal(t, []uint32{1}, obs.Indexes())
	obs.Limit(100)
	assert.Equal(t, 4, obs.Len())
}
