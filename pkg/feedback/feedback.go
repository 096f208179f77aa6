// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package feedback decides whether an executed input is worth keeping.
//
// Leaves (Feedback) look at observers and at the execution result; Expr combines them
// into a boolean tree. Leaves that track coverage commit new coverage into their
// signal.State as soon as they report the input as interesting, so evaluating the
// same input twice in a row never finds it interesting the second time.
package feedback

import (
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/corpus"
	"github.com/forkfuzz/forkfuzz/pkg/ipc"
	"github.com/forkfuzz/forkfuzz/pkg/observer"
	"github.com/forkfuzz/forkfuzz/pkg/signal"
	"github.com/forkfuzz/forkfuzz/pkg/stat"
)

type Feedback interface {
	Name() string
	// IsInteresting is called after the observers processed the execution.
	IsInteresting(res *ipc.Result) bool
	// AppendMetadata fills metadata of the input that is about to be stored
	// and resets per-execution state.
	AppendMetadata(meta *corpus.Meta)
	// Discard resets per-execution state of an input that is not stored.
	Discard()
}

// MapFeedback reports inputs that hit an edge or a hit count class not yet present in the state.
type MapFeedback struct {
	name    string
	obs     *observer.MapObserver
	state   *signal.State
	indexes bool
	pending signal.Signal
}

// NewMapFeedback creates a coverage feedback over the observer map.
// If trackIndexes is set, stored inputs get the full list of their edges in metadata.
func NewMapFeedback(name string, obs *observer.MapObserver, state *signal.State, trackIndexes bool) *MapFeedback {
	if obs.Len() != state.Len() {
		panic("map observer and coverage state sizes differ")
	}
	return &MapFeedback{
		name:    name,
		obs:     obs,
		state:   state,
		indexes: trackIndexes,
	}
}

func (fb *MapFeedback) Name() string {
	return fb.name
}

func (fb *MapFeedback) IsInteresting(res *ipc.Result) bool {
	fb.pending = fb.state.Diff(fb.obs.Map())
	if fb.pending.Empty() {
		return false
	}
	fb.state.Merge(fb.pending)
	return true
}

func (fb *MapFeedback) AppendMetadata(meta *corpus.Meta) {
	meta.Signal = signal.FromMap(fb.obs.Map())
	if fb.indexes {
		meta.Indexes = fb.obs.Indexes()
	}
	meta.Novelties = fb.pending.Indexes()
	fb.pending = nil
}

func (fb *MapFeedback) Discard() {
	fb.pending = nil
}

// State returns the coverage state the feedback commits to.
func (fb *MapFeedback) State() *signal.State {
	return fb.state
}

// DefaultTimeFactor is the deviation from the average execution time
// that makes an input interesting for a sensitive TimeFeedback.
const DefaultTimeFactor = 4.0

// timeWarmup is the number of executions needed before the average is trusted.
const timeWarmup = 100

// TimeFeedback attaches execution time to stored inputs.
// If sensitive, it also reports inputs that run much faster or slower than average.
type TimeFeedback struct {
	name      string
	obs       *observer.TimeObserver
	avg       *stat.AverageValue[time.Duration]
	sensitive bool
	factor    float64
}

// NewTimeFeedback creates a time feedback. avg is the running mean of execution times,
// it is maintained by the caller. factor <= 1 disables sensitivity.
func NewTimeFeedback(name string, obs *observer.TimeObserver, avg *stat.AverageValue[time.Duration],
	factor float64) *TimeFeedback {
	return &TimeFeedback{
		name:      name,
		obs:       obs,
		avg:       avg,
		sensitive: factor > 1 && avg != nil,
		factor:    factor,
	}
}

func (fb *TimeFeedback) Name() string {
	return fb.name
}

func (fb *TimeFeedback) IsInteresting(res *ipc.Result) bool {
	if !fb.sensitive || res.Status != ipc.StatusNormal || fb.avg.Count() < timeWarmup {
		return false
	}
	avg := float64(fb.avg.Value())
	last := float64(fb.obs.Last())
	if avg <= 0 || last <= 0 {
		return false
	}
	return last > avg*fb.factor || last*fb.factor < avg
}

func (fb *TimeFeedback) AppendMetadata(meta *corpus.Meta) {
	meta.ExecTime = fb.obs.Last()
}

func (fb *TimeFeedback) Discard() {}

// StatusFeedback reports executions that ended with the given status.
type StatusFeedback struct {
	name   string
	status ipc.Status
	hit    bool
}

// NewCrashFeedback reports crashed executions.
func NewCrashFeedback() *StatusFeedback {
	return &StatusFeedback{name: "crash", status: ipc.StatusCrashed}
}

// NewNormalFeedback reports executions that finished without a crash or timeout.
func NewNormalFeedback() *StatusFeedback {
	return &StatusFeedback{name: "normal", status: ipc.StatusNormal}
}

// NewTimeoutFeedback reports executions killed on timeout.
func NewTimeoutFeedback() *StatusFeedback {
	return &StatusFeedback{name: "timeout", status: ipc.StatusTimedOut}
}

func (fb *StatusFeedback) Name() string {
	return fb.name
}

func (fb *StatusFeedback) IsInteresting(res *ipc.Result) bool {
	fb.hit = res.Status == fb.status
	return fb.hit
}

func (fb *StatusFeedback) AppendMetadata(meta *corpus.Meta) {
	if fb.hit {
		meta.Status = fb.status
	}
	fb.hit = false
}

func (fb *StatusFeedback) Discard() {
	fb.hit = false
}
