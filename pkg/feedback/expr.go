// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package feedback

import (
	"fmt"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/corpus"
	"github.com/forkfuzz/forkfuzz/pkg/ipc"
	"github.com/forkfuzz/forkfuzz/pkg/observer"
	"github.com/forkfuzz/forkfuzz/pkg/signal"
	"github.com/forkfuzz/forkfuzz/pkg/stat"
)

type Op int

const (
	OpLeaf Op = iota
	// OpAnd and OpOr always evaluate both sides, so that both leaves update their state.
	OpAnd
	OpOr
	// OpAndFast and OpOrFast do not evaluate the right side if the left side decides the result.
	OpAndFast
	OpOrFast
)

var opNames = [...]string{
	OpLeaf:    "leaf",
	OpAnd:     "And",
	OpOr:      "Or",
	OpAndFast: "AndFast",
	OpOrFast:  "OrFast",
}

// Expr is a boolean combination of feedbacks.
type Expr struct {
	Op    Op
	Leaf  Feedback
	Left  *Expr
	Right *Expr
}

func Leaf(fb Feedback) *Expr {
	return &Expr{Op: OpLeaf, Leaf: fb}
}

func And(left, right *Expr) *Expr {
	return &Expr{Op: OpAnd, Left: left, Right: right}
}

func Or(left, right *Expr) *Expr {
	return &Expr{Op: OpOr, Left: left, Right: right}
}

func AndFast(left, right *Expr) *Expr {
	return &Expr{Op: OpAndFast, Left: left, Right: right}
}

func OrFast(left, right *Expr) *Expr {
	return &Expr{Op: OpOrFast, Left: left, Right: right}
}

// Eval evaluates the tree left to right.
func (e *Expr) Eval(res *ipc.Result) bool {
	switch e.Op {
	case OpLeaf:
		return e.Leaf.IsInteresting(res)
	case OpAnd:
		left := e.Left.Eval(res)
		right := e.Right.Eval(res)
		return left && right
	case OpOr:
		left := e.Left.Eval(res)
		right := e.Right.Eval(res)
		return left || right
	case OpAndFast:
		return e.Left.Eval(res) && e.Right.Eval(res)
	case OpOrFast:
		return e.Left.Eval(res) || e.Right.Eval(res)
	}
	panic(fmt.Sprintf("unknown feedback op %v", e.Op))
}

// AppendMetadata lets every leaf fill the metadata, left to right.
func (e *Expr) AppendMetadata(meta *corpus.Meta) {
	e.walk(func(fb Feedback) { fb.AppendMetadata(meta) })
}

// Discard resets per-execution state of every leaf.
func (e *Expr) Discard() {
	e.walk(Feedback.Discard)
}

// Leaves returns all leaves left to right.
func (e *Expr) Leaves() []Feedback {
	var res []Feedback
	e.walk(func(fb Feedback) { res = append(res, fb) })
	return res
}

func (e *Expr) walk(fn func(Feedback)) {
	if e.Op == OpLeaf {
		fn(e.Leaf)
		return
	}
	e.Left.walk(fn)
	e.Right.walk(fn)
}

func (e *Expr) String() string {
	if e.Op == OpLeaf {
		return e.Leaf.Name()
	}
	return fmt.Sprintf("%v(%v, %v)", opNames[e.Op], e.Left, e.Right)
}

type Verdict int

const (
	Discard Verdict = iota
	// Interesting inputs go to the main corpus.
	Interesting
	// Objective inputs go to the objective corpus.
	Objective
)

func (v Verdict) String() string {
	switch v {
	case Discard:
		return "discard"
	case Interesting:
		return "interesting"
	case Objective:
		return "objective"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// Evaluator classifies executions with two trees.
// The objective tree is evaluated first; if it accepts the input,
// the interestingness tree is not consulted, so an input never lands in both corpora.
type Evaluator struct {
	Interesting *Expr
	Objective   *Expr
}

func (ev *Evaluator) Evaluate(res *ipc.Result) Verdict {
	if ev.Objective.Eval(res) {
		return Objective
	}
	ev.Objective.Discard()
	if ev.Interesting.Eval(res) {
		return Interesting
	}
	ev.Interesting.Discard()
	return Discard
}

// Metadata fills metadata for an input that got verdict v from the last Evaluate.
func (ev *Evaluator) Metadata(v Verdict, meta *corpus.Meta) {
	switch v {
	case Interesting:
		ev.Interesting.AppendMetadata(meta)
	case Objective:
		ev.Objective.AppendMetadata(meta)
	}
}

// Drop resets per-execution state of both trees.
func (ev *Evaluator) Drop() {
	ev.Objective.Discard()
	ev.Interesting.Discard()
}

type Options struct {
	// TimeoutsAreObjectives makes timed out executions with new objective coverage objectives.
	TimeoutsAreObjectives bool
	// TimeFactor > 1 makes inputs with unusual execution time interesting.
	TimeFactor float64
}

// NewStandard builds the usual trees:
//
//	interesting = AndFast(Normal, Or(Map(main), Time))
//	objective   = AndFast(Crash, Map(objectives))
//	objective   = AndFast(OrFast(Crash, Timeout), Map(objectives))  // with TimeoutsAreObjectives
//
// The map observer is shared, main and objectives are independent coverage states.
// Crashed and timed out executions never reach the main corpus.
func NewStandard(edges *observer.MapObserver, timer *observer.TimeObserver, main, objectives *signal.State,
	avg *stat.AverageValue[time.Duration], opts Options) *Evaluator {
	interesting := AndFast(
		Leaf(NewNormalFeedback()),
		Or(
			Leaf(NewMapFeedback("edges", edges, main, true)),
			Leaf(NewTimeFeedback("time", timer, avg, opts.TimeFactor)),
		),
	)
	status := Leaf(NewCrashFeedback())
	if opts.TimeoutsAreObjectives {
		status = OrFast(status, Leaf(NewTimeoutFeedback()))
	}
	objective := AndFast(
		status,
		Leaf(NewMapFeedback("objective edges", edges, objectives, true)),
	)
	return &Evaluator{
		Interesting: interesting,
		Objective:   objective,
	}
}
