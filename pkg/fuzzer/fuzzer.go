// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package fuzzer implements the fuzzing loop: pick a corpus input, mutate it, execute
// the candidates and keep the ones the feedback finds interesting.
//
// Everything runs on the goroutine that calls into Fuzzer: the only concurrency is
// the target process, and the coverage map is read only after the target is done.
package fuzzer

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/corpus"
	"github.com/forkfuzz/forkfuzz/pkg/cover"
	"github.com/forkfuzz/forkfuzz/pkg/feedback"
	"github.com/forkfuzz/forkfuzz/pkg/fuzzconfig"
	"github.com/forkfuzz/forkfuzz/pkg/ipc"
	"github.com/forkfuzz/forkfuzz/pkg/log"
	"github.com/forkfuzz/forkfuzz/pkg/mutator"
	"github.com/forkfuzz/forkfuzz/pkg/observer"
	"github.com/forkfuzz/forkfuzz/pkg/report"
	"github.com/forkfuzz/forkfuzz/pkg/scheduler"
	"github.com/forkfuzz/forkfuzz/pkg/signal"
	"github.com/forkfuzz/forkfuzz/pkg/stat"
	"github.com/google/uuid"
)

type Config struct {
	Campaign *fuzzconfig.Config
	// Executor runs the target; the target writes coverage into Map.
	Executor ipc.Executor
	Map      *cover.Map
	// Stats is the metrics registry, stat.Global if nil.
	Stats *stat.Set
}

// maxPersistFailures is the number of consecutive failures to save an input
// after which the fuzzer gives up.
const maxPersistFailures = 16

type Fuzzer struct {
	*Stats
	Config *Config
	// Corpus holds interesting inputs, Objectives holds crashing (and possibly timing out) ones.
	Corpus     *corpus.Corpus
	Objectives *corpus.Corpus
	Tokens     *mutator.Tokens
	// Session identifies this run in metadata and in the stats file.
	Session string

	rnd        *rand.Rand
	env        ipc.Executor
	edges      *observer.MapObserver
	timer      *observer.TimeObserver
	observers  observer.Set
	mainState  *signal.State
	objState   *signal.State
	eval       *feedback.Evaluator
	execTime   stat.AverageValue[time.Duration]
	queue      *scheduler.Queue
	sched      *scheduler.Minimizer
	mut        *mutator.Mutator
	start      time.Time
	sinceMin   int
	persistErr int
	stop       bool
}

// Outcome describes what happened to an evaluated input.
type Outcome struct {
	Verdict feedback.Verdict
	Result  *ipc.Result
	// Item is the stored input for Interesting and Objective verdicts.
	Item *corpus.Item
}

// NewFuzzer creates the fuzzer and opens the corpora in the campaign workdir.
// The corpora are not loaded until LoadInitialInputs.
func NewFuzzer(cfg *Config, rnd *rand.Rand) (*Fuzzer, error) {
	campaign := cfg.Campaign
	if cfg.Stats == nil {
		cfg.Stats = stat.Global
	}
	mainCorpus, err := corpus.Open("queue", campaign.QueueDir)
	if err != nil {
		return nil, err
	}
	objectives, err := corpus.Open("crashes", campaign.CrashesDir)
	if err != nil {
		return nil, err
	}
	fuzzer := &Fuzzer{
		Config:     cfg,
		Corpus:     mainCorpus,
		Objectives: objectives,
		Tokens:     mutator.NewTokens(),
		Session:    uuid.NewString(),
		rnd:        rnd,
		env:        cfg.Executor,
		edges:      observer.NewHitcountsMapObserver("edges", cfg.Map),
		timer:      observer.NewTimeObserver("time"),
		start:      time.Now(),
	}
	if sized, ok := cfg.Executor.(interface{ MapSize() int }); ok {
		fuzzer.edges.Limit(sized.MapSize())
	}
	fuzzer.observers = observer.Set{fuzzer.edges, fuzzer.timer}
	fuzzer.mainState = signal.NewState(fuzzer.edges.Len())
	fuzzer.objState = signal.NewState(fuzzer.edges.Len())
	opts := feedback.Options{TimeoutsAreObjectives: campaign.TimeoutsAreObjectives}
	if campaign.TimeSensitive {
		opts.TimeFactor = feedback.DefaultTimeFactor
	}
	fuzzer.eval = feedback.NewStandard(fuzzer.edges, fuzzer.timer, fuzzer.mainState, fuzzer.objState,
		&fuzzer.execTime, opts)
	log.Logf(1, "feedback: interesting=%v objective=%v", fuzzer.eval.Interesting, fuzzer.eval.Objective)
	fuzzer.queue = scheduler.NewQueue()
	fuzzer.sched = scheduler.NewMinimizer(fuzzer.queue)
	fuzzer.mut = &mutator.Mutator{Tokens: fuzzer.Tokens, MaxLen: campaign.MaxInputLen}

	if auto, ok := cfg.Executor.(ipc.AutoDictionary); ok {
		if n := fuzzer.Tokens.AddAll(auto.AutoTokens()); n != 0 {
			log.Logf(0, "loaded %v tokens from the target auto dictionary", n)
		}
	}
	for _, dict := range campaign.Dict {
		n, err := fuzzer.Tokens.AddFile(dict, campaign.DictLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to load dictionary: %w", err)
		}
		log.Logf(0, "loaded %v tokens from %v", n, dict)
	}
	fuzzer.Stats = newStats(fuzzer, cfg.Stats)
	return fuzzer, nil
}

// execute runs the input once and lets observers process the result.
func (fuzzer *Fuzzer) execute(data []byte) (*ipc.Result, error) {
	fuzzer.observers.PreExec()
	res, err := fuzzer.env.Exec(data)
	if err != nil {
		return nil, err
	}
	fuzzer.observers.PostExec(res)
	fuzzer.statExecs.Add(1)
	fuzzer.statExecTime.Add(int(res.Elapsed / time.Microsecond))
	switch res.Status {
	case ipc.StatusCrashed:
		fuzzer.statCrashes.Add(1)
	case ipc.StatusTimedOut:
		fuzzer.statTimeouts.Add(1)
	}
	return res, nil
}

// EvaluateInput executes the input and stores it if it is interesting or an objective.
// Errors are fatal: the executor is broken, or inputs can't be saved anymore.
func (fuzzer *Fuzzer) EvaluateInput(data []byte) (*Outcome, error) {
	return fuzzer.evaluate(data, -1)
}

func (fuzzer *Fuzzer) evaluate(data []byte, parent int) (*Outcome, error) {
	res, err := fuzzer.execute(data)
	if err != nil {
		return nil, err
	}
	out := &Outcome{
		Verdict: fuzzer.eval.Evaluate(res),
		Result:  res,
	}
	if res.Status == ipc.StatusNormal {
		fuzzer.execTime.Save(res.Elapsed)
	}
	if out.Verdict == feedback.Discard {
		return out, nil
	}
	meta := corpus.Meta{
		ExecTime: res.Elapsed,
		Status:   res.Status,
		Found:    time.Now(),
		Parent:   parent,
		Session:  fuzzer.Session,
	}
	fuzzer.eval.Metadata(out.Verdict, &meta)
	target := fuzzer.Corpus
	if out.Verdict == feedback.Objective {
		meta.Title = report.Title(res.Output, res)
		target = fuzzer.Objectives
	}
	item, err := target.Add(data, meta)
	if errors.Is(err, corpus.ErrDuplicate) {
		// Flaky coverage of an input we already have.
		out.Verdict = feedback.Discard
		return out, nil
	}
	if err := fuzzer.persisted(err); err != nil {
		return nil, err
	}
	out.Item = item
	if out.Verdict == feedback.Objective {
		log.Logf(0, "found objective #%v: %v (%v bytes, %v)", item.ID, item.Title, item.Len(), item.Name())
		if fuzzer.Config.Campaign.StopOnObjective {
			fuzzer.stop = true
		}
		return out, nil
	}
	fuzzer.sched.OnAdd(item)
	fuzzer.sinceMin++
	fuzzer.statNewInputs.Add(1)
	log.Logf(1, "new input #%v: %v bytes, %v new edges, parent %v",
		item.ID, item.Len(), len(item.Novelties), parent)
	return out, nil
}

// persisted accounts the result of saving an input to disk.
func (fuzzer *Fuzzer) persisted(err error) error {
	if err == nil {
		fuzzer.persistErr = 0
		return nil
	}
	fuzzer.persistErr++
	fuzzer.statPersistErrors.Add(1)
	log.Errorf("%v", err)
	if fuzzer.persistErr >= maxPersistFailures {
		return fmt.Errorf("failed to save %v inputs in a row, last error: %w", fuzzer.persistErr, err)
	}
	return nil
}

// Edges returns the number of edges discovered so far.
func (fuzzer *Fuzzer) Edges() int {
	return fuzzer.mainState.Count()
}

// Stopped reports whether fuzzing should stop (an objective was found with StopOnObjective).
func (fuzzer *Fuzzer) Stopped() bool {
	return fuzzer.stop
}

func (fuzzer *Fuzzer) Close() error {
	return fuzzer.env.Close()
}
