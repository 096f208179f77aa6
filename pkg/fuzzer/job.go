// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"context"
	"math/rand"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/corpus"
	"github.com/forkfuzz/forkfuzz/pkg/log"
)

// maxStageIters bounds the number of candidates derived from one scheduled input.
const maxStageIters = 128

const (
	statsLogPeriod   = 10 * time.Second
	statsWritePeriod = time.Minute
)

// spliceItems lets mutations splice in other corpus inputs.
type spliceItems []*corpus.Item

func (items spliceItems) Splice(r *rand.Rand) []byte {
	if len(items) == 0 {
		return nil
	}
	return items[r.Intn(len(items))].Data
}

// FuzzOne runs one mutational stage: picks an input from the scheduler and
// evaluates a random number of its mutants.
func (fuzzer *Fuzzer) FuzzOne(ctx context.Context) error {
	item := fuzzer.sched.Next(fuzzer.rnd)
	if item == nil {
		return nil
	}
	splice := spliceItems(fuzzer.Corpus.Items())
	iters := 1 + fuzzer.rnd.Intn(maxStageIters)
	for i := 0; i < iters && ctx.Err() == nil; i++ {
		data := fuzzer.mut.Mutate(fuzzer.rnd, item.Data, splice)
		if _, err := fuzzer.evaluate(data, item.ID); err != nil {
			return err
		}
		if fuzzer.stop {
			break
		}
	}
	fuzzer.maybeMinimize()
	fuzzer.publishStats()
	return nil
}

// maybeMinimize culls the corpus after every MinimizeEvery new inputs.
func (fuzzer *Fuzzer) maybeMinimize() {
	every := fuzzer.Config.Campaign.MinimizeEvery
	if every <= 0 || fuzzer.sinceMin < every {
		return
	}
	fuzzer.sinceMin = 0
	fuzzer.Minimize()
}

// Minimize removes redundant inputs from the corpus and the scheduler.
func (fuzzer *Fuzzer) Minimize() {
	removed := fuzzer.Corpus.Minimize()
	for _, id := range removed {
		fuzzer.sched.OnRemove(id)
	}
	fuzzer.statMinimized.Add(len(removed))
}

// Loop fuzzes until ctx is cancelled or fuzzing is stopped.
// Stats are logged and written to the workdir periodically and on return.
func (fuzzer *Fuzzer) Loop(ctx context.Context) error {
	lastLog, lastWrite := time.Now(), time.Now()
	defer fuzzer.writeStats()
	for ctx.Err() == nil && !fuzzer.stop {
		if err := fuzzer.FuzzOne(ctx); err != nil {
			return err
		}
		now := time.Now()
		if now.Sub(lastLog) >= statsLogPeriod {
			lastLog = now
			log.Logf(0, "%v", fuzzer.StatsLine())
		}
		if now.Sub(lastWrite) >= statsWritePeriod {
			lastWrite = now
			fuzzer.writeStats()
		}
	}
	log.Logf(0, "fuzzing stopped: %v", fuzzer.StatsLine())
	return nil
}

func (fuzzer *Fuzzer) writeStats() {
	if err := fuzzer.WriteStats(); err != nil {
		log.Errorf("failed to write stats: %v", err)
	}
}
