// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/forkfuzz/forkfuzz/pkg/corpus"
	"github.com/forkfuzz/forkfuzz/pkg/feedback"
	"github.com/forkfuzz/forkfuzz/pkg/ipc"
	"github.com/forkfuzz/forkfuzz/pkg/log"
	"github.com/forkfuzz/forkfuzz/pkg/osutil"
	"github.com/forkfuzz/forkfuzz/pkg/signal"
	"golang.org/x/sync/errgroup"
)

// defaultSeed is used when there is nothing else to start from.
var defaultSeed = []byte("0000")

type seed struct {
	name string
	data []byte
}

// LoadInitialInputs resumes the corpora persisted in the workdir and evaluates
// the seed inputs from dirs. Afterwards the corpus is never empty.
func (fuzzer *Fuzzer) LoadInitialInputs(ctx context.Context, dirs []string) error {
	if err := fuzzer.resume(); err != nil {
		return err
	}
	seeds, err := readSeeds(ctx, dirs)
	if err != nil {
		return err
	}
	kept := 0
	for _, s := range seeds {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := fuzzer.EvaluateInput(s.data)
		if err != nil {
			return err
		}
		log.Logf(2, "seed %v: %v", s.name, out.Verdict)
		if out.Verdict == feedback.Interesting {
			kept++
		}
	}
	fuzzer.publishStats()
	log.Logf(0, "loaded %v seeds: %v kept, corpus %v, objectives %v, edges %v",
		len(seeds), kept, fuzzer.Corpus.Len(), fuzzer.Objectives.Len(), fuzzer.Edges())
	if fuzzer.Corpus.Len() != 0 {
		return nil
	}
	candidates := make([][]byte, 0, len(seeds)+1)
	for _, s := range seeds {
		candidates = append(candidates, s.data)
	}
	return fuzzer.forceAdd(append(candidates, defaultSeed))
}

// resume re-admits inputs stored by previous runs. Main corpus inputs are re-executed
// to rebuild the coverage state, objectives contribute their stored coverage.
func (fuzzer *Fuzzer) resume() error {
	objectives, err := fuzzer.Objectives.Load()
	if err != nil {
		return err
	}
	for _, item := range objectives {
		fuzzer.objState.Merge(fuzzer.fitSignal(item))
	}
	items, err := fuzzer.Corpus.Load()
	if err != nil {
		return err
	}
	for _, item := range items {
		res, err := fuzzer.execute(item.Data)
		if err != nil {
			return err
		}
		meta := item.Meta
		if res.Status != ipc.StatusNormal {
			log.Logf(0, "resumed input %v is now %v, keeping the stored coverage", item.Name(), res.Status)
			fuzzer.mainState.Merge(fuzzer.fitSignal(item))
		} else {
			fuzzer.execTime.Save(res.Elapsed)
			sig := signal.FromMap(fuzzer.edges.Map())
			fuzzer.mainState.Merge(sig)
			meta.Signal = sig
			meta.Indexes = fuzzer.edges.Indexes()
			meta.ExecTime = res.Elapsed
			if item, err = fuzzer.Corpus.UpdateMeta(item.ID, meta); err != nil {
				return err
			}
		}
		fuzzer.sched.OnAdd(item)
	}
	if len(items)+len(objectives) != 0 {
		log.Logf(0, "resumed %v inputs and %v objectives, edges %v",
			len(items), len(objectives), fuzzer.Edges())
	}
	return nil
}

// fitSignal returns the stored signal of a resumed input without edges that don't fit
// into the current map (map_size changed, or the target was rebuilt with a smaller map).
func (fuzzer *Fuzzer) fitSignal(item *corpus.Item) signal.Signal {
	size := uint32(fuzzer.mainState.Len())
	var res signal.Signal
	dropped := 0
	for e, b := range item.Signal {
		if e >= size {
			dropped++
			continue
		}
		if res == nil {
			res = make(signal.Signal)
		}
		res[e] = b
	}
	if dropped != 0 {
		log.Logf(0, "resumed input %v: ignoring %v edges beyond the coverage map of size %v"+
			" (was map_size changed?)", item.Name(), dropped, size)
	}
	return res
}

// forceAdd puts the first candidate that runs normally and is not an objective
// into the corpus regardless of its feedback.
func (fuzzer *Fuzzer) forceAdd(candidates [][]byte) error {
	for _, data := range candidates {
		if fuzzer.Objectives.Contains(data) {
			continue
		}
		res, err := fuzzer.execute(data)
		if err != nil {
			return err
		}
		if res.Status != ipc.StatusNormal {
			log.Logf(1, "initial input %q is %v, skipping", data, res.Status)
			continue
		}
		fuzzer.execTime.Save(res.Elapsed)
		sig := signal.FromMap(fuzzer.edges.Map())
		fuzzer.mainState.Merge(sig)
		item, err := fuzzer.Corpus.Add(data, corpus.Meta{
			ExecTime: res.Elapsed,
			Signal:   sig,
			Indexes:  fuzzer.edges.Indexes(),
			Status:   res.Status,
			Parent:   -1,
			Session:  fuzzer.Session,
		})
		if item == nil {
			return fmt.Errorf("failed to add the initial input: %w", err)
		}
		if err := fuzzer.persisted(err); err != nil {
			return err
		}
		log.Logf(0, "no seed was interesting, starting from %q", data)
		fuzzer.sched.OnAdd(item)
		return nil
	}
	return fmt.Errorf("no initial input runs without crashing or timing out, tried %v inputs",
		len(candidates))
}

// readSeeds reads all files in dirs. Files that can't be read are skipped.
func readSeeds(ctx context.Context, dirs []string) ([]seed, error) {
	var files []string
	for _, dir := range dirs {
		if err := osutil.IsAccessible(dir); err != nil {
			return nil, fmt.Errorf("seed corpus is not accessible: %w", err)
		}
		names, err := osutil.ListDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to list seeds: %w", err)
		}
		for _, name := range names {
			files = append(files, filepath.Join(dir, name))
		}
	}
	data := make([][]byte, len(files))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, file := range files {
		g.Go(func() error {
			buf, err := os.ReadFile(file)
			if err != nil {
				log.Errorf("skipping seed: %v", err)
				return nil
			}
			data[i] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var seeds []seed
	for i, file := range files {
		if data[i] != nil {
			seeds = append(seeds, seed{file, data[i]})
		}
	}
	return seeds, nil
}
