// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/osutil"
	"github.com/forkfuzz/forkfuzz/pkg/stat"
	"gopkg.in/yaml.v3"
)

// StatsFile is written into the workdir periodically and on exit.
const StatsFile = "fuzzer_stats.yaml"

type Stats struct {
	set               *stat.Set
	statExecs         *stat.Val
	statExecTime      *stat.Val
	statNewInputs     *stat.Val
	statCrashes       *stat.Val
	statTimeouts      *stat.Val
	statPersistErrors *stat.Val
	statMinimized     *stat.Val

	// Values owned by the fuzzing loop, published for concurrent readers
	// (status page and Prometheus).
	snapEdges   atomic.Int64
	snapCycles  atomic.Int64
	snapFavored atomic.Int64
}

func newStats(fuzzer *Fuzzer, set *stat.Set) *Stats {
	s := &Stats{
		set: set,
		statExecs: set.New("exec total", "Total test program executions",
			stat.Console, stat.Rate{}, stat.Prometheus("ffz_exec_total")),
		statExecTime: set.New("exec time", "Execution time of a single input (us)",
			stat.Distribution{}, stat.Prometheus("ffz_exec_time_us")),
		statNewInputs: set.New("new inputs", "Inputs added to the corpus by this session",
			stat.Prometheus("ffz_new_inputs")),
		statCrashes: set.New("crashes", "Executions that crashed the target",
			stat.Prometheus("ffz_crashes")),
		statTimeouts: set.New("timeouts", "Executions that hit the time limit",
			stat.Prometheus("ffz_timeouts")),
		statPersistErrors: set.New("persist errors", "Failures to save inputs to the workdir"),
		statMinimized: set.New("minimized", "Inputs removed by corpus minimization"),
	}
	set.New("corpus", "Inputs in the corpus", stat.Console, stat.Prometheus("ffz_corpus"),
		func() int { return fuzzer.Corpus.Len() })
	set.New("objectives", "Unique crashing inputs", stat.Console, stat.Prometheus("ffz_objectives"),
		func() int { return fuzzer.Objectives.Len() })
	set.New("edges", "Distinct coverage map entries hit", stat.Console, stat.Prometheus("ffz_edges"),
		func() int { return int(s.snapEdges.Load()) })
	mapSize := fuzzer.mainState.Len()
	set.New("map density", "Fraction of the coverage map hit",
		func() int { return int(s.snapEdges.Load()) * 10000 / max(mapSize, 1) },
		func(v int, period time.Duration) string { return fmt.Sprintf("%v.%02v%%", v/100, v%100) })
	set.New("cycles", "Completed queue cycles", stat.Console,
		func() int { return int(s.snapCycles.Load()) })
	set.New("favored", "Inputs covering some edge at the lowest cost",
		func() int { return int(s.snapFavored.Load()) })
	set.New("tokens", "Dictionary tokens", func() int { return fuzzer.Tokens.Len() })
	return s
}

func (fuzzer *Fuzzer) publishStats() {
	fuzzer.snapEdges.Store(int64(fuzzer.mainState.Count()))
	fuzzer.snapCycles.Store(int64(fuzzer.queue.Cycles()))
	fuzzer.snapFavored.Store(int64(len(fuzzer.sched.Favored())))
}

// Collect returns current values of the fuzzer metrics.
func (s *Stats) Collect(level stat.Level) []stat.UI {
	return s.set.Collect(level)
}

// StatsLine is the one-line summary printed periodically.
func (s *Stats) StatsLine() string {
	var parts []string
	for _, v := range s.Collect(stat.Console) {
		parts = append(parts, fmt.Sprintf("%v=%v", strings.ReplaceAll(v.Name, " ", "_"), v.Value))
	}
	return strings.Join(parts, " ")
}

type statsFile struct {
	Session    string            `yaml:"session"`
	Started    time.Time         `yaml:"started"`
	LastUpdate time.Time         `yaml:"last_update"`
	Target     []string          `yaml:"target"`
	Stats      map[string]string `yaml:"stats"`
}

// WriteStats dumps all metrics into the workdir.
func (fuzzer *Fuzzer) WriteStats() error {
	campaign := fuzzer.Config.Campaign
	if campaign.Workdir == "" {
		return nil
	}
	file := statsFile{
		Session:    fuzzer.Session,
		Started:    fuzzer.start,
		LastUpdate: time.Now(),
		Target:     append([]string{campaign.Target}, campaign.TargetArgs...),
		Stats:      make(map[string]string),
	}
	fuzzer.publishStats()
	for _, v := range fuzzer.Collect(stat.All) {
		file.Stats[v.Name] = v.Value
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return err
	}
	return osutil.WriteFile(filepath.Join(campaign.Workdir, StatsFile), data)
}
