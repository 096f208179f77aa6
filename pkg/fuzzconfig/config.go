// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package fuzzconfig describes a fuzzing campaign.
package fuzzconfig

import (
	"time"
)

type Config struct {
	// Instance name (used for identification in logs and the stats file).
	Name string `json:"name,omitempty"`
	// TCP address to serve HTTP stats page and Prometheus metrics (e.g. "localhost:50000").
	HTTP string `json:"http,omitempty"`
	// Location of a working directory for the campaign. Contains:
	//	- queue/: inputs of the main corpus and .corpus.db with their metadata
	//	- crashes/: objective inputs and their metadata
	//	- .cur_input: the file the current input is written to
	//	- fuzzer_stats.yaml: periodic stats snapshot
	Workdir string `json:"workdir"`
	// Directories with initial seed inputs.
	Corpus []string `json:"corpus,omitempty"`
	// Path to the instrumented target binary.
	Target string `json:"target"`
	// Target arguments. "@@" is replaced with the path of the input file,
	// otherwise the input is passed on stdin.
	TargetArgs []string `json:"target_args,omitempty"`
	// Additional environment variables for the target, in KEY=VALUE form.
	TargetEnv []string `json:"target_env,omitempty"`
	// Per-execution timeout in milliseconds (1000 by default).
	Timeout int `json:"timeout,omitempty"`
	// Size of the coverage map (65536 by default).
	// Targets that report a smaller map through the fork server use only a part of it.
	MapSize int `json:"map_size,omitempty"`
	// AFL dictionary files or directories with one token per file.
	Dict []string `json:"dict,omitempty"`
	// Maximum level of dictionary entries to use (entries are "name@level=...").
	DictLevel int `json:"dict_level,omitempty"`
	// Seed for the random number generator. If not set, the seed is time-based.
	Seed *int64 `json:"seed,omitempty"`
	// Treat timed out inputs with new coverage as objectives (by default they are discarded).
	TimeoutsAreObjectives bool `json:"timeouts_are_objectives,omitempty"`
	// Keep inputs that run much faster or slower than average even without new coverage.
	TimeSensitive bool `json:"time_sensitive,omitempty"`
	// Minimize the main corpus after this number of new inputs (256 by default, -1 to disable).
	MinimizeEvery int `json:"minimize_every,omitempty"`
	// Maximum length of generated inputs in bytes (1MB by default).
	MaxInputLen int `json:"max_input_len,omitempty"`
	// Stop after the first objective.
	StopOnObjective bool `json:"stop_on_objective,omitempty"`
	// Collect target output to give objectives sanitizer-based titles.
	CaptureOutput bool `json:"capture_output"`
	// Use the AFL fork server (true by default). Without it a new process is started for every input.
	UseForkServer bool `json:"use_fork_server"`
	// Let the target inherit fuzzer stdout/stderr.
	Debug bool `json:"debug,omitempty"`

	// Implementation details beyond this point. Filled after parsing.
	ExecTimeout time.Duration `json:"-"`
	QueueDir    string        `json:"-"`
	CrashesDir  string        `json:"-"`
}
