// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package ipc runs instrumented targets on fuzzer inputs.
//
// Two executors are provided: Forkserver talks to the AFL fork server embedded into
// the target by the instrumentation and is the default; Simple starts a fresh process
// per input and is used for targets without the fork server. Both have the same contract:
// the target writes coverage into the shared cover.Map during Exec, and Exec returns once
// the target finished, crashed or was killed on timeout.
package ipc

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/cover"
)

// Executor runs the target once per input.
// Crashes and timeouts are reported in Result; an error means the executor is unusable.
type Executor interface {
	Exec(input []byte) (*Result, error)
	Close() error
}

// AutoDictionary is implemented by executors that can obtain tokens from the target.
type AutoDictionary interface {
	AutoTokens() [][]byte
}

type Config struct {
	// Args is the target binary followed by its arguments.
	// InputPlaceholder in Args is replaced with the path of the input file,
	// otherwise the input is passed on stdin.
	Args []string
	// Workdir holds the input file.
	Workdir string
	// Timeout is the per-execution time limit.
	Timeout time.Duration
	// Env is appended to the environment of the target.
	Env []string
	// Debug makes the target inherit fuzzer stdout/stderr.
	Debug bool
	// CaptureOutput collects target output into Result.Output.
	CaptureOutput bool
	// UseForkServer selects Forkserver over Simple.
	UseForkServer bool
}

const (
	// InputPlaceholder in target arguments is replaced with the input file path.
	InputPlaceholder = "@@"
	// SanitizerExitCode is the exit code that sanitizers are configured to exit with
	// when they detect a bug without aborting (MSan does this).
	SanitizerExitCode = 86

	DefaultTimeout = time.Second
	MinTimeout     = 10 * time.Millisecond
)

type Status int

const (
	StatusNormal Status = iota
	StatusCrashed
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusCrashed:
		return "crashed"
	case StatusTimedOut:
		return "timed out"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// State is the state of the target process from the executor point of view.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateTimedOut
	StateCrashedSignal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed out"
	case StateCrashedSignal:
		return "crashed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result describes one execution.
type Result struct {
	Status  Status
	Elapsed time.Duration
	// Signal that terminated the target, if any.
	Signal syscall.Signal
	// ExitCode of the target, -1 if it was terminated by a signal.
	ExitCode int
	// Output is the tail of the target output if Config.CaptureOutput is set.
	Output []byte
}

// ExecutorFailure is returned when the target cannot be run at all
// (e.g. it does not speak the fork server protocol).
type ExecutorFailure string

func (err ExecutorFailure) Error() string {
	return string(err)
}

// Make creates the executor selected by cfg. The target will write coverage into cmap.
func Make(cfg *Config, cmap *cover.Map) (Executor, error) {
	if len(cfg.Args) == 0 || cfg.Args[0] == "" {
		return nil, fmt.Errorf("no target binary specified")
	}
	if cfg.UseForkServer {
		fs, err := NewForkserver(cfg, cmap)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
	s, err := NewSimple(cfg, cmap)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func sanitizeTimeout(cfg *Config) time.Duration {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if timeout < MinTimeout {
		timeout = MinTimeout
	}
	return timeout
}

// classify converts a wait status into an execution result.
func classify(ws syscall.WaitStatus, timedOut bool, res *Result) State {
	res.ExitCode = -1
	switch {
	case timedOut:
		res.Status = StatusTimedOut
		if ws.Signaled() {
			res.Signal = ws.Signal()
		} else if ws.Exited() {
			res.ExitCode = ws.ExitStatus()
		}
		return StateTimedOut
	case ws.Signaled():
		res.Status = StatusCrashed
		res.Signal = ws.Signal()
		return StateCrashedSignal
	case ws.Exited() && ws.ExitStatus() == SanitizerExitCode:
		res.Status = StatusCrashed
		res.ExitCode = SanitizerExitCode
		return StateCrashedSignal
	default:
		res.Status = StatusNormal
		res.ExitCode = ws.ExitStatus()
		return StateCompleted
	}
}

// targetEnv returns the environment for the target process.
func targetEnv(cfg *Config, cmap *cover.Map) []string {
	env := os.Environ()
	env = append(env, cmap.Env()...)
	symbolize := "0"
	if cfg.CaptureOutput {
		symbolize = "1"
	}
	defaults := map[string]string{
		"ASAN_OPTIONS": "abort_on_error=1:detect_leaks=0:allocator_may_return_null=1:" +
			"handle_segv=0:handle_abort=0:handle_sigfpe=0:handle_sigill=0:symbolize=" + symbolize,
		"MSAN_OPTIONS": fmt.Sprintf("exit_code=%v:abort_on_error=0:msan_track_origins=0:symbolize=%v",
			SanitizerExitCode, symbolize),
		"UBSAN_OPTIONS": "halt_on_error=1:abort_on_error=1:print_stacktrace=1:symbolize=" + symbolize,
	}
	for name, val := range defaults {
		if _, ok := os.LookupEnv(name); !ok {
			env = append(env, name+"="+val)
		}
	}
	return append(env, cfg.Env...)
}
