// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ipc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/cover"
	"github.com/forkfuzz/forkfuzz/pkg/osutil"
)

// Simple starts a new target process for every input.
// It is much slower than Forkserver, but works with any target.
type Simple struct {
	cfg     *Config
	argv    []string
	env     []string
	timeout time.Duration
	input   *inputFile
	state   State
}

func NewSimple(cfg *Config, cmap *cover.Map) (*Simple, error) {
	input, argv, err := newInputFile(cfg.Workdir, cfg.Args)
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		input.close()
		return nil, ExecutorFailure(fmt.Sprintf("target %v: %v", argv[0], err))
	}
	return &Simple{
		cfg:     cfg,
		argv:    argv,
		env:     targetEnv(cfg, cmap),
		timeout: sanitizeTimeout(cfg),
		input:   input,
	}, nil
}

func (s *Simple) Exec(input []byte) (*Result, error) {
	if err := s.input.write(input); err != nil {
		return nil, err
	}
	cmd := osutil.Command(s.argv[0], s.argv[1:]...)
	cmd.Env = s.env
	if s.input.stdin {
		cmd.Stdin = s.input.file
	}
	var output *outputBuffer
	switch {
	case s.cfg.Debug:
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	case s.cfg.CaptureOutput:
		output = new(outputBuffer)
		cmd.Stdout = output
		cmd.Stderr = output
	}
	cmd.WaitDelay = time.Second
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start target: %w", err)
	}
	s.state = StateRunning
	timer := time.AfterFunc(s.timeout, func() {
		cmd.Process.Kill()
	})
	err := cmd.Wait()
	elapsed := time.Since(start)
	timedOut := !timer.Stop()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
		return nil, fmt.Errorf("failed to wait for target: %w", err)
	}
	res := &Result{Elapsed: elapsed}
	s.state = classify(cmd.ProcessState.Sys().(syscall.WaitStatus), timedOut, res)
	if output != nil {
		res.Output = output.take()
	}
	return res, nil
}

func (s *Simple) State() State {
	return s.state
}

func (s *Simple) Close() error {
	if s.input != nil {
		s.input.close()
		s.input = nil
	}
	return nil
}
