// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzconfig

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/config"
	"github.com/forkfuzz/forkfuzz/pkg/cover"
	"github.com/forkfuzz/forkfuzz/pkg/ipc"
	"github.com/forkfuzz/forkfuzz/pkg/mutator"
	"github.com/forkfuzz/forkfuzz/pkg/osutil"
)

const (
	DefaultMinimizeEvery = 256
	// MaxMapSize is the largest map the fork server can report.
	MaxMapSize = 1 << 24
)

func LoadData(data []byte) (*Config, error) {
	cfg := Default()
	if err := config.LoadData(data, cfg); err != nil {
		return nil, err
	}
	if err := Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFile(filename string) (*Config, error) {
	cfg := Default()
	if err := config.LoadFile(filename, cfg); err != nil {
		return nil, err
	}
	if err := Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with default values, to be filled in by parsing or by flags.
func Default() *Config {
	return &Config{
		Timeout:       int(ipc.DefaultTimeout / time.Millisecond),
		MapSize:       cover.DefaultMapSize,
		MinimizeEvery: DefaultMinimizeEvery,
		MaxInputLen:   mutator.DefaultMaxLen,
		CaptureOutput: true,
		UseForkServer: true,
	}
}

// Complete checks the config and fills in derived fields.
func Complete(cfg *Config) error {
	if cfg.Workdir == "" {
		return fmt.Errorf("config param workdir is empty")
	}
	cfg.Workdir = osutil.Abs(cfg.Workdir)
	cfg.QueueDir = filepath.Join(cfg.Workdir, "queue")
	cfg.CrashesDir = filepath.Join(cfg.Workdir, "crashes")
	if cfg.Target == "" {
		return fmt.Errorf("config param target is empty")
	}
	if !strings.ContainsRune(cfg.Target, filepath.Separator) {
		path, err := exec.LookPath(cfg.Target)
		if err != nil {
			return fmt.Errorf("bad config param target: %w", err)
		}
		cfg.Target = path
	}
	cfg.Target = osutil.Abs(cfg.Target)
	if !osutil.IsExist(cfg.Target) {
		return fmt.Errorf("bad config param target: can't find %v", cfg.Target)
	}
	for i, dir := range cfg.Corpus {
		cfg.Corpus[i] = osutil.Abs(dir)
	}
	for i, dict := range cfg.Dict {
		cfg.Dict[i] = osutil.Abs(dict)
	}
	for _, env := range cfg.TargetEnv {
		if !strings.Contains(env, "=") {
			return fmt.Errorf("bad config param target_env: %q is not in KEY=VALUE form", env)
		}
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("bad config param timeout: %v", cfg.Timeout)
	}
	cfg.ExecTimeout = time.Duration(cfg.Timeout) * time.Millisecond
	if cfg.ExecTimeout < ipc.MinTimeout {
		return fmt.Errorf("bad config param timeout: %v, must be at least %v",
			cfg.ExecTimeout, ipc.MinTimeout)
	}
	if cfg.MapSize <= 0 || cfg.MapSize > MaxMapSize {
		return fmt.Errorf("bad config param map_size: %v, want (0, %v]", cfg.MapSize, MaxMapSize)
	}
	if cfg.MinimizeEvery == 0 {
		cfg.MinimizeEvery = DefaultMinimizeEvery
	}
	if cfg.MinimizeEvery < -1 {
		return fmt.Errorf("bad config param minimize_every: %v", cfg.MinimizeEvery)
	}
	if cfg.MaxInputLen <= 0 {
		return fmt.Errorf("bad config param max_input_len: %v", cfg.MaxInputLen)
	}
	if cfg.DictLevel < 0 {
		return fmt.Errorf("bad config param dict_level: %v", cfg.DictLevel)
	}
	return nil
}

// ExecConfig returns the executor config for the campaign.
func (cfg *Config) ExecConfig() *ipc.Config {
	return &ipc.Config{
		Args:          append([]string{cfg.Target}, cfg.TargetArgs...),
		Workdir:       cfg.Workdir,
		Timeout:       cfg.ExecTimeout,
		Env:           cfg.TargetEnv,
		Debug:         cfg.Debug,
		CaptureOutput: cfg.CaptureOutput,
		UseForkServer: cfg.UseForkServer,
	}
}
