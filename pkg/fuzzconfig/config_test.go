// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzconfig

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/cover"
	"github.com/forkfuzz/forkfuzz/pkg/ipc"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanned(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*"))
	if err != nil || len(files) == 0 {
		t.Fatalf("failed to read input files: %v", err)
	}
	for _, file := range files {
		t.Run(file, func(t *testing.T) {
			if _, err := LoadFile(file); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	cfg, err := LoadFile(filepath.Join("testdata", "basic.cfg"))
	require.NoError(t, err)
	seed := int64(1)
	want := &Config{
		Name:          "parser",
		Workdir:       "/tmp/ffz-parser",
		Corpus:        []string{"/tmp/seeds"},
		Target:        "/bin/sh",
		TargetArgs:    []string{"-c", "cat @@"},
		Timeout:       500,
		MapSize:       cover.DefaultMapSize,
		Dict:          []string{"/tmp/parser.dict"},
		Seed:          &seed,
		MinimizeEvery: DefaultMinimizeEvery,
		MaxInputLen:   1 << 20,
		CaptureOutput: true,
		UseForkServer: true,
		ExecTimeout:   500 * time.Millisecond,
		QueueDir:      "/tmp/ffz-parser/queue",
		CrashesDir:    "/tmp/ffz-parser/crashes",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatal(diff)
	}
	execCfg := cfg.ExecConfig()
	assert.Equal(t, []string{"/bin/sh", "-c", "cat " + ipc.InputPlaceholder}, execCfg.Args)
	assert.Equal(t, 500*time.Millisecond, execCfg.Timeout)
	assert.True(t, execCfg.UseForkServer)

	cfg, err = LoadFile(filepath.Join("testdata", "timeouts.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.TimeoutsAreObjectives)
	assert.True(t, cfg.TimeSensitive)
	assert.False(t, cfg.UseForkServer)
	assert.Equal(t, 262144, cfg.MapSize)
	assert.Equal(t, time.Second, cfg.ExecTimeout)
	assert.True(t, filepath.IsAbs(cfg.Target))
}

func TestLoadErrors(t *testing.T) {
	for _, data := range []string{
		`{"target": "/bin/sh"}`,
		`{"workdir": "/tmp/w"}`,
		`{"workdir": "/tmp/w", "target": "/nonexistent/target"}`,
		`{"workdir": "/tmp/w", "target": "/bin/sh", "timeout": 5}`,
		`{"workdir": "/tmp/w", "target": "/bin/sh", "timeout": -1}`,
		`{"workdir": "/tmp/w", "target": "/bin/sh", "map_size": 33554432}`,
		`{"workdir": "/tmp/w", "target": "/bin/sh", "minimize_every": -2}`,
		`{"workdir": "/tmp/w", "target": "/bin/sh", "target_env": ["NOVALUE"]}`,
		`{"workdir": "/tmp/w", "target": "/bin/sh", "unknown_field": 1}`,
	} {
		_, err := LoadData([]byte(data))
		assert.Error(t, err, "config: %s", data)
	}
}
