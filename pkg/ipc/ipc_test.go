// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/cover"
	"github.com/forkfuzz/forkfuzz/pkg/osutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The test binary doubles as an instrumented target.
// FFZ_TEST_TARGET=forkserver makes it a fork server that re-executes itself for
// every request, FFZ_TEST_TARGET=child makes it process one input.
const (
	envTarget = "FFZ_TEST_TARGET"
	envHello  = "FFZ_TEST_HELLO"
)

func TestMain(m *testing.M) {
	switch os.Getenv(envTarget) {
	case "forkserver":
		testForkServer()
		os.Exit(0)
	case "child":
		testChild()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func testForkServer() {
	ctl := os.NewFile(forkSrvCtlFd, "ctl")
	st := os.NewFile(forkSrvStatusFd, "status")
	write := func(v uint32) {
		var buf [4]byte
		binary.NativeEndian.PutUint32(buf[:], v)
		if _, err := st.Write(buf[:]); err != nil {
			os.Exit(1)
		}
	}
	read := func() uint32 {
		var buf [4]byte
		if _, err := io.ReadFull(ctl, buf[:]); err != nil {
			os.Exit(0)
		}
		return binary.NativeEndian.Uint32(buf[:])
	}
	switch os.Getenv(envHello) {
	case "none":
		os.Exit(1)
	case "autodict":
		write(FsOptEnabled | FsOptAutoDict)
		if read() != FsOptEnabled|FsOptAutoDict {
			os.Exit(1)
		}
		dict := []byte("\x03abc\x02xy")
		write(uint32(len(dict)))
		st.Write(dict)
	case "bigmap":
		write(FsOptEnabled | FsOptMapSize(1<<20))
	default:
		write(0)
	}
	for {
		read()
		cmd := exec.Command(os.Args[0], os.Args[1:]...)
		cmd.Env = append(os.Environ(), envTarget+"=child")
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			os.Exit(1)
		}
		write(uint32(cmd.Process.Pid))
		cmd.Wait()
		write(uint32(cmd.ProcessState.Sys().(syscall.WaitStatus)))
	}
}

func testChild() {
	var data []byte
	var err error
	if len(os.Args) > 1 {
		data, err = os.ReadFile(os.Args[len(os.Args)-1])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		os.Exit(1)
	}
	if id, err := strconv.Atoi(os.Getenv(cover.EnvShmID)); err == nil {
		mem, err := osutil.AttachSysvShm(id)
		if err != nil {
			os.Exit(1)
		}
		for _, b := range data {
			mem[b]++
		}
	}
	switch {
	case bytes.HasPrefix(data, []byte("crash")):
		os.Stderr.WriteString("crashing\n")
		syscall.Kill(os.Getpid(), syscall.SIGKILL)
	case bytes.HasPrefix(data, []byte("sleep")):
		time.Sleep(time.Minute)
	case bytes.HasPrefix(data, []byte("msan")):
		os.Exit(SanitizerExitCode)
	case bytes.HasPrefix(data, []byte("exit3")):
		os.Exit(3)
	}
}

func makeTestExecutor(t *testing.T, forkServer bool, hello string, args ...string) (Executor, *cover.Map) {
	cmap, err := cover.NewSharedMap(256)
	if err != nil {
		t.Skipf("no shared memory: %v", err)
	}
	t.Cleanup(func() { cmap.Close() })
	target := envTarget + "=child"
	if forkServer {
		target = envTarget + "=forkserver"
	}
	cfg := &Config{
		Args:          append([]string{os.Args[0]}, args...),
		Workdir:       t.TempDir(),
		Timeout:       time.Second,
		Env:           []string{target, envHello + "=" + hello},
		CaptureOutput: true,
		UseForkServer: forkServer,
	}
	env, err := Make(cfg, cmap)
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env, cmap
}

func testExecutors(t *testing.T, fn func(t *testing.T, forkServer bool)) {
	t.Run("forkserver", func(t *testing.T) { fn(t, true) })
	t.Run("simple", func(t *testing.T) { fn(t, false) })
}

func TestExecStatus(t *testing.T) {
	testExecutors(t, func(t *testing.T, forkServer bool) {
		env, cmap := makeTestExecutor(t, forkServer, "")
		tests := []struct {
			input    string
			status   Status
			exitCode int
		}{
			{"hello", StatusNormal, 0},
			{"crash", StatusCrashed, -1},
			{"msan", StatusCrashed, SanitizerExitCode},
			{"exit3", StatusNormal, 3},
			{"AAAB", StatusNormal, 0},
		}
		for _, test := range tests {
			cmap.Reset()
			res, err := env.Exec([]byte(test.input))
			require.NoError(t, err, "input %q", test.input)
			assert.Equal(t, test.status, res.Status, "input %q", test.input)
			assert.Equal(t, test.exitCode, res.ExitCode, "input %q", test.input)
			assert.Positive(t, res.Elapsed)
			// Coverage of the child is visible in our map.
			assert.Equal(t, byte(bytes.Count([]byte(test.input), []byte(test.input[:1]))), cmap.Bytes()[test.input[0]])
		}
	})
}

func TestExecCrashSignal(t *testing.T) {
	testExecutors(t, func(t *testing.T, forkServer bool) {
		env, _ := makeTestExecutor(t, forkServer, "")
		res, err := env.Exec([]byte("crash"))
		require.NoError(t, err)
		assert.Equal(t, StatusCrashed, res.Status)
		assert.Equal(t, syscall.SIGKILL, res.Signal)
		if !forkServer {
			// Output of fork server children is collected asynchronously.
			assert.Contains(t, string(res.Output), "crashing")
		}
		assert.Equal(t, StateCrashedSignal, env.(interface{ State() State }).State())
	})
}

func TestExecTimeout(t *testing.T) {
	testExecutors(t, func(t *testing.T, forkServer bool) {
		env, _ := makeTestExecutor(t, forkServer, "")
		for i := 0; i < 2; i++ {
			start := time.Now()
			res, err := env.Exec([]byte("sleep"))
			require.NoError(t, err)
			assert.Equal(t, StatusTimedOut, res.Status)
			assert.Less(t, time.Since(start), 30*time.Second)
			assert.Equal(t, StateTimedOut, env.(interface{ State() State }).State())
		}
		// The executor is still usable after a timeout.
		res, err := env.Exec([]byte("ok"))
		require.NoError(t, err)
		assert.Equal(t, StatusNormal, res.Status)
	})
}

func TestExecInputFile(t *testing.T) {
	testExecutors(t, func(t *testing.T, forkServer bool) {
		env, cmap := makeTestExecutor(t, forkServer, "", InputPlaceholder)
		res, err := env.Exec([]byte("zzz"))
		require.NoError(t, err)
		assert.Equal(t, StatusNormal, res.Status)
		assert.Equal(t, byte(3), cmap.Bytes()['z'])
		cmap.Reset()
		// Shorter input must not see leftovers of the previous one.
		res, err = env.Exec([]byte("z"))
		require.NoError(t, err)
		assert.Equal(t, StatusNormal, res.Status)
		assert.Equal(t, byte(1), cmap.Bytes()['z'])
	})
}

func TestForkserverAutoDict(t *testing.T) {
	env, _ := makeTestExecutor(t, true, "autodict")
	assert.Equal(t, [][]byte{[]byte("abc"), []byte("xy")}, env.(AutoDictionary).AutoTokens())
	res, err := env.Exec([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, StatusNormal, res.Status)
}

func TestForkserverHandshakeFailure(t *testing.T) {
	for _, hello := range []string{"none", "bigmap"} {
		cmap, err := cover.NewSharedMap(256)
		if err != nil {
			t.Skipf("no shared memory: %v", err)
		}
		defer cmap.Close()
		cfg := &Config{
			Args:          []string{os.Args[0]},
			Workdir:       t.TempDir(),
			Env:           []string{envTarget + "=forkserver", envHello + "=" + hello},
			UseForkServer: true,
		}
		_, err = Make(cfg, cmap)
		var failure ExecutorFailure
		assert.True(t, errors.As(err, &failure), "hello=%v err=%v", hello, err)
	}
}

func TestMakeNoTarget(t *testing.T) {
	cmap, err := cover.NewMap(16)
	require.NoError(t, err)
	_, err = Make(&Config{}, cmap)
	assert.Error(t, err)
	_, err = Make(&Config{Args: []string{"/nonexistent/target"}, Workdir: t.TempDir()}, cmap)
	assert.Error(t, err)
}

func TestParseAutoDict(t *testing.T) {
	toks, err := ParseAutoDict([]byte("\x01a\x03bcd"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("bcd")}, toks)
	_, err = ParseAutoDict([]byte("\x05ab"))
	assert.Error(t, err)
	_, err = ParseAutoDict([]byte("\x00"))
	assert.Error(t, err)
}

func TestOutputBuffer(t *testing.T) {
	var out outputBuffer
	out.Write([]byte("abc"))
	out.Write([]byte("def"))
	assert.Equal(t, []byte("abcdef"), out.take())
	assert.Nil(t, out.take())
	big := bytes.Repeat([]byte{'x'}, outputBufSize)
	out.Write(big)
	out.Write([]byte("tail"))
	got := out.take()
	assert.LessOrEqual(t, len(got), outputBufSize*3/4)
	assert.True(t, bytes.HasSuffix(got, []byte("tail")))
}
