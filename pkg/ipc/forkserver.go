// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build unix

package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/cover"
	"github.com/forkfuzz/forkfuzz/pkg/log"
	"github.com/forkfuzz/forkfuzz/pkg/osutil"
	"golang.org/x/sys/unix"
)

// Forkserver drives the fork server that AFL instrumentation embeds into the target.
//
// The target is started once. Its fork server stops before main, says hello on the
// status pipe, and then for every 4-byte request on the control pipe forks a child,
// reports the child pid, and after the child exits reports its wait status.
type Forkserver struct {
	cfg      *Config
	cmap     *cover.Map
	timeout  time.Duration
	cmd      *exec.Cmd
	ctl      *os.File
	st       *os.File
	input    *inputFile
	output   *outputBuffer
	state    State
	killed   bool
	options  uint32
	mapSize  int
	autoDict [][]byte
}

func NewForkserver(cfg *Config, cmap *cover.Map) (*Forkserver, error) {
	input, argv, err := newInputFile(cfg.Workdir, cfg.Args)
	if err != nil {
		return nil, err
	}
	fs := &Forkserver{
		cfg:     cfg,
		cmap:    cmap,
		timeout: sanitizeTimeout(cfg),
		input:   input,
		mapSize: cmap.Len(),
	}
	defer func() {
		if fs != nil {
			fs.Close()
		}
	}()

	// fuzzer->target control pipe.
	ctlR, ctlW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	defer ctlR.Close()
	fs.ctl = ctlW

	// target->fuzzer status pipe.
	stR, stW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	defer stW.Close()
	fs.st = stR

	cmd := osutil.Command(argv[0], argv[1:]...)
	// ExtraFiles[i] becomes fd 3+i, nil entries are closed in the child.
	extra := make([]*os.File, forkSrvStatusFd-2)
	extra[forkSrvCtlFd-3] = ctlR
	extra[forkSrvStatusFd-3] = stW
	cmd.ExtraFiles = extra
	cmd.Env = targetEnv(cfg, cmap)
	if input.stdin {
		cmd.Stdin = input.file
	}
	switch {
	case cfg.Debug:
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	case cfg.CaptureOutput:
		fs.output = new(outputBuffer)
		cmd.Stdout = fs.output
		cmd.Stderr = fs.output
	}
	// Forked children inherit the output pipe, don't let them block Wait forever.
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start target %v: %w", argv[0], err)
	}
	fs.cmd = cmd
	ctlR.Close()
	stW.Close()

	if err := fs.handshake(); err != nil {
		return nil, err
	}
	log.Logf(1, "fork server is up: pid=%v options=0x%x map=%v tokens=%v",
		cmd.Process.Pid, fs.options, fs.mapSize, len(fs.autoDict))
	tmp := fs
	fs = nil // disable defer above
	return tmp, nil
}

func (fs *Forkserver) handshake() error {
	// Instrumented constructors and dynamic linking can take a while, but a target
	// that does not say hello in this time most likely has no fork server at all.
	timeout := max(10*fs.timeout, 10*time.Second)
	hello, err := fs.readWord(timeout)
	if err != nil {
		return fs.handshakeError(fmt.Errorf("fork server handshake failed: %w", err))
	}
	if hello&fsOptError == fsOptError {
		return fs.handshakeError(fmt.Errorf("fork server reported error %v",
			forkserverErrorString((hello&0x00ffff00)>>8)))
	}
	if hello&fsOptEnabled != fsOptEnabled {
		// Plain AFL fork server, nothing to negotiate.
		return nil
	}
	fs.options = hello
	if hello&fsOptShmemFuzz == fsOptShmemFuzz {
		return fs.handshakeError(fmt.Errorf("target requested shared memory input delivery" +
			" which is not supported"))
	}
	if hello&fsOptMapSize == fsOptMapSize {
		size := int((hello&0x00fffffe)>>1) + 1
		if size > fs.cmap.Len() {
			return fs.handshakeError(fmt.Errorf("target coverage map size %v is larger than"+
				" the fuzzer map size %v, increase map_size", size, fs.cmap.Len()))
		}
		fs.mapSize = size
	}
	if hello&fsOptAutoDict == fsOptAutoDict {
		if err := fs.writeWord(fsOptEnabled | fsOptAutoDict); err != nil {
			return fs.handshakeError(err)
		}
		size, err := fs.readWord(timeout)
		if err != nil {
			return fs.handshakeError(fmt.Errorf("failed to read auto dictionary size: %w", err))
		}
		if size < 2 || size > maxAutoDictSize {
			return fs.handshakeError(fmt.Errorf("bad auto dictionary size %v", size))
		}
		data := make([]byte, size)
		fs.st.SetReadDeadline(time.Now().Add(timeout))
		if _, err := io.ReadFull(fs.st, data); err != nil {
			return fs.handshakeError(fmt.Errorf("failed to read auto dictionary: %w", err))
		}
		fs.autoDict, err = ParseAutoDict(data)
		if err != nil {
			return fs.handshakeError(err)
		}
	}
	return nil
}

func (fs *Forkserver) handshakeError(err error) error {
	fs.cmd.Process.Kill()
	fs.cmd.Wait()
	msg := fmt.Sprintf("target %v: %v", fs.cfg.Args[0], err)
	if fs.cmd.ProcessState != nil {
		msg += fmt.Sprintf(" (%v)", fs.cmd.ProcessState)
	}
	if fs.output != nil {
		if out := fs.output.take(); len(out) != 0 {
			msg += fmt.Sprintf("\n%s", out)
		}
	}
	fs.cmd = nil
	return ExecutorFailure(msg)
}

// Exec runs the target once on the input.
func (fs *Forkserver) Exec(input []byte) (*Result, error) {
	if err := fs.input.write(input); err != nil {
		return nil, err
	}
	if fs.output != nil {
		fs.output.take()
	}
	killed := uint32(0)
	if fs.killed {
		killed = 1
	}
	fs.killed = false
	if err := fs.writeWord(killed); err != nil {
		return nil, fs.deadError("failed to request a run", err)
	}
	pid, err := fs.readWord(fs.timeout + 10*time.Second)
	if err != nil {
		return nil, fs.deadError("failed to read child pid", err)
	}
	if int32(pid) <= 0 {
		return nil, fs.deadError("fork failed", fmt.Errorf("pid %v", int32(pid)))
	}
	fs.state = StateRunning
	start := time.Now()
	status, err := fs.readWord(fs.timeout)
	timedOut := false
	if errors.Is(err, os.ErrDeadlineExceeded) {
		timedOut = true
		fs.killed = true
		if err := unix.Kill(int(pid), unix.SIGKILL); err != nil && err != unix.ESRCH {
			log.Logf(0, "failed to kill child %v: %v", pid, err)
		}
		status, err = fs.readWord(10 * time.Second)
	}
	elapsed := time.Since(start)
	if err != nil {
		return nil, fs.deadError("failed to read child status", err)
	}
	res := &Result{Elapsed: elapsed}
	fs.state = classify(syscall.WaitStatus(status), timedOut, res)
	if fs.output != nil {
		res.Output = fs.output.take()
	}
	return res, nil
}

// State returns the state of the last child.
func (fs *Forkserver) State() State {
	return fs.state
}

// AutoTokens returns the dictionary the instrumentation extracted from the target.
func (fs *Forkserver) AutoTokens() [][]byte {
	return fs.autoDict
}

// MapSize returns the map size the target reported, or the full map size.
func (fs *Forkserver) MapSize() int {
	return fs.mapSize
}

func (fs *Forkserver) deadError(what string, err error) error {
	msg := fmt.Sprintf("fork server: %v: %v", what, err)
	if fs.cmd != nil && fs.cmd.ProcessState != nil {
		msg += fmt.Sprintf(" (%v)", fs.cmd.ProcessState)
	}
	return errors.New(msg)
}

func (fs *Forkserver) Close() error {
	if fs.cmd != nil {
		fs.cmd.Process.Kill()
		fs.cmd.Wait()
		fs.cmd = nil
	}
	if fs.ctl != nil {
		fs.ctl.Close()
		fs.ctl = nil
	}
	if fs.st != nil {
		fs.st.Close()
		fs.st = nil
	}
	if fs.input != nil {
		fs.input.close()
		fs.input = nil
	}
	fs.state = StateIdle
	return nil
}

func (fs *Forkserver) readWord(timeout time.Duration) (uint32, error) {
	var buf [4]byte
	if err := fs.st.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	if _, err := io.ReadFull(fs.st, buf[:]); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(buf[:]), nil
}

func (fs *Forkserver) writeWord(v uint32) error {
	var buf [4]byte
	binary.NativeEndian.PutUint32(buf[:], v)
	_, err := fs.ctl.Write(buf[:])
	return err
}
