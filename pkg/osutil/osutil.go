// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	DefaultDirPerm  = 0755
	DefaultFilePerm = 0644
)

// Command is similar to os/exec.Command, but also sets PDEATHSIG on linux
// so that targets do not outlive the fuzzer.
func Command(bin string, args ...string) *exec.Cmd {
	cmd := exec.Command(bin, args...)
	setPdeathsig(cmd)
	return cmd
}

// Run runs cmd with the specified timeout and returns its combined output.
// If the command fails, the error is a *VerboseError that includes the output.
func Run(timeout time.Duration, cmd *exec.Cmd) ([]byte, error) {
	output := new(bytes.Buffer)
	if cmd.Stdout == nil {
		cmd.Stdout = output
	}
	if cmd.Stderr == nil {
		cmd.Stderr = output
	}
	setPdeathsig(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %v %+v: %w", cmd.Path, cmd.Args, err)
	}
	timer := time.AfterFunc(timeout, func() {
		cmd.Process.Kill()
	})
	err := cmd.Wait()
	timedOut := !timer.Stop()
	if err == nil {
		return output.Bytes(), nil
	}
	verr := &VerboseError{
		Title:  fmt.Sprintf("failed to run %q: %v", cmd.Args, err),
		Output: output.Bytes(),
	}
	if timedOut {
		verr.Title = fmt.Sprintf("timedout after %v %q", timeout, cmd.Args)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		verr.ExitCode = exitErr.ExitCode()
	}
	return output.Bytes(), verr
}

type VerboseError struct {
	Title    string
	Output   []byte
	ExitCode int
}

func (err *VerboseError) Error() string {
	if len(err.Output) == 0 {
		return err.Title
	}
	return fmt.Sprintf("%v\n%s", err.Title, err.Output)
}

// IsExist returns true if the file name exists.
func IsExist(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// IsAccessible checks that the directory exists and can be listed.
func IsAccessible(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%v can't be listed: %w", dir, err)
	}
	return nil
}

func MkdirAll(dir string) error {
	return os.MkdirAll(dir, DefaultDirPerm)
}

// WriteFile writes data to a temp file next to filename and renames it into place,
// so that readers never observe partially written files.
func WriteFile(filename string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(filename), "."+filepath.Base(filename)+".tmp")
	if err := os.WriteFile(tmp, data, DefaultFilePerm); err != nil {
		return err
	}
	if err := os.Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ListDir returns the sorted names of regular files in dir, ignoring dot files.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, ent := range entries {
		if strings.HasPrefix(ent.Name(), ".") || !ent.Type().IsRegular() {
			continue
		}
		names = append(names, ent.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Abs returns absolute path for a path (or returns the path as is if it is empty
// or the conversion fails).
func Abs(path string) string {
	if path == "" {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
