// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ipc

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forkfuzz/forkfuzz/pkg/osutil"
)

const inputFileName = ".cur_input"

// inputFile is the file the current input is written to before each execution.
// When the target reads stdin, the same open file is its stdin: parent and all
// forked children share the file offset, so the file is rewound after every write.
type inputFile struct {
	path  string
	file  *os.File
	stdin bool
}

func newInputFile(workdir string, args []string) (*inputFile, []string, error) {
	if workdir == "" {
		workdir = "."
	}
	if err := osutil.MkdirAll(workdir); err != nil {
		return nil, nil, fmt.Errorf("failed to create workdir: %w", err)
	}
	path := osutil.Abs(filepath.Join(workdir, inputFileName))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create input file: %w", err)
	}
	inp := &inputFile{path: path, file: f, stdin: true}
	argv := append([]string{}, args...)
	for i := 1; i < len(argv); i++ {
		if argv[i] == InputPlaceholder {
			argv[i] = path
			inp.stdin = false
		}
	}
	return inp, argv, nil
}

func (inp *inputFile) write(data []byte) error {
	if _, err := inp.file.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to seek input file: %w", err)
	}
	if err := inp.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate input file: %w", err)
	}
	if _, err := inp.file.Write(data); err != nil {
		return fmt.Errorf("failed to write input file: %w", err)
	}
	if _, err := inp.file.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to seek input file: %w", err)
	}
	return nil
}

func (inp *inputFile) close() {
	inp.file.Close()
	os.Remove(inp.path)
}
