// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log is a thin wrapper around the standard log package that adds:
//   - a global verbosity level shared by all packages (-vv flag)
//   - non-fatal error reporting that is counted
//   - an in-memory ring of recent messages that is dumped on fatal errors
package log

import (
	"flag"
	"fmt"
	golog "log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	flagV = flag.Int("vv", 0, "verbosity")

	mu        sync.Mutex
	ring      []string
	ringPos   int
	ringBytes int
	ringLimit int
	stampTime = true

	errorCount atomic.Uint64
)

// EnableLogCaching keeps the last maxLines messages (up to maxMem bytes total)
// of verbosity 0 and 1 in memory. They can be retrieved with CachedLogOutput.
func EnableLogCaching(maxLines, maxMem int) {
	mu.Lock()
	defer mu.Unlock()
	if ring != nil {
		panic("log caching is already enabled")
	}
	if maxLines < 1 || maxMem < 1 {
		panic("invalid maxLines/maxMem")
	}
	ring = make([]string, maxLines)
	ringLimit = maxMem
}

// CachedLogOutput returns the cached messages, oldest first.
func CachedLogOutput() string {
	mu.Lock()
	defer mu.Unlock()
	var sb strings.Builder
	for i := range ring {
		line := ring[(ringPos+i)%len(ring)]
		if line == "" {
			continue
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// V reports whether messages of verbosity v are printed.
func V(v int) bool {
	return v <= *flagV
}

// SetVerbosity overrides the -vv flag value.
func SetVerbosity(v int) {
	*flagV = v
}

func Logf(v int, msg string, args ...any) {
	if v <= 1 {
		cache(msg, args...)
	}
	if V(v) {
		golog.Printf(msg, args...)
	}
}

// Errorf reports a recoverable problem. It is always printed.
func Errorf(msg string, args ...any) {
	errorCount.Add(1)
	Logf(0, "ERROR: "+msg, args...)
}

// ErrorCount returns the number of Errorf calls so far.
func ErrorCount() uint64 {
	return errorCount.Load()
}

func Fatal(err error) {
	Fatalf("%v", err)
}

// Fatalf prints the message and exits with status 1.
// If caching is enabled, the cached output is dumped first when verbose.
func Fatalf(msg string, args ...any) {
	if V(1) {
		if out := CachedLogOutput(); out != "" {
			fmt.Fprintf(os.Stderr, "recent log output:\n%s", out)
		}
	}
	golog.Fatalf(msg, args...)
}

func cache(msg string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if ring == nil {
		return
	}
	line := fmt.Sprintf(msg, args...)
	if stampTime {
		line = time.Now().Format("2006/01/02 15:04:05 ") + line
	}
	ringBytes += len(line) - len(ring[ringPos])
	ring[ringPos] = line
	ringPos = (ringPos + 1) % len(ring)
	// Evict the oldest entries until we fit, but always keep the newest one.
	for i := 0; i < len(ring)-1 && ringBytes > ringLimit; i++ {
		pos := (ringPos + i) % len(ring)
		ringBytes -= len(ring[pos])
		ring[pos] = ""
	}
}

// VerboseWriter is an io.Writer that logs everything written at the given verbosity.
type VerboseWriter int

func (w VerboseWriter) Write(data []byte) (int, error) {
	Logf(int(w), "%s", data)
	return len(data), nil
}
