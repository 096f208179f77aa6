// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package report extracts crash descriptions from target output.
package report

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/forkfuzz/forkfuzz/pkg/ipc"
	"github.com/ianlancetaylor/demangle"
	"golang.org/x/sys/unix"
)

type Report struct {
	// Title is a one-line description of the crash, e.g.
	// "ASAN: heap-buffer-overflow Read in parse_header".
	Title string
	// Frame is the first frame of the stack that does not belong to the runtime or libc.
	Frame string
	// Report is the part of the output starting from the crash header.
	Report []byte
	// StartPos is the offset of the crash header in the output.
	StartPos int
}

type oops struct {
	header       []byte
	formats      []oopsFormat
	suppressions []*regexp.Regexp
}

type oopsFormat struct {
	re  *regexp.Regexp
	fmt string
	// frame says to append the first interesting stack frame to the title.
	frame bool
}

func compile(re string) *regexp.Regexp {
	re = strings.Replace(re, "{{ADDR}}", "0x[0-9a-f]+", -1)
	re = strings.Replace(re, "{{KIND}}", "([a-zA-Z0-9-]+)", -1)
	re = strings.Replace(re, "{{SRC}}", "([a-zA-Z0-9-_/.]+\\.[a-z]+:[0-9]+)", -1)
	return regexp.MustCompile(re)
}

var oopses = []*oops{
	{
		header: []byte("ERROR: AddressSanitizer:"),
		formats: []oopsFormat{
			{
				re:    compile(`ERROR: AddressSanitizer: {{KIND}} on (?:address|unknown address) {{ADDR}}[^\n]*\n(?:[^\n]*\n)*?(READ|WRITE) of size`),
				fmt:   "ASAN: %[1]v %[2]v",
				frame: true,
			},
			{
				re:    compile(`ERROR: AddressSanitizer: {{KIND}}`),
				fmt:   "ASAN: %[1]v",
				frame: true,
			},
		},
	},
	{
		header: []byte("ERROR: MemorySanitizer:"),
		formats: []oopsFormat{
			{
				re:    compile(`ERROR: MemorySanitizer: {{KIND}}`),
				fmt:   "MSAN: %[1]v",
				frame: true,
			},
		},
	},
	{
		header: []byte("ERROR: LeakSanitizer:"),
		formats: []oopsFormat{
			{
				re:    compile(`ERROR: LeakSanitizer: detected memory leaks`),
				fmt:   "LSAN: memory leak",
				frame: true,
			},
		},
	},
	{
		header: []byte("WARNING: ThreadSanitizer:"),
		formats: []oopsFormat{
			{
				re:    compile(`WARNING: ThreadSanitizer: ([a-z- ]+?) \(`),
				fmt:   "TSAN: %[1]v",
				frame: true,
			},
		},
	},
	{
		header: []byte("panic: "),
		formats: []oopsFormat{
			{
				re:  compile(`panic: ([^\n]+)`),
				fmt: "panic: %[1]v",
			},
		},
		suppressions: []*regexp.Regexp{
			regexp.MustCompile(`panic: test timed out`),
		},
	},
	{
		header: []byte("runtime error:"),
		formats: []oopsFormat{
			{
				re:  compile(`{{SRC}}:[0-9]+: runtime error: ([^\n]+?)(?: of type|\n|$)`),
				fmt: "UBSAN: %[2]v in %[1]v",
			},
			{
				re:  compile(`runtime error: ([^\n]+)`),
				fmt: "UBSAN: %[1]v",
			},
		},
	},
}

// ContainsCrash reports whether the output contains a sanitizer report.
func ContainsCrash(output []byte) bool {
	for _, line := range bytes.Split(output, []byte("\n")) {
		for _, oops := range oopses {
			if matchOops(line, oops) != -1 {
				return true
			}
		}
	}
	return false
}

// Parse returns the first sanitizer report in the output, or nil.
func Parse(output []byte) *Report {
	for pos := 0; pos < len(output); {
		next := bytes.IndexByte(output[pos:], '\n')
		if next != -1 {
			next += pos
		} else {
			next = len(output)
		}
		for _, oops := range oopses {
			match := matchOops(output[pos:next], oops)
			if match == -1 {
				continue
			}
			rep := &Report{
				StartPos: pos + match,
				Report:   output[pos+match:],
			}
			rep.Title, rep.Frame = extractDescription(rep.Report, oops)
			return rep
		}
		pos = next + 1
	}
	return nil
}

func matchOops(line []byte, oops *oops) int {
	match := bytes.Index(line, oops.header)
	if match == -1 {
		return -1
	}
	for _, supp := range oops.suppressions {
		if supp.Match(line) {
			return -1
		}
	}
	return match
}

func extractDescription(output []byte, oops *oops) (string, string) {
	desc, frame := "", ""
	for _, format := range oops.formats {
		match := format.re.FindSubmatch(output)
		if match == nil {
			continue
		}
		var args []any
		for _, arg := range match[1:] {
			switch s := string(arg); s {
			case "READ", "WRITE":
				args = append(args, s[:1]+strings.ToLower(s[1:]))
			default:
				args = append(args, s)
			}
		}
		desc = fmt.Sprintf(format.fmt, args...)
		if format.frame {
			frame = firstFrame(output)
			if frame != "" {
				desc += " in " + frame
			}
		}
		break
	}
	if desc == "" {
		end := bytes.IndexByte(output, '\n')
		if end == -1 {
			end = len(output)
		}
		desc = string(output[:end])
	}
	desc = strings.TrimRight(desc, "\r ")
	// Corrupted/intermixed lines can be very long.
	const maxDescLen = 180
	if len(desc) > maxDescLen {
		desc = desc[:maxDescLen]
	}
	return desc, frame
}

var frameRe = regexp.MustCompile(`(?m)^\s*#[0-9]+ 0x[0-9a-f]+ in ([^\n]+)$`)

// Frames of the sanitizer runtime and of libc routines that report the bug
// rather than cause it.
var skipFrames = []string{
	"__asan", "__msan", "__lsan", "__tsan", "__ubsan", "__sanitizer", "__interceptor_",
	"___interceptor_", "__GI_", "__libc_", "__memcpy", "__memmove", "__memset", "__strlen",
	"malloc", "calloc", "realloc", "free", "operator new", "operator delete",
	"memcpy", "memmove", "memset", "memcmp", "strcpy", "strncpy", "strlen", "strcmp",
	"abort", "raise", "gsignal",
}

func firstFrame(output []byte) string {
	for _, match := range frameRe.FindAllSubmatch(output, -1) {
		fn := frameFunc(string(match[1]))
		if fn == "" || skipFrame(fn) {
			continue
		}
		return fn
	}
	return ""
}

// frameFunc extracts the function name from the frame text following "in ":
//
//	parse_header(char const*) /src/parse.c:10:3
//	_Z12parse_headerPKc (/out/target+0x4f6f3d)
func frameFunc(frame string) string {
	fn := frame
	if sp := strings.LastIndexByte(frame, ' '); sp != -1 {
		fn = frame[:sp]
	}
	fn = strings.TrimSpace(fn)
	if strings.HasPrefix(fn, "_Z") {
		if d, err := demangle.ToString(fn, demangle.NoParams); err == nil {
			return d
		}
	}
	if !strings.HasPrefix(fn, "operator") {
		if paren := strings.IndexByte(fn, '('); paren > 0 {
			fn = fn[:paren]
		}
	}
	return fn
}

func skipFrame(fn string) bool {
	for _, prefix := range skipFrames {
		if !strings.HasPrefix(fn, prefix) {
			continue
		}
		if strings.HasPrefix(prefix, "__") || len(fn) == len(prefix) || !isIdentChar(fn[len(prefix)]) {
			return true
		}
	}
	return false
}

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// Title returns a one-line description of a crashed or timed out execution.
func Title(output []byte, res *ipc.Result) string {
	if rep := Parse(output); rep != nil {
		return rep.Title
	}
	switch {
	case res.Status == ipc.StatusTimedOut:
		return "timeout"
	case res.Signal != 0:
		name := unix.SignalName(res.Signal)
		if name == "" {
			name = fmt.Sprintf("signal %d", int(res.Signal))
		}
		return "crash: " + name
	case res.ExitCode == ipc.SanitizerExitCode:
		return fmt.Sprintf("sanitizer error (exit code %v)", ipc.SanitizerExitCode)
	case res.Status == ipc.StatusCrashed:
		return "crash"
	}
	return ""
}
