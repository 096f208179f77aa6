// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mutator

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/forkfuzz/forkfuzz/pkg/ipc"
	"github.com/forkfuzz/forkfuzz/pkg/osutil"
)

// MaxTokenLen is the maximum length of a dictionary token.
const MaxTokenLen = 128

// Tokens is an append-only set of dictionary tokens.
type Tokens struct {
	mu   sync.RWMutex
	list [][]byte
	seen map[string]bool
}

func NewTokens() *Tokens {
	return &Tokens{seen: make(map[string]bool)}
}

// Add adds the token and reports whether it was not present.
// Empty and too long tokens are ignored.
func (t *Tokens) Add(tok []byte) bool {
	if len(tok) == 0 || len(tok) > MaxTokenLen {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen[string(tok)] {
		return false
	}
	t.seen[string(tok)] = true
	t.list = append(t.list, append([]byte(nil), tok...))
	return true
}

// AddAll adds tokens and returns the number of new ones.
func (t *Tokens) AddAll(toks [][]byte) int {
	added := 0
	for _, tok := range toks {
		if t.Add(tok) {
			added++
		}
	}
	return added
}

// AddAutoDict adds tokens from an auto dictionary blob in the fork server format.
func (t *Tokens) AddAutoDict(blob []byte) (int, error) {
	toks, err := ipc.ParseAutoDict(blob)
	if err != nil {
		return 0, err
	}
	return t.AddAll(toks), nil
}

// AddFile adds tokens from an AFL dictionary file, or from all files in a directory
// (one token per file). Entries with level above maxLevel are skipped.
func (t *Tokens) AddFile(path string, maxLevel int) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		toks, err := ParseDictionary(data, maxLevel)
		if err != nil {
			return 0, fmt.Errorf("%v: %w", path, err)
		}
		return t.AddAll(toks), nil
	}
	files, err := osutil.ListDir(path)
	if err != nil {
		return 0, err
	}
	var toks [][]byte
	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(path, file))
		if err != nil {
			return 0, err
		}
		toks = append(toks, data)
	}
	return t.AddAll(toks), nil
}

func (t *Tokens) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.list)
}

// List returns all tokens in insertion order.
func (t *Tokens) List() [][]byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([][]byte(nil), t.list...)
}

func (t *Tokens) pick(r *randGen) []byte {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.list) == 0 {
		return nil
	}
	return t.list[r.Intn(len(t.list))]
}

// ParseDictionary parses an AFL dictionary:
//
//	# comment
//	"plain"
//	name="with \"escapes\" \\ and \x00 bytes"
//	rare@2="only used with a level of 2 or higher"
//
// Entries with level above maxLevel are skipped.
func ParseDictionary(data []byte, maxLevel int) ([][]byte, error) {
	var res [][]byte
	for i, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		tok, level, err := parseDictLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %v: %w", i+1, err)
		}
		if level > maxLevel {
			continue
		}
		res = append(res, tok)
	}
	return res, nil
}

func parseDictLine(line []byte) ([]byte, int, error) {
	level := 0
	if line[len(line)-1] != '"' {
		return nil, 0, fmt.Errorf("entry must end with '\"'")
	}
	quote := bytes.IndexByte(line, '"')
	if quote == len(line)-1 {
		return nil, 0, fmt.Errorf("unterminated value")
	}
	if quote != 0 {
		name := bytes.TrimSpace(line[:quote])
		if len(name) == 0 || name[len(name)-1] != '=' {
			return nil, 0, fmt.Errorf("expected '=' before value")
		}
		name = bytes.TrimSpace(name[:len(name)-1])
		if at := bytes.IndexByte(name, '@'); at != -1 {
			v, err := strconv.Atoi(string(name[at+1:]))
			if err != nil || v < 0 {
				return nil, 0, fmt.Errorf("bad level %q", name[at+1:])
			}
			level = v
			name = name[:at]
		}
		for _, c := range name {
			if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
				return nil, 0, fmt.Errorf("bad character %q in entry name", c)
			}
		}
	}
	tok, err := unescape(line[quote+1 : len(line)-1])
	if err != nil {
		return nil, 0, err
	}
	if len(tok) == 0 {
		return nil, 0, fmt.Errorf("empty value")
	}
	if len(tok) > MaxTokenLen {
		return nil, 0, fmt.Errorf("value is longer than %v bytes", MaxTokenLen)
	}
	return tok, level, nil
}

func unescape(val []byte) ([]byte, error) {
	var res []byte
	for i := 0; i < len(val); i++ {
		c := val[i]
		switch {
		case c == '\\':
			i++
			if i == len(val) {
				return nil, fmt.Errorf("trailing '\\'")
			}
			switch val[i] {
			case '\\', '"':
				res = append(res, val[i])
			case 'x':
				if i+2 >= len(val) {
					return nil, fmt.Errorf("truncated \\x escape")
				}
				v, err := strconv.ParseUint(string(val[i+1:i+3]), 16, 8)
				if err != nil {
					return nil, fmt.Errorf("bad \\x escape %q", val[i+1:i+3])
				}
				res = append(res, byte(v))
				i += 2
			default:
				return nil, fmt.Errorf("unknown escape \\%c", val[i])
			}
		case c == '"':
			return nil, fmt.Errorf("unescaped '\"' in value")
		case c < 32 || c > 126:
			return nil, fmt.Errorf("non-printable character 0x%02x in value", c)
		default:
			res = append(res, c)
		}
	}
	return res, nil
}
