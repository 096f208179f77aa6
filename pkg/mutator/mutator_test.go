// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mutator

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/forkfuzz/forkfuzz/pkg/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutateDeterminism(t *testing.T) {
	tokens := NewTokens()
	tokens.Add([]byte("token"))
	m := &Mutator{Tokens: tokens, MaxLen: 256}
	corpus := Inputs{[]byte("other input"), []byte("0123456789")}
	seed := []byte("the seed input")
	run := func(s int64) [][]byte {
		r := rand.New(rand.NewSource(s))
		var res [][]byte
		for i := 0; i < 100; i++ {
			res = append(res, m.Mutate(r, seed, corpus))
		}
		return res
	}
	assert.Equal(t, run(42), run(42))
	assert.NotEqual(t, run(42), run(43))
}

func TestMutateSeedUnchanged(t *testing.T) {
	r := rand.New(testutil.RandSource(t))
	m := &Mutator{MaxLen: 64}
	seed := []byte("0123456789abcdef")
	orig := append([]byte(nil), seed...)
	changed := 0
	for i := 0; i < testutil.IterCount(); i++ {
		res := m.Mutate(r, seed, nil)
		require.Equal(t, orig, seed)
		require.NotEmpty(t, res)
		require.LessOrEqual(t, len(res), 64)
		if !bytes.Equal(res, seed) {
			changed++
		}
	}
	assert.Greater(t, changed, testutil.IterCount()/2)
}

func TestMutateEmptySeed(t *testing.T) {
	r := rand.New(testutil.RandSource(t))
	m := &Mutator{}
	for i := 0; i < 10; i++ {
		assert.NotEmpty(t, m.Mutate(r, nil, nil))
	}
}

func TestMutateUsesTokensAndCorpus(t *testing.T) {
	r := rand.New(testutil.RandSource(t))
	tokens := NewTokens()
	tokens.Add([]byte("MAGIC"))
	m := &Mutator{Tokens: tokens, MaxLen: 1024}
	corpus := Inputs{[]byte("ZZZZZZZZZZZZZZZZ")}
	seed := bytes.Repeat([]byte{'a'}, 32)
	gotToken, gotSplice := false, false
	for i := 0; i < 1000 && !(gotToken && gotSplice); i++ {
		res := m.Mutate(r, seed, corpus)
		gotToken = gotToken || bytes.Contains(res, []byte("MAGIC"))
		gotSplice = gotSplice || bytes.Contains(res, []byte("ZZZZ"))
	}
	assert.True(t, gotToken)
	assert.True(t, gotSplice)
}

func TestMutationOps(t *testing.T) {
	r := &randGen{rand.New(testutil.RandSource(t))}
	tokens := NewTokens()
	tokens.Add([]byte("tok"))
	for _, op := range mutations {
		for i := 0; i < testutil.IterCount(); i++ {
			data := make([]byte, r.Intn(40))
			r.Read(data)
			ctx := &mutation{
				r:      r,
				data:   append([]byte(nil), data...),
				maxLen: 48,
				tokens: tokens,
				corpus: Inputs{[]byte("abcdefgh")},
			}
			ok := op.fn(ctx)
			require.LessOrEqual(t, len(ctx.data), 48, "op %v", op.name)
			if !ok {
				require.Equal(t, data, ctx.data, "op %v changed data but failed", op.name)
			}
		}
	}
}

func TestSwapInt(t *testing.T) {
	assert.Equal(t, uint64(0x0201), swapInt(0x0102, 2))
	assert.Equal(t, uint64(0x04030201), swapInt(0x01020304, 4))
	assert.Equal(t, uint64(0x0807060504030201), swapInt(0x0102030405060708, 8))
	buf := make([]byte, 8)
	storeInt(buf, 0x0102, 2)
	assert.Equal(t, []byte{2, 1, 0, 0, 0, 0, 0, 0}, buf)
	assert.Equal(t, uint64(0x0102), loadInt(buf, 2))
}

func TestParseDictionary(t *testing.T) {
	data := []byte(`
# comment
"plain"
  kw_1="with space"
esc="q\"b\\x\x00\xfF"
rare@2="rare"
common@0="common"
dup="plain"
`)
	toks, err := ParseDictionary(data, 1)
	require.NoError(t, err)
	want := [][]byte{
		[]byte("plain"),
		[]byte("with space"),
		[]byte("q\"b\\x\x00\xff"),
		[]byte("common"),
		[]byte("plain"),
	}
	if diff := cmp.Diff(want, toks); diff != "" {
		t.Fatal(diff)
	}
	toks, err = ParseDictionary(data, 2)
	require.NoError(t, err)
	assert.Len(t, toks, 6)
}

func TestParseDictionaryErrors(t *testing.T) {
	for _, line := range []string{
		`noquotes`,
		`"unterminated`,
		`"`,
		`""`,
		`name"value"`,
		`bad-name="value"`,
		`lvl@x="value"`,
		`"bad \q escape"`,
		`"short \x4"`,
		`"bad \xZZ"`,
		`"in"ner"`,
		"\"tab\tinside\"",
		`"trailing \"`,
	} {
		_, err := ParseDictionary([]byte(line), 0)
		assert.Error(t, err, "line: %s", line)
	}
}

func TestTokens(t *testing.T) {
	tokens := NewTokens()
	assert.True(t, tokens.Add([]byte("a")))
	assert.False(t, tokens.Add([]byte("a")))
	assert.False(t, tokens.Add(nil))
	assert.False(t, tokens.Add(make([]byte, MaxTokenLen+1)))
	n, err := tokens.AddAutoDict([]byte("\x01a\x02bc"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("bc")}, tokens.List())

	var nilTokens *Tokens
	assert.Equal(t, 0, nilTokens.Len())
}

func TestTokensAddFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.dict")
	require.NoError(t, os.WriteFile(file, []byte("\"GET\"\nx@3=\"POST\"\n"), 0644))
	tokens := NewTokens()
	n, err := tokens.AddFile(file, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tokDir := filepath.Join(dir, "tokens")
	require.NoError(t, os.Mkdir(tokDir, 0755))
	testutil.WriteFiles(t, tokDir, map[string][]byte{
		"1": []byte("HEAD"),
		"2": []byte("GET"),
	})
	n, err = tokens.AddFile(tokDir, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, tokens.Len())

	_, err = tokens.AddFile(filepath.Join(dir, "missing"), 0)
	assert.Error(t, err)
}
