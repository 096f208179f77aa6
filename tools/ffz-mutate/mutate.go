// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// ffz-mutate mutates a given input and prints the results.
// Runs with the same -seed print the same mutations.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/mutator"
	"github.com/forkfuzz/forkfuzz/pkg/osutil"
	"github.com/forkfuzz/forkfuzz/pkg/tool"
	dmp "github.com/sergi/go-diff/diffmatchpatch"
)

var (
	flagSeed   = flag.Int64("seed", -1, "prng seed")
	flagCount  = flag.Int("n", 1, "number of mutations")
	flagCorpus = flag.String("corpus", "", "directory with inputs for crossover")
	flagDict   = flag.String("dict", "", "AFL dictionary file")
	flagMaxLen = flag.Int("maxlen", mutator.DefaultMaxLen, "maximum length of mutated inputs")
	flagOut    = flag.String("o", "", "write mutations into this directory instead of printing")
	flagDiff   = flag.Bool("diff", false, "print hex diffs against the input instead of dumps")
)

func main() {
	defer tool.Init()()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: ffz-mutate [flags] input\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	seed := time.Now().UnixNano()
	if *flagSeed != -1 {
		seed = *flagSeed
	}
	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		tool.Failf("failed to read input: %v", err)
	}
	mut := &mutator.Mutator{
		Tokens: mutator.NewTokens(),
		MaxLen: *flagMaxLen,
	}
	if *flagDict != "" {
		if _, err := mut.Tokens.AddFile(*flagDict, 0); err != nil {
			tool.Fail(err)
		}
	}
	var inputs mutator.Inputs
	if *flagCorpus != "" {
		names, err := osutil.ListDir(*flagCorpus)
		if err != nil {
			tool.Fail(err)
		}
		for _, name := range names {
			inp, err := os.ReadFile(filepath.Join(*flagCorpus, name))
			if err != nil {
				tool.Fail(err)
			}
			inputs = append(inputs, inp)
		}
	}
	if *flagOut != "" {
		if err := osutil.MkdirAll(*flagOut); err != nil {
			tool.Fail(err)
		}
	}
	fmt.Fprintf(os.Stderr, "seed %v\n", seed)
	rnd := rand.New(rand.NewSource(seed))
	for i := 0; i < *flagCount; i++ {
		res := mut.Mutate(rnd, data, inputs)
		if *flagOut != "" {
			if err := osutil.WriteFile(filepath.Join(*flagOut, fmt.Sprintf("mut-%06v", i)), res); err != nil {
				tool.Fail(err)
			}
			continue
		}
		if *flagDiff {
			fmt.Printf("#%v (%v bytes) %v\n", i, len(res), hexDiff(data, res))
			continue
		}
		fmt.Printf("#%v (%v bytes)\n%s", i, len(res), hex.Dump(res))
	}
}

// hexDiff shows the mutation as a diff of hex encodings: [-removed-] and {+inserted+}.
func hexDiff(from, to []byte) string {
	differ := dmp.New()
	diffs := differ.DiffMain(hex.EncodeToString(from), hex.EncodeToString(to), false)
	buf := new(strings.Builder)
	for _, diff := range diffs {
		switch diff.Type {
		case dmp.DiffEqual:
			if len(diff.Text) > 16 {
				fmt.Fprintf(buf, "%v..%v", diff.Text[:6], diff.Text[len(diff.Text)-6:])
			} else {
				buf.WriteString(diff.Text)
			}
		case dmp.DiffDelete:
			fmt.Fprintf(buf, "[-%v-]", diff.Text)
		case dmp.DiffInsert:
			fmt.Fprintf(buf, "{+%v+}", diff.Text)
		}
	}
	return buf.String()
}
