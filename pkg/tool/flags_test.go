// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package tool

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseFlags(t *testing.T) {
	type Values struct {
		Dirs ListFlag
		Seed *int64
	}
	seed := func(v int64) *int64 { return &v }
	type Test struct {
		args string
		vals *Values
	}
	tests := []Test{
		{"", &Values{}},
		{"-i a -i b,c", &Values{Dirs: ListFlag{"a", "b", "c"}}},
		{"-seed 0x10", &Values{Seed: seed(16)}},
		{"-seed 0", &Values{Seed: seed(0)}},
		{"-seed foo", nil},
		{"-i a,,b", nil},
	}
	for i, test := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			vals := new(Values)
			var seed OptionalInt64
			flags := flag.NewFlagSet("", flag.ContinueOnError)
			flags.SetOutput(io.Discard)
			flags.Var(&vals.Dirs, "i", "")
			flags.Var(&seed, "seed", "")
			args := append(strings.Fields(test.args), "arg0", "arg1")
			err := flags.Parse(args)
			if test.vals == nil {
				if err == nil {
					t.Fatalf("parsing did not fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("parsing failed: %v", err)
			}
			vals.Seed = seed.Ptr()
			if diff := cmp.Diff(test.vals, vals); diff != "" {
				t.Fatal(diff)
			}
			if flags.NArg() != 2 || flags.Arg(0) != "arg0" || flags.Arg(1) != "arg1" {
				t.Fatalf("bad args: %q", flags.Args())
			}
		})
	}
}

func TestListFlagString(t *testing.T) {
	list := &ListFlag{"a", "b", "c"}
	if got, want := list.String(), "a,b,c"; got != want {
		t.Errorf("list.String got: %s, want: %s", got, want)
	}
}
