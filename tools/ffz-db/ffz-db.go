// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// ffz-db lists persisted corpora and moves them between machines as single xz archives.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forkfuzz/forkfuzz/pkg/corpus"
	"github.com/forkfuzz/forkfuzz/pkg/db"
	"github.com/forkfuzz/forkfuzz/pkg/osutil"
	"github.com/forkfuzz/forkfuzz/pkg/tool"
	"github.com/ulikunitz/xz"
)

const (
	archiveVersion = 1
	metaPrefix     = "meta/"
)

func main() {
	defer tool.Init()()
	args := flag.Args()
	switch {
	case len(args) == 2 && args[0] == "list":
		list(args[1])
	case len(args) == 3 && args[0] == "pack":
		pack(args[1], args[2])
	case len(args) == 3 && args[0] == "unpack":
		unpack(args[1], args[2])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  ffz-db list workdir/queue\n")
	fmt.Fprintf(os.Stderr, "  ffz-db pack workdir/queue corpus.xz\n")
	fmt.Fprintf(os.Stderr, "  ffz-db unpack corpus.xz workdir/queue\n")
	os.Exit(1)
}

func load(dir string) (*corpus.Corpus, []*corpus.Item) {
	if _, err := os.Stat(dir); err != nil {
		tool.Fail(err)
	}
	c, err := corpus.Open(filepath.Base(dir), dir)
	if err != nil {
		tool.Fail(err)
	}
	items, err := c.Load()
	if err != nil {
		tool.Fail(err)
	}
	return c, items
}

func list(dir string) {
	_, items := load(dir)
	for _, item := range items {
		fmt.Printf("%5v %v %7v %8v parent=%-5v edges=%-5v new=%-4v %v\n",
			item.ID, item.Name(), item.Len(), item.ExecTime, item.Parent,
			item.Signal.Len(), len(item.Novelties), item.Title)
	}
	fmt.Fprintf(os.Stderr, "%v inputs\n", len(items))
}

func pack(dir, archive string) {
	_, items := load(dir)
	records := make(map[string]db.Record)
	for _, item := range items {
		meta, err := json.Marshal(item.Meta)
		if err != nil {
			tool.Fail(err)
		}
		records[item.Name()] = db.Record{Val: item.Data, Seq: uint64(item.ID)}
		records[metaPrefix+item.Name()] = db.Record{Val: meta, Seq: uint64(item.ID)}
	}
	tmp := archive + ".tmp"
	defer os.Remove(tmp)
	if err := db.Create(tmp, archiveVersion, records); err != nil {
		tool.Fail(err)
	}
	in, err := os.Open(tmp)
	if err != nil {
		tool.Fail(err)
	}
	defer in.Close()
	out, err := os.Create(archive)
	if err != nil {
		tool.Fail(err)
	}
	w, err := xz.NewWriter(out)
	if err != nil {
		tool.Fail(err)
	}
	if _, err := io.Copy(w, in); err != nil {
		tool.Failf("failed to compress: %v", err)
	}
	if err := w.Close(); err != nil {
		tool.Failf("failed to compress: %v", err)
	}
	if err := out.Close(); err != nil {
		tool.Fail(err)
	}
	fmt.Fprintf(os.Stderr, "packed %v inputs\n", len(items))
}

func unpack(archive, dir string) {
	in, err := os.Open(archive)
	if err != nil {
		tool.Fail(err)
	}
	defer in.Close()
	r, err := xz.NewReader(in)
	if err != nil {
		tool.Failf("failed to decompress %v: %v", archive, err)
	}
	tmp, err := os.CreateTemp("", "ffz-db")
	if err != nil {
		tool.Fail(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tool.Failf("failed to decompress %v: %v", archive, err)
	}
	tmp.Close()
	packed, err := db.Open(tmp.Name())
	if err != nil {
		tool.Fail(err)
	}
	if packed.Version != archiveVersion {
		tool.Failf("%v: unsupported archive version %v", archive, packed.Version)
	}
	var names []string
	for key := range packed.Records {
		if !strings.HasPrefix(key, metaPrefix) {
			names = append(names, key)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return packed.Records[names[i]].Seq < packed.Records[names[j]].Seq
	})
	if err := osutil.MkdirAll(dir); err != nil {
		tool.Fail(err)
	}
	c, _ := load(dir)
	added := 0
	for _, name := range names {
		meta := corpus.Meta{Parent: -1}
		if rec, ok := packed.Records[metaPrefix+name]; ok {
			if err := json.Unmarshal(rec.Val, &meta); err != nil {
				tool.Failf("corrupted metadata for %v: %v", name, err)
			}
		}
		if _, err := c.Add(packed.Records[name].Val, meta); err != nil {
			if errors.Is(err, corpus.ErrDuplicate) {
				continue
			}
			tool.Fail(err)
		}
		added++
	}
	fmt.Fprintf(os.Stderr, "unpacked %v inputs, corpus has %v\n", added, c.Len())
}
