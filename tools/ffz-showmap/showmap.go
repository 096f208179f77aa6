// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// ffz-showmap runs the target once on the given input and prints the coverage map
// as "edge:class" lines, the same way afl-showmap does.
//
//	ffz-showmap [-t ms] [-raw] input -- ./target [args] @@
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/cover"
	"github.com/forkfuzz/forkfuzz/pkg/ipc"
	"github.com/forkfuzz/forkfuzz/pkg/log"
	"github.com/forkfuzz/forkfuzz/pkg/observer"
	"github.com/forkfuzz/forkfuzz/pkg/report"
	"github.com/forkfuzz/forkfuzz/pkg/tool"
)

var (
	flagTimeout = flag.Int("t", 1000, "execution timeout in milliseconds")
	flagMapSize = flag.Int("mapsize", cover.DefaultMapSize, "coverage map size")
	flagRaw     = flag.Bool("raw", false, "print raw hit counts instead of classes")
	flagFork    = flag.Bool("forkserver", false, "run the target through the fork server")
	flagOutput  = flag.Bool("output", false, "show target output")
)

func main() {
	defer tool.Init()()
	if flag.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "usage: ffz-showmap [flags] input -- target [args]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		tool.Failf("failed to read input: %v", err)
	}
	if res := run(data); res.Status != ipc.StatusNormal {
		os.Exit(2)
	}
}

func run(data []byte) *ipc.Result {
	workdir, err := os.MkdirTemp("", "ffz-showmap")
	if err != nil {
		tool.Fail(err)
	}
	defer os.RemoveAll(workdir)
	cmap, err := cover.NewSharedMap(*flagMapSize)
	if err != nil {
		tool.Fail(err)
	}
	defer cmap.Close()
	env, err := ipc.Make(&ipc.Config{
		Args:          flag.Args()[1:],
		Workdir:       workdir,
		Timeout:       time.Duration(*flagTimeout) * time.Millisecond,
		Debug:         *flagOutput,
		CaptureOutput: true,
		UseForkServer: *flagFork,
	}, cmap)
	if err != nil {
		tool.Fail(err)
	}
	defer env.Close()
	var obs *observer.MapObserver
	if *flagRaw {
		obs = observer.NewMapObserver("edges", cmap)
	} else {
		obs = observer.NewHitcountsMapObserver("edges", cmap)
	}
	if sized, ok := env.(interface{ MapSize() int }); ok {
		obs.Limit(sized.MapSize())
	}
	obs.PreExec()
	res, err := env.Exec(data)
	if err != nil {
		tool.Fail(err)
	}
	obs.PostExec(res)
	for i, v := range obs.Map() {
		if v != 0 {
			fmt.Printf("%06v:%v\n", i, v)
		}
	}
	log.Logf(0, "%v, %v edges, %v", res.Status, obs.Count(), res.Elapsed)
	if title := report.Title(res.Output, res); title != "" {
		log.Logf(0, "%v", title)
	}
	return res
}
