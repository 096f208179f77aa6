// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// ffz-fuzzer runs a coverage-guided fuzzing campaign against an AFL-instrumented binary.
//
//	ffz-fuzzer -i seeds -o workdir [-t ms] [-x dict] [-seed n] -- ./target [args] @@
//	ffz-fuzzer -config campaign.cfg
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/forkfuzz/forkfuzz/pkg/cover"
	"github.com/forkfuzz/forkfuzz/pkg/fuzzconfig"
	"github.com/forkfuzz/forkfuzz/pkg/fuzzer"
	"github.com/forkfuzz/forkfuzz/pkg/ipc"
	"github.com/forkfuzz/forkfuzz/pkg/log"
	"github.com/forkfuzz/forkfuzz/pkg/osutil"
	"github.com/forkfuzz/forkfuzz/pkg/tool"
)

var (
	flagConfig  = flag.String("config", "", "campaign configuration file")
	flagSeeds   tool.ListFlag
	flagWorkdir = flag.String("o", "", "output directory for the corpus and crashes")
	flagTimeout = flag.Int("t", 0, "per-execution timeout in milliseconds")
	flagDict    tool.ListFlag
	flagSeed    tool.OptionalInt64
	flagHTTP    = flag.String("http", "", "serve status page and metrics on this address")
	flagDebug   = flag.Bool("debug", false, "show target output")
)

func init() {
	flag.Var(&flagSeeds, "i", "directories with seed inputs (can be repeated)")
	flag.Var(&flagDict, "x", "AFL dictionary files or token directories (can be repeated)")
	flag.Var(&flagSeed, "seed", "random seed (time-based by default)")
}

func main() {
	defer tool.Init()()
	log.EnableLogCaching(1000, 1<<20)
	cfg, err := loadConfig()
	if err != nil {
		tool.Failf("%v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func loadConfig() (*fuzzconfig.Config, error) {
	if *flagConfig != "" {
		cfg, err := fuzzconfig.LoadFile(*flagConfig)
		if err != nil {
			return nil, err
		}
		if flagSeed.IsSet {
			cfg.Seed = flagSeed.Ptr()
		}
		return cfg, nil
	}
	if flag.NArg() == 0 {
		flag.Usage()
		return nil, fmt.Errorf("specify either -config or the target command line after --")
	}
	cfg := fuzzconfig.Default()
	cfg.Workdir = *flagWorkdir
	cfg.Corpus = flagSeeds
	cfg.Target = flag.Arg(0)
	cfg.TargetArgs = flag.Args()[1:]
	cfg.Dict = flagDict
	cfg.Seed = flagSeed.Ptr()
	cfg.HTTP = *flagHTTP
	cfg.Debug = *flagDebug
	if *flagTimeout != 0 {
		cfg.Timeout = *flagTimeout
	}
	if err := fuzzconfig.Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *fuzzconfig.Config) error {
	if err := osutil.MkdirAll(cfg.Workdir); err != nil {
		return fmt.Errorf("failed to create workdir: %w", err)
	}
	seed := time.Now().UnixNano()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	log.Logf(0, "random seed %v", seed)

	cmap, err := cover.NewSharedMap(cfg.MapSize)
	if err != nil {
		return err
	}
	defer cmap.Close()
	env, err := ipc.Make(cfg.ExecConfig(), cmap)
	if err != nil {
		return err
	}
	fz, err := fuzzer.NewFuzzer(&fuzzer.Config{
		Campaign: cfg,
		Executor: env,
		Map:      cmap,
	}, rand.New(rand.NewSource(seed)))
	if err != nil {
		env.Close()
		return err
	}
	defer fz.Close()

	shutdown := make(chan struct{})
	osutil.HandleInterrupts(shutdown)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-shutdown
		cancel()
	}()
	if cfg.HTTP != "" {
		serveHTTP(cfg.HTTP, fz)
	}

	if err := fz.LoadInitialInputs(ctx, cfg.Corpus); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if err := fz.Loop(ctx); err != nil {
		return err
	}
	if n := fz.Objectives.Len(); n != 0 {
		log.Logf(0, "%v objectives saved in %v", n, cfg.CrashesDir)
	}
	return nil
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %v -i seeds -o workdir [flags] -- target [args] (@@ is replaced with the input file)\n",
			os.Args[0])
		fmt.Fprintf(os.Stderr, "       %v -config campaign.cfg\n", os.Args[0])
		flag.PrintDefaults()
	}
}
