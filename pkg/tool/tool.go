// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package tool contains various helper utilitites useful for implementation of command line tools.
package tool

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
)

func Failf(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}

func Fail(err error) {
	Failf("%v", err)
}

var (
	flagCPUProfile = flag.String("cpuprofile", "", "write CPU profile to this file")
	flagMEMProfile = flag.String("memprofile", "", "write memory profile to this file")
)

// Init parses command line flags and sets up profiling.
// The returned function must be called before the program exits.
func Init() func() {
	flag.Parse()
	return installProfiling(*flagCPUProfile, *flagMEMProfile)
}

func installProfiling(cpuprof, memprof string) func() {
	var stop []func()
	if cpuprof != "" {
		f, err := os.Create(cpuprof)
		if err != nil {
			Failf("failed to create cpu profile: %v", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			Failf("failed to start cpu profile: %v", err)
		}
		stop = append(stop, func() {
			pprof.StopCPUProfile()
			f.Close()
		})
	}
	if memprof != "" {
		stop = append(stop, func() {
			runtime.GC()
			if err := writeHeapProfile(memprof); err != nil {
				Failf("failed to write mem profile: %v", err)
			}
		})
	}
	return func() {
		for _, fn := range stop {
			fn()
		}
	}
}

func writeHeapProfile(file string) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return pprof.WriteHeapProfile(f)
}
