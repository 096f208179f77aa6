// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package testutil

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// IterCount returns the number of iterations for randomized tests.
func IterCount() int {
	iters := 1000
	if testing.Short() {
		iters /= 10
	}
	return iters
}

// RandSource returns a time-seeded source, or a fixed one if FFZ_SEED is set.
// The seed is logged so that failures can be reproduced.
func RandSource(t testing.TB) rand.Source {
	seed := time.Now().UnixNano()
	if fixed := os.Getenv("FFZ_SEED"); fixed != "" {
		seed, _ = strconv.ParseInt(fixed, 0, 64)
	}
	if os.Getenv("CI") != "" {
		seed = 0
	}
	t.Logf("seed=%v", seed)
	return rand.NewSource(seed)
}

// WriteFiles creates dir/name files with the given contents.
func WriteFiles(t testing.TB, dir string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		if err := os.WriteFile(dir+"/"+name, data, 0644); err != nil {
			t.Fatal(err)
		}
	}
}
