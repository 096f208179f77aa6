// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"sort"

	"github.com/forkfuzz/forkfuzz/pkg/log"
	"github.com/forkfuzz/forkfuzz/pkg/signal"
)

// Minimize removes inputs whose signal is fully covered by cheaper inputs
// and returns IDs of the removed inputs in ascending order.
// Cheaper inputs (see Item.Cost) are preferred, ties go to older inputs,
// so the result does not depend on anything but the corpus contents.
func (corpus *Corpus) Minimize() []int {
	corpus.mu.Lock()
	defer corpus.mu.Unlock()
	if len(corpus.items) < 2 {
		return nil
	}
	sorted := append([]*Item(nil), corpus.items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := sorted[i].Cost(), sorted[j].Cost()
		if ci != cj {
			return ci < cj
		}
		return sorted[i].ID < sorted[j].ID
	})
	inputs := make([]signal.Context, 0, len(sorted))
	for _, item := range sorted {
		inputs = append(inputs, signal.Context{
			Signal:  item.Signal,
			Context: item,
		})
	}
	keep := make(map[int]bool)
	for _, ctx := range signal.Minimize(inputs) {
		keep[ctx.(*Item).ID] = true
	}
	if len(keep) == 0 {
		// Nothing has signal, keep the cheapest input so that fuzzing can continue.
		keep[sorted[0].ID] = true
	}
	var removed []int
	for _, item := range append([]*Item(nil), corpus.items...) {
		if keep[item.ID] {
			continue
		}
		if err := corpus.removeLocked(item.ID); err != nil {
			log.Errorf("%v: %v", corpus.name, err)
		}
		removed = append(removed, item.ID)
	}
	if err := corpus.flush(); err != nil {
		log.Errorf("%v: failed to flush corpus database: %v", corpus.name, err)
	}
	if len(removed) != 0 {
		log.Logf(1, "%v: minimized %v -> %v inputs", corpus.name, len(corpus.items)+len(removed), len(corpus.items))
	}
	return removed
}
