// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VividCortex/gohistogram"
	"github.com/prometheus/client_golang/prometheus"
)

// This file provides named metrics (Val type) and a global registry for them.
//
//	statExecs := stat.New("exec total", "Total executions", stat.Rate{}, stat.Console)
//	statExecs.Add(1)
//
//	stat.New("corpus", "Inputs in the corpus", func() int { return corpus.Len() })
//
// Collect returns current values of all registered metrics for periodic logs,
// the stats file and the status page.

type UI struct {
	Name  string
	Desc  string
	Level Level
	Value string
	V     int
}

func New(name, desc string, opts ...any) *Val {
	return Global.New(name, desc, opts...)
}

func Collect(level Level) []UI {
	return Global.Collect(level)
}

// Global is the process-wide registry used by New and Collect.
var Global = NewSet(true)

// Set is a registry of metrics.
type Set struct {
	mu         sync.Mutex
	vals       map[string]*Val
	start      time.Time
	prometheus bool
}

// NewSet creates a registry. Only registries with exportPrometheus export
// metrics that have the Prometheus option.
func NewSet(exportPrometheus bool) *Set {
	return &Set{
		vals:       make(map[string]*Val),
		start:      time.Now(),
		prometheus: exportPrometheus,
	}
}

// Level controls where the metric is shown.
type Level int

const (
	// All metrics are written to the stats file and the status page.
	All Level = iota
	// Console metrics are also printed in the periodic log line.
	Console
)

// Prometheus exports the metric to Prometheus under the given name.
type Prometheus string

// Rate says to show metric rate per unit of time along with the total value.
type Rate struct{}

// Distribution says to collect a histogram of individual samples; the value is the mean.
type Distribution struct{}

// Additionally a custom 'func() int' can be passed to read the metric value from the function,
// and 'func(int, time.Duration) string' can be passed for custom formatting of the metric value.

func (s *Set) New(name, desc string, opts ...any) *Val {
	v := &Val{
		name: name,
		desc: desc,
		fmt:  func(v int, period time.Duration) string { return strconv.Itoa(v) },
	}
	for _, o := range opts {
		switch opt := o.(type) {
		case Level:
			v.level = opt
		case Rate:
			v.fmt = formatRate
		case Distribution:
			v.hist = true
		case func() int:
			v.ext = opt
		case func(int, time.Duration) string:
			v.fmt = opt
		case Prometheus:
			if !s.prometheus {
				continue
			}
			// Re-registration of the same name fails, the first metric wins.
			prometheus.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: string(opt),
				Help: desc,
			},
				func() float64 { return float64(v.Val()) },
			))
		default:
			panic(fmt.Sprintf("unknown stats option %#v", o))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[name] = v
	return v
}

func (s *Set) Collect(level Level) []UI {
	s.mu.Lock()
	defer s.mu.Unlock()
	period := max(time.Since(s.start), time.Second)
	var res []UI
	for _, v := range s.vals {
		if v.level < level {
			continue
		}
		val := v.Val()
		res = append(res, UI{
			Name:  v.name,
			Desc:  v.desc,
			Level: v.level,
			Value: v.fmt(val, period),
			V:     val,
		})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Level != res[j].Level {
			return res[i].Level > res[j].Level
		}
		return res[i].Name < res[j].Name
	})
	return res
}

type Val struct {
	name    string
	desc    string
	level   Level
	val     atomic.Uint64
	ext     func() int
	fmt     func(int, time.Duration) string
	hist    bool
	histMu  sync.Mutex
	histVal *gohistogram.NumericHistogram
}

func (v *Val) Add(val int) {
	if v.ext != nil {
		panic(fmt.Sprintf("stat %v is in external mode", v.name))
	}
	if v.hist {
		v.histMu.Lock()
		if v.histVal == nil {
			v.histVal = gohistogram.NewHistogram(histogramBuckets)
		}
		v.histVal.Add(float64(val))
		v.histMu.Unlock()
		return
	}
	v.val.Add(uint64(val))
}

func (v *Val) Val() int {
	if v.ext != nil {
		return v.ext()
	}
	if v.hist {
		v.histMu.Lock()
		defer v.histMu.Unlock()
		if v.histVal == nil {
			return 0
		}
		return int(v.histVal.Mean())
	}
	return int(v.val.Load())
}

// Quantile returns the q-quantile of a Distribution metric.
func (v *Val) Quantile(q float64) int {
	if !v.hist {
		panic(fmt.Sprintf("stat %v is not a distribution", v.name))
	}
	v.histMu.Lock()
	defer v.histMu.Unlock()
	if v.histVal == nil {
		return 0
	}
	return int(v.histVal.Quantile(q))
}

const histogramBuckets = 255

func formatRate(v int, period time.Duration) string {
	secs := int(period.Seconds())
	if x := v / secs; x >= 10 {
		return fmt.Sprintf("%v (%v/sec)", v, x)
	}
	if x := v * 60 / secs; x >= 10 {
		return fmt.Sprintf("%v (%v/min)", v, x)
	}
	x := v * 60 * 60 / secs
	return fmt.Sprintf("%v (%v/hour)", v, x)
}
