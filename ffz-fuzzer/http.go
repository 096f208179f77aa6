// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/forkfuzz/forkfuzz/pkg/fuzzer"
	"github.com/forkfuzz/forkfuzz/pkg/log"
	"github.com/forkfuzz/forkfuzz/pkg/stat"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func serveHTTP(addr string, fz *fuzzer.Fuzzer) {
	handle := func(pattern string, handler func(http.ResponseWriter, *http.Request)) {
		http.Handle(pattern, handlers.LoggingHandler(logWriter{},
			handlers.CompressHandler(http.HandlerFunc(handler))))
	}
	handle("/", func(w http.ResponseWriter, r *http.Request) {
		httpSummary(w, fz)
	})
	handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}).ServeHTTP)
	handle("/crashes", func(w http.ResponseWriter, r *http.Request) {
		httpCrashes(w, fz)
	})
	// Browsers like to request this, without special handler this goes to / handler.
	handle("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {})

	log.Logf(0, "serving http on http://%v", addr)
	go func() {
		err := http.ListenAndServe(addr, nil)
		if err != nil {
			log.Fatalf("failed to listen on %v: %v", addr, err)
		}
	}()
}

func httpSummary(w http.ResponseWriter, fz *fuzzer.Fuzzer) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "session %v\n\n", fz.Session)
	for _, v := range fz.Collect(stat.All) {
		fmt.Fprintf(w, "%-16v %v\n", v.Name, v.Value)
	}
	fmt.Fprintf(w, "\n%v\n", log.CachedLogOutput())
}

func httpCrashes(w http.ResponseWriter, fz *fuzzer.Fuzzer) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, item := range fz.Objectives.Items() {
		fmt.Fprintf(w, "%v\t%v\t%v bytes\t%v\n", item.Name(), item.Found.Format("2006-01-02 15:04:05"),
			item.Len(), item.Title)
	}
}

// logWriter sends access logs to the debug log.
type logWriter struct{}

func (logWriter) Write(data []byte) (int, error) {
	if log.V(2) {
		os.Stderr.Write(data)
	}
	return len(data), nil
}
