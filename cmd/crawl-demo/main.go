// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main provides the entry point for the crawl-demo application: a
// concrete, runnable demonstration of the Crawler Dispatcher and its
// collaborators (Request Queue, Session Pool, Context Pipeline, Router,
// Autoscaled Pool, Statistics).
//
// It crawls a small set of seed URLs, following any further links a page
// advertises via a JSON {"links": [...]} body (HTML parsing is out of
// scope), pushing one dataset record per page, and prints a final
// statistics summary on completion or interrupt.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"crawlcore/internal/autoscale"
	"crawlcore/internal/demo"
	"crawlcore/internal/dispatcher"
	"crawlcore/internal/enqueue"
	"crawlcore/internal/pipeline"
	"crawlcore/internal/queue"
	"crawlcore/internal/router"
	"crawlcore/internal/session"
	"crawlcore/internal/stats"
	"crawlcore/internal/storage"
	"crawlcore/pkg/request"
)

func main() {
	seeds := flag.String("seeds", "", "Comma-separated list of seed URLs to crawl")
	strategy := flag.String("enqueue_strategy", "all", "Default enqueue strategy: all|same-hostname|same-domain|same-origin")
	include := flag.String("include", "", "Comma-separated include patterns (glob, or re:<regexp>)")
	exclude := flag.String("exclude", "", "Comma-separated exclude patterns (glob, or re:<regexp>)")

	minConcurrency := flag.Int64("min_concurrency", 1, "Autoscaled Pool floor")
	maxConcurrency := flag.Int64("max_concurrency", 16, "Autoscaled Pool ceiling")
	queueShards := flag.Int("queue_shards", 4, "Request Queue shard count")
	leaseDuration := flag.Duration("lease_duration", time.Minute, "In-progress lease duration before a request is considered abandoned")

	maxRequestRetries := flag.Int("max_request_retries", 3, "Per-request retry budget for retriable errors")
	maxSessionRotations := flag.Int("max_session_rotations", 3, "Per-request session-rotation budget for SessionErrors")
	maxRequestsPerCrawl := flag.Int("max_requests_per_crawl", 0, "Stop accepting new tasks after this many requests finish (0 = unbounded)")
	maxCrawlDepth := flag.Int("max_crawl_depth", 0, "Drop discovered requests beyond this crawl depth (0 = unbounded)")
	requestHandlerTimeout := flag.Duration("request_handler_timeout", 60*time.Second, "Per-request handler timeout")
	keepAlive := flag.Bool("keep_alive", false, "Keep the run alive after the queue drains (for long-running demos)")
	abortOnError := flag.Bool("abort_on_error", false, "Stop the run after the first terminal request failure")
	useSessionPool := flag.Bool("use_session_pool", true, "Bind requests to Session Pool identities")
	sessionPoolSize := flag.Int("session_pool_size", 8, "Session Pool capacity")
	persistStateInterval := flag.Duration("persist_state_interval", 15*time.Second, "use_state write-behind flush interval")

	output := flag.String("output", "", "If set, write the crawled dataset as JSON to this file on completion")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	logLevel := flag.Int("log_verbosity", 0, "Higher values log more (logr V-levels)")
	flag.Parse()

	// zapr logs V(n) at zap level -n, so enabling level -log_verbosity
	// lets every V-level up to log_verbosity through.
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-*logLevel))
	zapLog, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLog.Sync()
	log := zapr.NewLogger(zapLog).V(0)

	seedURLs := splitNonEmpty(*seeds, ",")
	if len(seedURLs) == 0 {
		fmt.Fprintln(os.Stderr, "at least one -seeds URL is required")
		os.Exit(2)
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error(err, "metrics server exited")
			}
		}()
	}

	includePatterns, err := parsePatterns(*include)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -include: %v\n", err)
		os.Exit(2)
	}
	excludePatterns, err := parsePatterns(*exclude)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -exclude: %v\n", err)
		os.Exit(2)
	}

	rq := queue.NewWithShards(*queueShards, *leaseDuration)
	pool := autoscale.NewPool(*minConcurrency, *maxConcurrency, autoscale.NewSnapshotter(0, 0, 0))
	dataset := storage.NewMemoryDataset()
	kvs := storage.NewMemoryKeyValueStore()
	statistics := stats.NewWithLogInterval(5 * time.Second)

	var sessions *session.Pool
	if *useSessionPool {
		sessions = session.NewPool(*sessionPoolSize)
	}

	client := demo.NewClient(demo.ClientConfig{})
	pl := pipeline.New(demo.HttpMiddleware(client, demo.MiddlewareConfig{}))

	r := router.New()
	if err := r.Default(demo.DefaultHandler()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register default handler: %v\n", err)
		os.Exit(1)
	}

	d := dispatcher.New(dispatcher.Config{
		MaxRequestRetries:     *maxRequestRetries,
		MaxSessionRotations:   *maxSessionRotations,
		MaxRequestsPerCrawl:   *maxRequestsPerCrawl,
		MaxCrawlDepth:         *maxCrawlDepth,
		RequestHandlerTimeout: *requestHandlerTimeout,
		KeepAlive:             *keepAlive,
		AbortOnError:          *abortOnError,
		UseSessionPool:        *useSessionPool,
		PersistStateInterval:  *persistStateInterval,
		DefaultEnqueueStrategy: request.EnqueueStrategy(*strategy),
		Include:                includePatterns,
		Exclude:                excludePatterns,
	}, dispatcher.Collaborators{
		Queue:      rq,
		Pool:       pool,
		Sessions:   sessions,
		Pipeline:   pl,
		Router:     r,
		Dataset:    dataset,
		KVS:        kvs,
		HttpClient: client,
		Stats:      statistics,
		Log:        log,
	})

	seedRequests := make([]*request.Request, 0, len(seedURLs))
	for _, u := range seedURLs {
		seedRequests = append(seedRequests, request.New(u, "GET", nil, nil))
	}

	runErr := d.Run(context.Background(), seedRequests)

	snap := d.Stats().Snapshot()
	fmt.Printf("crawl-demo: finished=%d failed=%d stop_reason=%q\n",
		snap.RequestsFinished, snap.RequestsFailed, d.StopReason())

	if *output != "" {
		if err := writeDatasetJSON(dataset, *output); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write -output: %v\n", err)
			os.Exit(1)
		}
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "crawl-demo: fatal error: %v\n", runErr)
		os.Exit(1)
	}
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parsePatterns(s string) ([]enqueue.Pattern, error) {
	var out []enqueue.Pattern
	for _, raw := range splitNonEmpty(s, ",") {
		if rest, ok := strings.CutPrefix(raw, "re:"); ok {
			out = append(out, enqueue.Pattern{Regex: rest})
			continue
		}
		out = append(out, enqueue.Pattern{Glob: raw})
	}
	return out, nil
}

func writeDatasetJSON(dataset *storage.MemoryDataset, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return dataset.WriteToJSON(context.Background(), f)
}
