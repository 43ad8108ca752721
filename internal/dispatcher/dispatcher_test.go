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

package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"crawlcore/internal/autoscale"
	"crawlcore/internal/pipeline"
	"crawlcore/internal/queue"
	"crawlcore/internal/router"
	"crawlcore/internal/session"
	"crawlcore/internal/stats"
	"crawlcore/internal/storage"
	"crawlcore/pkg/request"
)

func newRunDispatcher(t *testing.T, cfg Config, handler pipeline.HandlerFunc) (*Dispatcher, *storage.MemoryDataset) {
	t.Helper()
	rq := queue.NewWithShards(2, time.Minute)
	pool := autoscale.NewPool(1, 4, autoscale.NewSnapshotter(0, 0, 0))
	pl := pipeline.New()
	r := router.New()
	if err := r.Default(handler); err != nil {
		t.Fatalf("Default: %v", err)
	}
	dataset := storage.NewMemoryDataset()

	d := New(cfg, Collaborators{
		Queue:    rq,
		Pool:     pool,
		Pipeline: pl,
		Router:   r,
		Dataset:  dataset,
		Stats:    stats.New(),
		Log:      logr.Discard(),
	})
	return d, dataset
}

// S1-flavored scenario: a handler that, on visiting the seed URL, enqueues
// two children; the run must process all three and then converge.
func TestRunProcessesSeedAndDiscoveredRequests(t *testing.T) {
	var visited int64
	handler := func(ctx *pipeline.Context, crawler pipeline.CrawlerHandle) error {
		atomic.AddInt64(&visited, 1)
		if ctx.Request.URL == "http://site/seed" {
			crawler.AddRequests([]*request.Request{
				request.New("http://site/a", "GET", nil, nil),
				request.New("http://site/b", "GET", nil, nil),
			}, false)
		}
		crawler.PushData([]map[string]any{{"url": ctx.Request.URL}})
		return nil
	}

	d, dataset := newRunDispatcher(t, Config{RequestHandlerTimeout: time.Second}, handler)

	runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seed := request.New("http://site/seed", "GET", nil, nil)
	if err := d.Run(runCtx, []*request.Request{seed}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := atomic.LoadInt64(&visited); got != 3 {
		t.Fatalf("visited = %d, want 3 (seed + 2 discovered)", got)
	}
	items, err := dataset.GetData(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 pushed items, got %d", len(items))
	}
	snap := d.Stats().Snapshot()
	if snap.RequestsFinished != 3 {
		t.Fatalf("RequestsFinished = %d, want 3", snap.RequestsFinished)
	}
}

// A handler error is retried until max_request_retries, then finalized as
// failed, and the run still converges instead of hanging forever.
func TestRunRetriesThenFailsAndConverges(t *testing.T) {
	var attempts int64
	handler := func(ctx *pipeline.Context, crawler pipeline.CrawlerHandle) error {
		atomic.AddInt64(&attempts, 1)
		return errors.New("handler always fails")
	}

	d, _ := newRunDispatcher(t, Config{
		RequestHandlerTimeout: time.Second,
		MaxRequestRetries:     2,
	}, handler)

	runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seed := request.New("http://site/always-fails", "GET", nil, nil)
	if err := d.Run(runCtx, []*request.Request{seed}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := atomic.LoadInt64(&attempts); got != 3 {
		t.Fatalf("attempts = %d, want 3 (1 initial + 2 retries)", got)
	}
	snap := d.Stats().Snapshot()
	if snap.RequestsFailed != 1 {
		t.Fatalf("RequestsFailed = %d, want 1", snap.RequestsFailed)
	}
}

// abort_on_error must stop the run after the first terminal failure rather
// than draining every remaining seeded request.
func TestRunAbortOnErrorStopsEarly(t *testing.T) {
	var processed int64
	handler := func(ctx *pipeline.Context, crawler pipeline.CrawlerHandle) error {
		atomic.AddInt64(&processed, 1)
		if ctx.Request.URL == "http://site/bad" {
			return errors.New("boom")
		}
		return nil
	}

	d, _ := newRunDispatcher(t, Config{
		RequestHandlerTimeout: time.Second,
		MaxRequestRetries:     0,
		AbortOnError:          true,
	}, handler)

	runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seeds := []*request.Request{
		request.New("http://site/bad", "GET", nil, nil),
	}
	if err := d.Run(runCtx, seeds); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !d.abortedOnErr.Load() {
		t.Fatalf("expected abortedOnErr to be set")
	}
	snap := d.Stats().Snapshot()
	if snap.RequestsFailed != 1 {
		t.Fatalf("RequestsFailed = %d, want 1", snap.RequestsFailed)
	}
}

// use_state must hand every task a consistent, serialized view of the
// shared slot even when many tasks touch it concurrently.
func TestRunUseStateAccumulatesAcrossTasks(t *testing.T) {
	handler := func(ctx *pipeline.Context, crawler pipeline.CrawlerHandle) error {
		value, err := crawler.UseState("totals", map[string]any{"count": float64(0)})
		if err != nil {
			return err
		}
		value["count"] = value["count"].(float64) + 1
		return nil
	}

	kvs := storage.NewMemoryKeyValueStore()
	rq := queue.NewWithShards(2, time.Minute)
	pool := autoscale.NewPool(1, 4, autoscale.NewSnapshotter(0, 0, 0))
	pl := pipeline.New()
	r := router.New()
	if err := r.Default(handler); err != nil {
		t.Fatalf("Default: %v", err)
	}
	d := New(Config{RequestHandlerTimeout: time.Second}, Collaborators{
		Queue:    rq,
		Pool:     pool,
		Pipeline: pl,
		Router:   r,
		KVS:      kvs,
		Stats:    stats.New(),
		Log:      logr.Discard(),
	})

	runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seeds := make([]*request.Request, 10)
	for i := range seeds {
		seeds[i] = request.New("http://site/"+string(rune('a'+i)), "GET", nil, nil)
	}
	if err := d.Run(runCtx, seeds); err != nil {
		t.Fatalf("Run: %v", err)
	}

	value, err := kvs.GetAutoSavedValue(context.Background(), "totals", map[string]any{"count": float64(0)})
	if err != nil {
		t.Fatalf("GetAutoSavedValue: %v", err)
	}
	if value["count"] != float64(10) {
		t.Fatalf("count = %v, want 10", value["count"])
	}
}

// Session-pinned requests whose session no longer exists fail immediately
// with no retry, per RequestCollisionError semantics.
func TestRunSessionCollisionFinalizesWithoutRetry(t *testing.T) {
	var attempts int64
	handler := func(ctx *pipeline.Context, crawler pipeline.CrawlerHandle) error {
		atomic.AddInt64(&attempts, 1)
		return nil
	}

	rq := queue.NewWithShards(1, time.Minute)
	pool := autoscale.NewPool(1, 2, autoscale.NewSnapshotter(0, 0, 0))
	pl := pipeline.New()
	r := router.New()
	if err := r.Default(handler); err != nil {
		t.Fatalf("Default: %v", err)
	}
	d := New(Config{RequestHandlerTimeout: time.Second, UseSessionPool: true}, Collaborators{
		Queue:    rq,
		Pool:     pool,
		Pipeline: pl,
		Router:   r,
		Sessions: session.NewPool(2),
		Stats:    stats.New(),
		Log:      logr.Discard(),
	})

	runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seed := request.New("http://site/pinned", "GET", nil, nil)
	seed.SessionID = "does-not-exist"
	if err := d.Run(runCtx, []*request.Request{seed}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := atomic.LoadInt64(&attempts); got != 0 {
		t.Fatalf("handler should never run for an unresolvable session pin, got %d calls", got)
	}
	snap := d.Stats().Snapshot()
	if snap.RequestsFailed != 1 {
		t.Fatalf("RequestsFailed = %d, want 1", snap.RequestsFailed)
	}
}
