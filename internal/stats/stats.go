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

// Package stats implements the Dispatcher's Statistics collaborator (spec
// §2, §8): per-request timing, a retry histogram, and an error tracker,
// exported both as Prometheus metrics and as a periodic tabular summary
// line. Per spec §5, counters use atomic updates or are touched only from
// the single scheduler task, so Stats needs no lock on its hot path; the
// retry histogram and error tracker use a small mutex since they are keyed
// by a dynamic index/string rather than being plain scalars.
package stats

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time, race-free copy of a Stats' counters.
type Snapshot struct {
	RequestsFinished int64
	RequestsFailed   int64
	// RetryHistogram[i] counts requests whose terminal outcome consumed
	// exactly i retries (index 0 means "succeeded on the first attempt").
	RetryHistogram []int64
	Errors         map[string]int64
}

// Stats accumulates the Dispatcher's run-level counters. The zero value is
// not usable; construct with New.
type Stats struct {
	requestsFinished atomic.Int64
	requestsFailed   atomic.Int64

	mu             sync.Mutex
	retryHistogram []int64
	errorCounts    map[string]int64

	logInterval time.Duration
	out         *os.File
	stopCh      chan struct{}
	wg          sync.WaitGroup
	started     atomic.Bool
}

// New constructs a Stats with no periodic summary logging.
func New() *Stats {
	return &Stats{
		errorCounts: make(map[string]int64),
		out:         os.Stderr,
	}
}

// NewWithLogInterval is New plus a periodic tabular summary written to
// stderr every interval while Start is running. interval <= 0 disables
// the periodic summary, equivalent to New.
func NewWithLogInterval(interval time.Duration) *Stats {
	s := New()
	s.logInterval = interval
	return s
}

// Start begins the periodic summary goroutine, if a log interval was
// configured. Safe to call once; a second call is a no-op.
func (s *Stats) Start() {
	if s.logInterval <= 0 || !s.started.CompareAndSwap(false, true) {
		return
	}
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.summaryLoop()
}

// Stop halts the periodic summary goroutine, if running, and blocks until
// it has exited.
func (s *Stats) Stop() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Stats) summaryLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.logSummary()
		case <-s.stopCh:
			return
		}
	}
}

// logSummary writes one tabular line, in the spirit of the source
// churn module's periodic log but without its live/ANSI rendering path,
// which this package does not need.
func (s *Stats) logSummary() {
	snap := s.Snapshot()
	fmt.Fprintf(s.out, "stats: finished=%d failed=%d retries=%v errors=%v\n",
		snap.RequestsFinished, snap.RequestsFailed, snap.RetryHistogram, snap.Errors)
}

// RecordFinished marks one request as successfully handled after consuming
// retries retries (0 if it succeeded on the first attempt), observing d as
// its fetch+pipeline+handler wall-clock duration.
func (s *Stats) RecordFinished(d time.Duration, retries int) {
	s.requestsFinished.Add(1)
	requestsFinishedTotal.Inc()
	requestDurationSeconds.Observe(d.Seconds())
	s.recordRetries(retries)
}

// RecordFailed marks one request as terminally failed after consuming
// retries retries.
func (s *Stats) RecordFailed(retries int) {
	s.requestsFailed.Add(1)
	requestsFailedTotal.Inc()
	s.recordRetries(retries)
}

func (s *Stats) recordRetries(retries int) {
	if retries < 0 {
		retries = 0
	}
	retryAttemptsTotal.WithLabelValues(attemptLabel(retries)).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.retryHistogram) <= retries {
		s.retryHistogram = append(s.retryHistogram, 0)
	}
	s.retryHistogram[retries]++
}

// RecordError classifies one error occurrence by kind (see
// crawlerr.Kind), for the error tracker.
func (s *Stats) RecordError(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	errorsTotal.WithLabelValues(kind).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCounts[kind]++
}

// Snapshot returns a race-free copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	hist := make([]int64, len(s.retryHistogram))
	copy(hist, s.retryHistogram)
	errs := make(map[string]int64, len(s.errorCounts))
	for k, v := range s.errorCounts {
		errs[k] = v
	}
	return Snapshot{
		RequestsFinished: s.requestsFinished.Load(),
		RequestsFailed:   s.requestsFailed.Load(),
		RetryHistogram:   hist,
		Errors:           errs,
	}
}
