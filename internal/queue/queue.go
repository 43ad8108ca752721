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

// Package queue implements the Request Queue: a deduplicated, ordered
// multiset of requests partitioned into pending, in-progress, and handled
// partitions (spec §4.1). Requests are routed to one of N shards by
// rendezvous (HRW) hashing on unique_key so shard ownership stays stable
// as the shard count changes; each shard keeps its own min-heap ordered by
// sequence number, and fetch_next merges the per-shard heads to preserve a
// single global ordering guarantee.
package queue

import (
	"container/heap"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"

	"crawlcore/pkg/request"
)

const (
	// DefaultLeaseDuration is the "block interval" fetch_next grants a
	// worker before an un-mark_handled'd, un-reclaimed lease expires.
	DefaultLeaseDuration = 5 * time.Minute
	// DefaultReapInterval is how often the background reaper scans for
	// expired leases.
	DefaultReapInterval = 30 * time.Second
)

// leaseEntry is an in-progress request together with when its lease
// expires.
type leaseEntry struct {
	req       *request.Request
	expiresAt time.Time
}

// shard owns one disjoint partition of the queue's keyspace: a pending
// heap, the in-progress leases, the handled set, and an authoritative
// by-key lookup spanning all three (used by Get).
type shard struct {
	mu           sync.Mutex
	pending      pendingHeap
	pendingByKey map[string]*pendingEntry
	inProgress   map[string]*leaseEntry
	handled      map[string]*request.Request
	all          map[string]*request.Request
}

func newShard() *shard {
	return &shard{
		pendingByKey: make(map[string]*pendingEntry),
		inProgress:   make(map[string]*leaseEntry),
		handled:      make(map[string]*request.Request),
		all:          make(map[string]*request.Request),
	}
}

// Metadata summarizes queue occupancy, analogous to the teacher's
// getEventTotals snapshot.
type Metadata struct {
	Pending    int
	InProgress int
	Handled    int
}

// Outcome is the per-request result of an AddBatch call.
type Outcome struct {
	Request           *request.Request
	WasAlreadyPresent bool
	WasAlreadyHandled bool
}

// Queue is the Request Queue: a sharded, lease-based, sequence-ordered
// work set. The zero value is not usable; construct with New.
type Queue struct {
	shards        []*shard
	ring          *rendezvous.Rendezvous
	shardOf       map[string]int
	fetchMu       sync.Mutex
	posSeq        atomic.Int64
	negSeq        atomic.Int64
	pendingAdds   atomic.Int64
	leaseDuration time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	stopped       atomic.Bool
}

// New constructs a Queue with runtime.GOMAXPROCS(0) shards and the given
// lease duration (DefaultLeaseDuration if zero).
func New(leaseDuration time.Duration) *Queue {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	return NewWithShards(n, leaseDuration)
}

// NewWithShards constructs a Queue with an explicit shard count, primarily
// for tests that want deterministic shard-merge behavior.
func NewWithShards(numShards int, leaseDuration time.Duration) *Queue {
	if numShards < 1 {
		numShards = 1
	}
	if leaseDuration <= 0 {
		leaseDuration = DefaultLeaseDuration
	}
	names := make([]string, numShards)
	shardOf := make(map[string]int, numShards)
	shards := make([]*shard, numShards)
	for i := 0; i < numShards; i++ {
		name := strconv.Itoa(i)
		names[i] = name
		shardOf[name] = i
		shards[i] = newShard()
	}
	return &Queue{
		shards:        shards,
		ring:          rendezvous.New(names, xxhash.Sum64String),
		shardOf:       shardOf,
		leaseDuration: leaseDuration,
		stopCh:        make(chan struct{}),
	}
}

func (q *Queue) shardFor(uniqueKey string) *shard {
	name := q.ring.Lookup(uniqueKey)
	return q.shards[q.shardOf[name]]
}

// Start launches the background lease reaper. Call once; Stop halts it.
func (q *Queue) Start() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.reapLoop()
	}()
}

// Stop halts the lease reaper and waits for it to exit.
func (q *Queue) Stop() {
	if !q.stopped.CompareAndSwap(false, true) {
		return
	}
	close(q.stopCh)
	q.wg.Wait()
}

func (q *Queue) reapLoop() {
	ticker := time.NewTicker(DefaultReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			q.reapExpiredLeases(time.Now())
		case <-q.stopCh:
			return
		}
	}
}

func (q *Queue) reapExpiredLeases(now time.Time) {
	for _, sh := range q.shards {
		sh.mu.Lock()
		var expired []string
		for key, le := range sh.inProgress {
			if now.After(le.expiresAt) {
				expired = append(expired, key)
			}
		}
		sh.mu.Unlock()
		for _, key := range expired {
			if q.Reclaim(key, false) != nil {
				leaseExpiredTotal.Inc()
			}
		}
	}
}

// BeginAdd marks one background "add requests" task as outstanding; the
// Dispatcher calls it before an async AddBatch and EndAdd after, so
// IsFinished can tell a momentarily-empty queue from a truly finished run
// (spec §4.1 "Finishedness").
func (q *Queue) BeginAdd() { q.pendingAdds.Add(1) }

// EndAdd marks one outstanding "add requests" task as complete.
func (q *Queue) EndAdd() { q.pendingAdds.Add(-1) }

// reserveForefront reserves n contiguous, strictly-decreasing sequence
// slots for one forefront batch and returns the base such that item i
// (0-indexed) is assigned base+int64(i)+1. Each new call's range sorts
// entirely below every value ever handed out by a previous call, so a
// later forefront batch always precedes an earlier one's remaining items,
// while ascending offsets within the call preserve intra-batch order.
func (q *Queue) reserveForefront(n int) int64 {
	return q.negSeq.Add(-int64(n))
}

// AddBatch is add_batch: for each request, report whether it was already
// pending/in-progress (WasAlreadyPresent) or already handled
// (WasAlreadyHandled), otherwise insert it. forefront=true places the
// whole batch before all currently-pending non-forefront items while
// preserving intra-batch order; forefront=false appends to the tail.
// AlwaysEnqueue on an individual Request bypasses the unique_key
// deduplication check for that insertion only.
func (q *Queue) AddBatch(reqs []*request.Request, forefront bool) []Outcome {
	outcomes := make([]Outcome, len(reqs))
	if forefront {
		base := q.reserveForefront(len(reqs))
		for i, r := range reqs {
			outcomes[i] = q.addOne(r, base+int64(i)+1)
		}
		return outcomes
	}
	for i, r := range reqs {
		outcomes[i] = q.addOne(r, q.posSeq.Add(1))
	}
	return outcomes
}

func (q *Queue) addOne(r *request.Request, seq int64) Outcome {
	sh := q.shardFor(r.UniqueKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if !r.AlwaysEnqueue {
		if _, ok := sh.handled[r.UniqueKey]; ok {
			alreadyHandledTotal.Inc()
			return Outcome{Request: r, WasAlreadyHandled: true}
		}
		if _, ok := sh.all[r.UniqueKey]; ok {
			alreadyPresentTotal.Inc()
			return Outcome{Request: r, WasAlreadyPresent: true}
		}
	}

	pe := &pendingEntry{seq: seq, uniqueKey: r.UniqueKey, req: r}
	heap.Push(&sh.pending, pe)
	sh.pendingByKey[r.UniqueKey] = pe
	sh.all[r.UniqueKey] = r
	addedTotal.Inc()
	pendingGauge.Inc()
	return Outcome{Request: r}
}

// FetchNext is fetch_next: it peeks every shard's pending head, selects
// the globally smallest sequence number, leases that request for
// leaseDuration, and returns it. Returns nil when nothing is pending.
func (q *Queue) FetchNext() *request.Request {
	q.fetchMu.Lock()
	defer q.fetchMu.Unlock()

	var winner *shard
	var winnerSeq int64
	for _, sh := range q.shards {
		sh.mu.Lock()
		if len(sh.pending) > 0 {
			top := sh.pending[0]
			if winner == nil || top.seq < winnerSeq {
				winner = sh
				winnerSeq = top.seq
			}
		}
		sh.mu.Unlock()
	}
	if winner == nil {
		return nil
	}

	winner.mu.Lock()
	defer winner.mu.Unlock()
	if len(winner.pending) == 0 {
		// Drained by a concurrent fetch on the same shard between the
		// peek above and this lock (fetchMu only serializes FetchNext
		// calls against each other through the selection above, not
		// against AddBatch/Reclaim mutating other shards); nothing to
		// do this round.
		return nil
	}
	pe := heap.Pop(&winner.pending).(*pendingEntry)
	delete(winner.pendingByKey, pe.uniqueKey)
	winner.inProgress[pe.uniqueKey] = &leaseEntry{
		req:       pe.req,
		expiresAt: time.Now().Add(q.leaseDuration),
	}
	pe.req.State = request.StateRequestHandler
	fetchNextTotal.Inc()
	pendingGauge.Dec()
	inProgressGauge.Inc()
	return pe.req
}

// MarkHandled is mark_handled: transitions an in-progress request to
// handled. Idempotent: returns nil if uniqueKey is not currently leased.
func (q *Queue) MarkHandled(uniqueKey string) *request.Request {
	sh := q.shardFor(uniqueKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	le, ok := sh.inProgress[uniqueKey]
	if !ok {
		return nil
	}
	delete(sh.inProgress, uniqueKey)
	now := time.Now()
	le.req.State = request.StateDone
	le.req.HandledAt = &now
	sh.handled[uniqueKey] = le.req
	sh.all[uniqueKey] = le.req
	markHandledTotal.Inc()
	inProgressGauge.Dec()
	handledGauge.Inc()
	return le.req
}

// Reclaim is reclaim: transitions an in-progress request back to pending.
// forefront=true makes it the next candidate; otherwise it goes to the
// tail. Idempotent: returns nil if uniqueKey is not currently leased.
func (q *Queue) Reclaim(uniqueKey string, forefront bool) *request.Request {
	sh := q.shardFor(uniqueKey)
	sh.mu.Lock()
	le, ok := sh.inProgress[uniqueKey]
	if !ok {
		sh.mu.Unlock()
		return nil
	}
	delete(sh.inProgress, uniqueKey)
	sh.mu.Unlock()

	var seq int64
	if forefront {
		seq = q.reserveForefront(1) + 1
	} else {
		seq = q.posSeq.Add(1)
	}

	sh.mu.Lock()
	pe := &pendingEntry{seq: seq, uniqueKey: uniqueKey, req: le.req}
	heap.Push(&sh.pending, pe)
	sh.pendingByKey[uniqueKey] = pe
	sh.all[uniqueKey] = le.req
	sh.mu.Unlock()

	le.req.State = request.StateUnprocessed
	reclaimTotal.Inc()
	inProgressGauge.Dec()
	pendingGauge.Inc()
	return le.req
}

// Get is get(unique_key): returns the request in any partition
// (pending/in-progress/handled), or nil if unknown.
func (q *Queue) Get(uniqueKey string) *request.Request {
	sh := q.shardFor(uniqueKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.all[uniqueKey]
}

// IsEmpty is is_empty(): true when no shard has a pending item. In a
// sharded, lock-striped backend this is a momentary snapshot, which is
// why spec §4.1 allows a possibly-stale false negative; IsFinished is the
// property that must converge.
func (q *Queue) IsEmpty() bool {
	for _, sh := range q.shards {
		sh.mu.Lock()
		n := len(sh.pending)
		sh.mu.Unlock()
		if n > 0 {
			return false
		}
	}
	return true
}

// IsFinished is is_finished(): empty, nothing leased, and no background
// add task outstanding.
func (q *Queue) IsFinished() bool {
	if q.pendingAdds.Load() > 0 {
		return false
	}
	for _, sh := range q.shards {
		sh.mu.Lock()
		n := len(sh.pending) + len(sh.inProgress)
		sh.mu.Unlock()
		if n > 0 {
			return false
		}
	}
	return true
}

// Metadata is metadata(): a point-in-time occupancy summary.
func (q *Queue) Metadata() Metadata {
	var m Metadata
	for _, sh := range q.shards {
		sh.mu.Lock()
		m.Pending += len(sh.pending)
		m.InProgress += len(sh.inProgress)
		m.Handled += len(sh.handled)
		sh.mu.Unlock()
	}
	return m
}
