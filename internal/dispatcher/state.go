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
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"crawlcore/internal/storage"
	"crawlcore/pkg/contract"
)

// stateSlot is a per-key locked slot in the default Key-Value Store,
// implementing the Design Note "Global KVS caches / use_state": a lazy
// per-(kvs-id, key) guarded slot with write-behind persistence. value is
// nil until first Acquire loads it from the KVS.
type stateSlot struct {
	mu    sync.Mutex
	value map[string]any
}

// stateStore is the Dispatcher's use_state collaborator: it owns one
// stateSlot per key and a background flush loop that persists dirty slots
// on a fixed interval and at shutdown, adapted from the teacher's
// commitLoop/runCommitCycle/runFinalFlush hysteresis in
// internal/ratelimiter/core/worker.go, trading its vector-threshold arming
// for a simple elapsed-interval trigger (use_state has no natural
// "vector" to threshold against).
type stateStore struct {
	kvs  contract.KeyValueStore
	shim *storage.IdemShim // non-nil when kvs's writes can be made idempotent

	mu        sync.Mutex
	slots     map[string]*stateSlot
	dirtyKeys map[string]struct{}

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool
}

// newStateStore wires use_state's persisted writes through the same
// idempotent-commit path internal/storage's durable backends expose
// (SPEC_FULL.md §4.7/§4.9): when kvs implements storage.Committer, every
// flushed slot is written via an IdemShim rather than a bare SetValue.
func newStateStore(kvs contract.KeyValueStore) *stateStore {
	s := &stateStore{
		kvs:       kvs,
		slots:     make(map[string]*stateSlot),
		dirtyKeys: make(map[string]struct{}),
	}
	if committer, ok := kvs.(storage.Committer); ok {
		s.shim = storage.NewIdemShim(committer)
	}
	return s
}

func (s *stateStore) slotFor(key string) *stateSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok {
		sl = &stateSlot{}
		s.slots[key] = sl
	}
	return sl
}

// Acquire loads (on first use) and locks the slot for key, returning its
// live shared map and a release function the caller must call exactly
// once when done. release(true) marks the slot dirty for the next flush;
// release(false) leaves it as-is (no mutation occurred).
func (s *stateStore) Acquire(ctx context.Context, key string, defaultValue map[string]any) (map[string]any, func(dirty bool), error) {
	sl := s.slotFor(key)
	sl.mu.Lock()
	if sl.value == nil {
		v, err := s.kvs.GetAutoSavedValue(ctx, key, defaultValue)
		if err != nil {
			sl.mu.Unlock()
			return nil, nil, err
		}
		sl.value = v
	}
	release := func(dirty bool) {
		if dirty {
			s.markDirty(key)
		}
		sl.mu.Unlock()
	}
	return sl.value, release, nil
}

func (s *stateStore) markDirty(key string) {
	s.mu.Lock()
	s.dirtyKeys[key] = struct{}{}
	s.mu.Unlock()
}

func (s *stateStore) takeDirtyKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.dirtyKeys))
	for k := range s.dirtyKeys {
		keys = append(keys, k)
	}
	s.dirtyKeys = make(map[string]struct{})
	return keys
}

// Start launches the periodic persist_state flush loop (SPEC_FULL.md
// §4.9). interval <= 0 uses a 15s default.
func (s *stateStore) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.interval = interval
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.flushLoop()
}

// Stop halts the flush loop and performs one final flush of every dirty
// slot, mirroring the teacher's runFinalFlush on shutdown.
func (s *stateStore) Stop(ctx context.Context) {
	if s.started.CompareAndSwap(true, false) {
		close(s.stopCh)
		s.wg.Wait()
	}
	s.flush(ctx)
}

func (s *stateStore) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.flush(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// flush persists every slot marked dirty since the last flush.
func (s *stateStore) flush(ctx context.Context) {
	keys := s.takeDirtyKeys()
	if len(keys) == 0 {
		return
	}
	for _, key := range keys {
		sl := s.slotFor(key)
		sl.mu.Lock()
		payload, err := json.Marshal(sl.value)
		sl.mu.Unlock()
		if err != nil {
			continue
		}
		if s.shim != nil {
			_ = s.shim.Set(ctx, key, payload, "application/json")
		} else {
			_ = s.kvs.SetValue(ctx, key, payload, "application/json")
		}
	}
	_ = s.kvs.PersistAutoSavedValues(ctx)
}
