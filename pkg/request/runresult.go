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

package request

import "sync"

// AddRequestsCall captures one Context.AddRequests invocation for later
// commit by the dispatcher.
type AddRequestsCall struct {
	Requests []*Request
	Strategy EnqueueStrategy
	Include  []string
	Exclude  []string
	BaseURL  string
	Limit    int
	Forefront bool
}

// PushDataCall captures one Context.PushData invocation.
type PushDataCall struct {
	DatasetID   string
	DatasetName string
	Payload     []map[string]any
}

// KVSWrite is a single buffered key-value-store write.
type KVSWrite struct {
	Key         string
	Content     []byte
	ContentType string
}

// kvsSelector identifies a key-value store by id or name (exactly one is
// expected to be set, mirroring how callers pass either).
type kvsSelector struct {
	ID   string
	Name string
}

// RunResult accumulates a handler's side effects during one Context's
// lifetime. It is flushed by the dispatcher only when the handler (and the
// whole pipeline) return without error, satisfying the commit-atomicity
// property: a handler exception must not commit any buffered effect.
type RunResult struct {
	mu sync.Mutex

	AddRequestsCalls []AddRequestsCall
	PushDataCalls    []PushDataCall

	kvsChanges map[kvsSelector]map[string]KVSWrite
}

// NewRunResult returns an empty buffer ready to accumulate side effects.
func NewRunResult() *RunResult {
	return &RunResult{kvsChanges: make(map[kvsSelector]map[string]KVSWrite)}
}

// AddRequests buffers an AddRequests call.
func (r *RunResult) AddRequests(call AddRequestsCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.AddRequestsCalls = append(r.AddRequestsCalls, call)
}

// PushData buffers a PushData call.
func (r *RunResult) PushData(call PushDataCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PushDataCalls = append(r.PushDataCalls, call)
}

// SetKeyValue buffers a key-value-store write, keyed by (store, key); a
// later write to the same (store, key) in the same RunResult overwrites
// the earlier one, matching last-write-wins semantics of a single
// in-process handler run.
func (r *RunResult) SetKeyValue(storeID, storeName, key string, content []byte, contentType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sel := kvsSelector{ID: storeID, Name: storeName}
	m, ok := r.kvsChanges[sel]
	if !ok {
		m = make(map[string]KVSWrite)
		r.kvsChanges[sel] = m
	}
	m[key] = KVSWrite{Key: key, Content: content, ContentType: contentType}
}

// KeyValueStoreChanges returns the buffered writes grouped by the
// (store id, store name) selector they targeted.
func (r *RunResult) KeyValueStoreChanges() map[[2]string][]KVSWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[[2]string][]KVSWrite, len(r.kvsChanges))
	for sel, writes := range r.kvsChanges {
		list := make([]KVSWrite, 0, len(writes))
		for _, w := range writes {
			list = append(list, w)
		}
		out[[2]string{sel.ID, sel.Name}] = list
	}
	return out
}

// IsEmpty reports whether no side effects were recorded.
func (r *RunResult) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.AddRequestsCalls) == 0 && len(r.PushDataCalls) == 0 && len(r.kvsChanges) == 0
}
