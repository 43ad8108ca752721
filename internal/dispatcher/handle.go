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
	"errors"
	"sync"

	"crawlcore/internal/pipeline"
	"crawlcore/pkg/request"
)

// taskHandle is the pipeline.CrawlerHandle a single task hands to its
// handler. It buffers add_requests/push_data calls onto the Context's
// RunResult (flushed only on handler success, per the commit-atomicity
// property) and brokers use_state through the Dispatcher's stateStore,
// tracking every slot it locks so the task can release them all when it
// finishes, win or lose.
type taskHandle struct {
	ctx   *pipeline.Context
	state *stateStore

	mu       sync.Mutex
	releases []func(dirty bool)
}

func newTaskHandle(ctx *pipeline.Context, state *stateStore) *taskHandle {
	return &taskHandle{ctx: ctx, state: state}
}

// AddRequests satisfies pipeline.CrawlerHandle.
func (h *taskHandle) AddRequests(reqs []*request.Request, forefront bool) {
	h.ctx.RunResult.AddRequests(request.AddRequestsCall{Requests: reqs, Forefront: forefront})
}

// PushData satisfies pipeline.CrawlerHandle.
func (h *taskHandle) PushData(items []map[string]any) {
	h.ctx.RunResult.PushData(request.PushDataCall{Payload: items})
}

// UseState satisfies pipeline.CrawlerHandle: it acquires the named slot
// (loading it from the default KVS on first use) and holds its lock until
// the task finishes, so concurrent tasks sharing a key serialize instead
// of racing on the returned map.
func (h *taskHandle) UseState(key string, defaultValue map[string]any) (map[string]any, error) {
	if h.state == nil {
		return nil, errors.New("dispatcher: use_state requires a configured key-value store")
	}
	value, release, err := h.state.Acquire(h.ctx.Ctx, key, defaultValue)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.releases = append(h.releases, release)
	h.mu.Unlock()
	return value, nil
}

// releaseAll unlocks every slot UseState acquired during this task. Every
// acquired slot is flushed-eligible on release: we cannot cheaply tell
// whether the handler actually mutated the shared map it was handed, so
// we mark it dirty conservatively rather than silently dropping a write.
func (h *taskHandle) releaseAll() {
	h.mu.Lock()
	releases := h.releases
	h.releases = nil
	h.mu.Unlock()
	for _, release := range releases {
		release(true)
	}
}
