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

	"crawlcore/internal/enqueue"
	"crawlcore/internal/pipeline"
)

// commit is spec §4.6 step 5, the enqueue-commit protocol: every buffered
// add_requests call is filtered (strategy, include/exclude, depth; no
// per-call limit is applied) and batch-added to the RQ; push_data and KVS writes are flushed after,
// in that order. Each subsystem's write is atomic; the commit as a whole
// is not.
func (d *Dispatcher) commit(ctx context.Context, taskCtx *pipeline.Context) error {
	sourceURL := taskCtx.Request.LoadedURL
	if sourceURL == "" {
		sourceURL = taskCtx.Request.URL
	}
	parentDepth := taskCtx.Request.CrawlDepth

	filterCfg := enqueue.Config{
		Strategy:      d.cfg.DefaultEnqueueStrategy,
		MaxCrawlDepth: d.cfg.MaxCrawlDepth,
	}
	if len(d.cfg.Include) > 0 || len(d.cfg.Exclude) > 0 {
		patterns, err := enqueue.NewPatterns(d.cfg.Include, d.cfg.Exclude)
		if err != nil {
			return err
		}
		filterCfg.Patterns = patterns
	}

	for _, call := range taskCtx.RunResult.AddRequestsCalls {
		for _, child := range call.Requests {
			if child.CrawlDepth == 0 {
				child.CrawlDepth = parentDepth + 1
			}
		}
		res, err := enqueue.Filter(filterCfg, sourceURL, call.Requests)
		if err != nil {
			return err
		}
		if len(res.Accepted) == 0 {
			continue
		}
		d.rq.AddBatch(res.Accepted, call.Forefront)
	}

	for _, call := range taskCtx.RunResult.PushDataCalls {
		if d.dataset == nil || len(call.Payload) == 0 {
			continue
		}
		if err := withInternalIOVoid(ctx, d.cfg.InternalTimeout, func(c context.Context) error {
			return d.dataset.PushData(c, call.Payload)
		}); err != nil {
			return err
		}
	}

	if d.kvs != nil {
		for _, writes := range taskCtx.RunResult.KeyValueStoreChanges() {
			for _, w := range writes {
				write := w
				if err := withInternalIOVoid(ctx, d.cfg.InternalTimeout, func(c context.Context) error {
					return d.kvs.SetValue(c, write.Key, write.Content, write.ContentType)
				}); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
