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

package enqueue

import "crawlcore/pkg/request"

// Config bundles the enqueue-commit protocol's filtering parameters for
// one add_requests call (spec §4.6, step 5).
type Config struct {
	Strategy      request.EnqueueStrategy
	Patterns      *Patterns
	MaxCrawlDepth int // 0 means unbounded
	Limit         int // 0 means unbounded
}

// Result is the outcome of filtering one batch of candidate requests.
type Result struct {
	Accepted []*request.Request
	// DroppedByStrategy, DroppedByPattern, DroppedByDepth count requests
	// removed by each stage, for the failed/skipped-request bookkeeping
	// callers may want to surface via Statistics.
	DroppedByStrategy int
	DroppedByPattern  int
	DroppedByDepth    int
	DroppedByLimit    int
}

// Filter applies the enqueue-strategy predicate, the include/exclude
// pattern filter, the max-crawl-depth bound, and finally the batch limit,
// in that order, matching spec §4.6's step 5 ordering.
func Filter(cfg Config, sourceURL string, candidates []*request.Request) (Result, error) {
	var res Result
	for _, c := range candidates {
		target := c.LoadedURL
		if target == "" {
			target = c.URL
		}

		ok, err := StrategyAllowed(cfg.Strategy, sourceURL, target)
		if err != nil {
			return res, err
		}
		if !ok {
			res.DroppedByStrategy++
			continue
		}
		if !cfg.Patterns.Allowed(target) {
			res.DroppedByPattern++
			continue
		}
		if cfg.MaxCrawlDepth > 0 && c.CrawlDepth > cfg.MaxCrawlDepth {
			res.DroppedByDepth++
			continue
		}
		res.Accepted = append(res.Accepted, c)
	}

	if cfg.Limit > 0 && len(res.Accepted) > cfg.Limit {
		res.DroppedByLimit = len(res.Accepted) - cfg.Limit
		res.Accepted = res.Accepted[:cfg.Limit]
	}
	return res, nil
}
