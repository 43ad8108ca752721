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

package demo

import (
	"crawlcore/internal/crawlerr"
	"crawlcore/internal/pipeline"
	"crawlcore/pkg/contract"
)

// MiddlewareConfig tunes how HTTP responses are classified into the
// crawlerr taxonomy (spec §6.2, step 4).
type MiddlewareConfig struct {
	// BlockedStatusCodes are treated as a blocked/suspicious session
	// (crawlerr.SessionError) rather than a terminal client error.
	// Defaults to {403, 429}.
	BlockedStatusCodes []int
}

func (c MiddlewareConfig) withDefaults() MiddlewareConfig {
	if len(c.BlockedStatusCodes) == 0 {
		c.BlockedStatusCodes = []int{403, 429}
	}
	return c
}

// HttpMiddleware builds the protocol middleware (spec §6.2): it crawls the
// request via client, populates ctx.Response and ctx.Request.LoadedURL, and
// classifies the outcome. It acquires no per-request resource of its own
// (the http.Client is shared and long-lived), so its Teardown is a no-op.
func HttpMiddleware(client contract.HttpClient, cfg MiddlewareConfig) pipeline.Middleware {
	cfg = cfg.withDefaults()
	blocked := make(map[int]bool, len(cfg.BlockedStatusCodes))
	for _, code := range cfg.BlockedStatusCodes {
		blocked[code] = true
	}

	return func(ctx *pipeline.Context) (pipeline.Teardown, error) {
		result, err := client.Crawl(ctx.Ctx, ctx.Request, ctx.Session, ctx.Proxy)
		if err != nil {
			return nil, &crawlerr.SessionError{Reason: "crawl_failed", Cause: err}
		}

		ctx.Response = result.Response
		ctx.Request.LoadedURL = result.Response.LoadedURL

		status := result.Response.StatusCode
		switch {
		case blocked[status]:
			return nil, &crawlerr.SessionError{Reason: "blocked_status_code"}
		case status >= 500:
			return nil, &crawlerr.HttpStatusCodeError{StatusCode: status, URL: ctx.Request.URL}
		case status >= 400:
			return nil, &crawlerr.HttpClientStatusCodeError{StatusCode: status, URL: ctx.Request.URL}
		}

		return func(error) {}, nil
	}
}
