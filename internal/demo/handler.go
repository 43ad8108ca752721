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
	"encoding/json"

	"crawlcore/internal/pipeline"
	"crawlcore/pkg/request"
)

// page is the shape a crawled page is expected to return when its content
// is JSON: a title and a set of further URLs to enqueue. HTML parsing is
// out of scope, so the demo only follows links a page advertises this way
// rather than scraping anchor tags.
type page struct {
	Title string   `json:"title"`
	Links []string `json:"links"`
}

// DefaultHandler builds the demo's default request handler: it records one
// dataset item per crawled page (url, status, byte count, title if any)
// and enqueues any links the page advertised in its JSON body.
func DefaultHandler() pipeline.HandlerFunc {
	return func(ctx *pipeline.Context, crawler pipeline.CrawlerHandle) error {
		resp := ctx.Response
		item := map[string]any{
			"url":    ctx.Request.URL,
			"status": resp.StatusCode,
			"bytes":  len(resp.Body),
		}

		var p page
		if json.Unmarshal(resp.Body, &p) == nil {
			if p.Title != "" {
				item["title"] = p.Title
			}
			if len(p.Links) > 0 {
				children := make([]*request.Request, 0, len(p.Links))
				for _, link := range p.Links {
					children = append(children, request.New(link, "GET", nil, nil))
				}
				crawler.AddRequests(children, false)
			}
		}

		crawler.PushData([]map[string]any{item})
		ctx.Log.V(1).Info("crawled page", "url", ctx.Request.URL, "status", resp.StatusCode)
		return nil
	}
}
