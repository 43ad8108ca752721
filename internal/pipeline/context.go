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

// Package pipeline implements the Context Pipeline (spec §4.2): an
// ordered chain of middlewares, each an explicit setup()/teardown() pair
// pushed onto a stack and unwound in strict LIFO order on every exit path
// (Design Note: "coroutine control flow -> task+context composition").
package pipeline

import (
	"context"

	"github.com/go-logr/logr"

	"crawlcore/pkg/contract"
	"crawlcore/pkg/request"
)

// Context is the per-request, per-attempt state threaded through the
// pipeline and handed to the final handler. Per the "weak per-context
// result map" Design Note, RunResult is a direct field rather than a
// side table keyed by Context identity.
type Context struct {
	Ctx context.Context

	Request   *request.Request
	Session   contract.SessionLike
	Proxy     contract.ProxyInfo
	Response  *contract.HttpResponse
	RunResult *request.RunResult

	// Values holds middleware-contributed enrichments keyed by a
	// middleware-chosen name (e.g. a protocol middleware might store its
	// parsed document under "html_document"). The core never reads these
	// keys itself.
	Values map[string]any

	// Log is a child logger with request_id/unique_key fields already
	// bound; middlewares and the handler should prefer it over the
	// process-wide logger.
	Log logr.Logger
}

// Value returns a middleware-contributed value by name.
func (c *Context) Value(name string) (any, bool) {
	v, ok := c.Values[name]
	return v, ok
}

// SetValue stores a middleware-contributed value by name.
func (c *Context) SetValue(name string, v any) {
	if c.Values == nil {
		c.Values = make(map[string]any)
	}
	c.Values[name] = v
}

// NewContext constructs a Context for one fetch_next/handler attempt.
func NewContext(ctx context.Context, req *request.Request, sess contract.SessionLike, proxy contract.ProxyInfo, log logr.Logger) *Context {
	if req != nil {
		log = log.WithValues("request_id", req.ID, "unique_key", req.UniqueKey)
	}
	return &Context{
		Ctx:       ctx,
		Request:   req,
		Session:   sess,
		Proxy:     proxy,
		RunResult: request.NewRunResult(),
		Log:       log,
	}
}

// CrawlerHandle is the narrow view of the Dispatcher a handler receives,
// per the Design Note avoiding cyclic references between Crawler,
// Pipeline, and Context: handlers see this interface, never the crawler
// or pipeline themselves.
type CrawlerHandle interface {
	// AddRequests records requests to be committed to the Request Queue
	// if and only if the current handler invocation succeeds.
	AddRequests(reqs []*request.Request, forefront bool)
	// PushData records a batch of result records to be committed to the
	// default Dataset on success.
	PushData(items []map[string]any)
	// UseState returns a handler-shared, per-key locked slot backed by
	// the default Key-Value Store (Design Note: "Global KVS caches /
	// use_state").
	UseState(key string, defaultValue map[string]any) (map[string]any, error)
}

// HandlerFunc is the final, user-defined request handler invoked after
// every middleware's setup stage has completed.
type HandlerFunc func(ctx *Context, crawler CrawlerHandle) error
