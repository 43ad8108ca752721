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

package pipeline

import (
	"errors"
	"fmt"

	"crawlcore/internal/crawlerr"
)

// Teardown runs a middleware's cleanup stage. resultErr is whatever error
// (if any) is currently in flight — the handler's error, an interruption,
// or nil on the success path — so a middleware can tell a rollback from a
// normal close (e.g. close a page either way, but only roll back a
// transaction on error).
type Teardown func(resultErr error)

// Middleware is one stage of the Context Pipeline. It enriches ctx in
// place and returns a Teardown to run on every exit path, LIFO relative to
// setup. A Go function returns exactly once by construction, which is what
// structurally guarantees the "yield-once" contract the source language
// enforced with a generator protocol: there is no separate violation to
// detect here.
//
// Returning a *crawlerr.ContextPipelineInterruptedError asks the pipeline
// to stop setup and mark the request handled without running the handler;
// a *crawlerr.SessionError is returned as is; any other error is wrapped
// as ContextPipelineInitializationError.
type Middleware func(ctx *Context) (Teardown, error)

// Pipeline is an ordered, immutable chain of middlewares.
type Pipeline struct {
	middlewares []Middleware
}

// New constructs a Pipeline from an ordered list of middlewares.
func New(mw ...Middleware) *Pipeline {
	cp := make([]Middleware, len(mw))
	copy(cp, mw)
	return &Pipeline{middlewares: cp}
}

// Compose returns a new Pipeline with mw appended, per spec §4.2:
// "compose(middleware) returns an extended pipeline". The receiver is
// left unmodified.
func (p *Pipeline) Compose(mw Middleware) *Pipeline {
	out := make([]Middleware, len(p.middlewares)+1)
	copy(out, p.middlewares)
	out[len(p.middlewares)] = mw
	return &Pipeline{middlewares: out}
}

func runSetup(mw Middleware, ctx *Context) (td Teardown, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("middleware setup panic: %v", r)
		}
	}()
	return mw(ctx)
}

func runHandler(h HandlerFunc, ctx *Context, crawler CrawlerHandle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, crawler)
}

// unwind runs every pushed Teardown in LIFO order, passing causeErr to
// each. A panic during any Teardown call is recovered and reported as a
// ContextPipelineFinalizationError; in that case unwind returns that
// error so the caller can surface it instead of (or alongside, via
// Unwrap) the original cause.
func unwind(stack []Teardown, ctx *Context, causeErr error) error {
	var finalizationErr error
	for i := len(stack) - 1; i >= 0; i-- {
		td := stack[i]
		if td == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil && finalizationErr == nil {
					finalizationErr = &crawlerr.ContextPipelineFinalizationError{
						WrappedException: fmt.Errorf("teardown panic: %v", r),
						CtxAtCleanup:      ctx,
					}
				}
			}()
			td(causeErr)
		}()
	}
	return finalizationErr
}

// Run executes setup for every middleware in order, pushing each onto a
// cleanup stack; runs handler once every setup has succeeded; then unwinds
// the stack in LIFO order on every exit path. The returned error is always
// one of the crawlerr taxonomy members (or nil).
func (p *Pipeline) Run(ctx *Context, handler HandlerFunc, crawler CrawlerHandle) error {
	stack := make([]Teardown, 0, len(p.middlewares))

	for _, mw := range p.middlewares {
		td, err := runSetup(mw, ctx)
		if err != nil {
			var interrupted *crawlerr.ContextPipelineInterruptedError
			if errors.As(err, &interrupted) {
				_ = unwind(stack, ctx, nil)
				return interrupted
			}
			var sessErr *crawlerr.SessionError
			if errors.As(err, &sessErr) {
				_ = unwind(stack, ctx, err)
				return sessErr
			}
			_ = unwind(stack, ctx, err)
			return &crawlerr.ContextPipelineInitializationError{WrappedException: err, CtxSoFar: ctx}
		}
		stack = append(stack, td)
	}

	handlerErr := runHandler(handler, ctx, crawler)

	if cleanupErr := unwind(stack, ctx, handlerErr); cleanupErr != nil {
		return cleanupErr
	}

	if handlerErr == nil {
		return nil
	}
	var sessErr *crawlerr.SessionError
	if errors.As(handlerErr, &sessErr) {
		return sessErr
	}
	return &crawlerr.RequestHandlerError{WrappedException: handlerErr, FinalCtx: ctx}
}
