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

// Package router implements the Router (spec §4.4): a label -> handler
// registry with a nullable default, the dynamic-dispatch counterpart to
// the compile-time polymorphism other languages use for this.
package router

import (
	"errors"
	"fmt"

	"crawlcore/internal/pipeline"
	"crawlcore/pkg/request"
)

// ErrNoHandler is returned by Route when a request carries a label with
// no registered handler and no default handler has been set.
var ErrNoHandler = errors.New("router: no handler registered for label and no default set")

// AlreadySetError is returned by Handler/Default when the same label (or
// the default slot) is registered a second time.
type AlreadySetError struct {
	Label string // empty for the default handler
}

func (e *AlreadySetError) Error() string {
	if e.Label == "" {
		return "router: default handler already set"
	}
	return fmt.Sprintf("router: handler for label %q already set", e.Label)
}

// Router dispatches a request to a handler by request.Label, falling back
// to a registered default handler when the label is empty or unknown.
// Registering the same label, or the default, twice is an error: a
// crawler's routing table is meant to be assembled once at startup.
type Router struct {
	handlers map[string]pipeline.HandlerFunc
	def      pipeline.HandlerFunc
}

// New constructs an empty Router.
func New() *Router {
	return &Router{handlers: make(map[string]pipeline.HandlerFunc)}
}

// Handler registers h for label. label must be non-empty; use Default for
// the no-label fallback. Returns AlreadySetError if label is already
// registered.
func (r *Router) Handler(label string, h pipeline.HandlerFunc) error {
	if label == "" {
		return fmt.Errorf("router: label must not be empty, use Default for the fallback handler")
	}
	if _, exists := r.handlers[label]; exists {
		return &AlreadySetError{Label: label}
	}
	r.handlers[label] = h
	return nil
}

// Default registers h as the fallback handler used when a request has no
// label or its label has no registered handler. Returns AlreadySetError
// if a default is already registered.
func (r *Router) Default(h pipeline.HandlerFunc) error {
	if r.def != nil {
		return &AlreadySetError{}
	}
	r.def = h
	return nil
}

// Route returns the handler for req, per its Label, falling back to the
// default handler. Returns ErrNoHandler if neither is available.
func (r *Router) Route(req *request.Request) (pipeline.HandlerFunc, error) {
	if req.Label != "" {
		if h, ok := r.handlers[req.Label]; ok {
			return h, nil
		}
	}
	if r.def != nil {
		return r.def, nil
	}
	return nil, ErrNoHandler
}
