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

// Package contract defines the collaborator interfaces the dispatcher core
// depends on but does not implement: an HTTP transport, durable Dataset and
// Key-Value-Store backends, the event manager, and the robots.txt file
// lookup. Concrete HTTP clients, HTML parsers, and headless-browser drivers
// are explicitly out of scope for this module; package internal/storage and
// internal/robots provide reference implementations of the storage and
// robots contracts so the rest of the core can be exercised end to end.
package contract

import (
	"context"
	"time"

	"crawlcore/pkg/request"
)

// HttpResponse is the minimal response shape the core inspects to apply
// the §4.6 error-classification decision table.
type HttpResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	LoadedURL  string
}

// HttpCrawlingResult pairs a response with the request actually sent
// (which may differ from the original after redirects).
type HttpCrawlingResult struct {
	Request  *request.Request
	Response *HttpResponse
}

// SessionLike is the minimal session view a transport needs; it avoids an
// import cycle with package session while still letting an HttpClient
// attach cookies/fingerprints to the right identity.
type SessionLike interface {
	ID() string
}

// ProxyInfo is opaque to the core; transports interpret it.
type ProxyInfo any

// HttpClient performs the actual network I/O for protocol middlewares. It
// is supplied by the caller; the core only ever calls it, never
// constructs one.
type HttpClient interface {
	SendRequest(ctx context.Context, url, method string, headers map[string]string, payload []byte, sess SessionLike, proxy ProxyInfo) (*HttpResponse, error)
	Crawl(ctx context.Context, req *request.Request, sess SessionLike, proxy ProxyInfo) (*HttpCrawlingResult, error)
}

// Dataset is an append-mostly, ordered collection of JSON-like records.
type Dataset interface {
	PushData(ctx context.Context, items []map[string]any) error
	GetData(ctx context.Context, offset, limit int) ([]map[string]any, error)
	IterateItems(ctx context.Context, fn func(item map[string]any) bool) error
	WriteToCSV(ctx context.Context, w WriteCloser) error
	WriteToJSON(ctx context.Context, w WriteCloser) error
	Drop(ctx context.Context) error
	Purge(ctx context.Context) error
}

// WriteCloser is the minimal sink WriteToCSV/WriteToJSON writes through;
// satisfied by *os.File and any io.WriteCloser.
type WriteCloser interface {
	Write(p []byte) (int, error)
	Close() error
}

// KeyValueStore is a durable map keyed by string, with an opaque content
// type per value (mirroring a blob store's per-object content-type).
type KeyValueStore interface {
	GetValue(ctx context.Context, key string) ([]byte, string, bool, error)
	SetValue(ctx context.Context, key string, content []byte, contentType string) error
	DeleteValue(ctx context.Context, key string) error
	IterateKeys(ctx context.Context, fn func(key string) bool) error
	GetAutoSavedValue(ctx context.Context, key string, defaultValue map[string]any) (map[string]any, error)
	PersistAutoSavedValues(ctx context.Context) error
	Drop(ctx context.Context) error
}

// EventManager is the scoped, process-wide event bus. The core only uses
// it to emit persist_state; other events are opaque passthroughs.
type EventManager interface {
	Emit(event string, payload any)
	On(event string, fn func(payload any))
	PersistStateInterval() time.Duration
}

// RobotsTxtFile is a parsed robots.txt document. Parsing the robots.txt
// grammar itself is out of scope for this module (see internal/robots,
// which only owns the fetch-and-cache discipline around an injected
// parser implementing this interface).
type RobotsTxtFile interface {
	IsAllowed(url string) bool
}

// RobotsTxtParser parses a fetched robots.txt body. Implementations are
// supplied by the caller.
type RobotsTxtParser interface {
	Parse(body []byte) (RobotsTxtFile, error)
}
