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

// Package request defines the crawl work unit (Request) and the buffer of
// handler side-effects (RunResult) committed after a successful handler run.
package request

import "time"

// EnqueueStrategy restricts which links a handler may follow when it calls
// AddRequests with relative or absolute URLs.
type EnqueueStrategy string

const (
	StrategyAll          EnqueueStrategy = "all"
	StrategySameHostname EnqueueStrategy = "same-hostname"
	StrategySameDomain   EnqueueStrategy = "same-domain"
	StrategySameOrigin   EnqueueStrategy = "same-origin"
)

// State is the processing state of a Request within one lifecycle.
type State string

const (
	StateUnprocessed   State = "unprocessed"
	StateRequestHandler State = "request_handler"
	StateErrorHandler   State = "error_handler"
	StateDone           State = "done"
	StateError          State = "error"
	StateSkipped         State = "skipped"
)

// Request is an addressable unit of crawl work identified by UniqueKey.
// Identity fields (URL, Method, Payload, UniqueKey) are set once at
// construction; the remaining fields are mutable processing state updated
// by the Request Queue and the Crawler Dispatcher as the request moves
// through its lifecycle.
type Request struct {
	// ID is a deterministic digest of UniqueKey (see DeriveID).
	ID string

	URL     string
	Method  string
	Headers map[string]string
	Payload []byte

	// UniqueKey is the deduplication identity used by the Request Queue.
	// If empty at construction, New derives it from URL/Method/Payload.
	UniqueKey string

	// UserData is an opaque, user-controlled value carried through the
	// pipeline and into the handler untouched by the core.
	UserData map[string]any

	// Label selects a handler in the Router; empty routes to the default.
	Label string

	// SessionID, if set, pins this Request to one Session; see
	// RequestCollisionError in package crawlerr.
	SessionID string

	EnqueueStrategy EnqueueStrategy

	// RetryCount is monotonically non-decreasing within one Request
	// lifecycle; it never resets on reclaim.
	RetryCount int
	// SessionRotationCount counts SessionError-triggered rotations, which
	// are tracked separately from RetryCount per the retry-bound property.
	SessionRotationCount int
	NoRetry              bool
	// MaxRetries, if non-nil, overrides the crawler-wide
	// max_request_retries for this Request only.
	MaxRetries *int
	CrawlDepth int

	State     State
	HandledAt *time.Time

	// LoadedURL is the URL after redirects, set by the protocol
	// middleware; empty until that middleware runs.
	LoadedURL string

	// AlwaysEnqueue bypasses UniqueKey deduplication for this insertion
	// only; it does not change the identity of the Request itself.
	AlwaysEnqueue bool

	// RetryReasonHistory is a short ring of the most recent classified
	// error kinds for this request, for failed-request handler logging.
	RetryReasonHistory []string
}

const maxRetryReasonHistory = 8

// RecordRetryReason appends a classified error kind, trimming the history
// to the most recent maxRetryReasonHistory entries.
func (r *Request) RecordRetryReason(kind string) {
	r.RetryReasonHistory = append(r.RetryReasonHistory, kind)
	if n := len(r.RetryReasonHistory); n > maxRetryReasonHistory {
		r.RetryReasonHistory = r.RetryReasonHistory[n-maxRetryReasonHistory:]
	}
}

// EffectiveMaxRetries returns the per-request override if set, else the
// crawler-wide default.
func (r *Request) EffectiveMaxRetries(crawlerDefault int) int {
	if r.MaxRetries != nil {
		return *r.MaxRetries
	}
	return crawlerDefault
}

// New constructs a Request, deriving UniqueKey and ID when UniqueKey is
// not already set.
func New(url, method string, headers map[string]string, payload []byte) *Request {
	r := &Request{
		URL:             url,
		Method:          method,
		Headers:         headers,
		Payload:         payload,
		EnqueueStrategy: StrategyAll,
		State:           StateUnprocessed,
	}
	if r.Method == "" {
		r.Method = "GET"
	}
	r.UniqueKey = DeriveUniqueKey(r.URL, r.Method, r.Payload, true)
	r.ID = DeriveID(r.UniqueKey)
	return r
}
