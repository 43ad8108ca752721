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

// Package dispatcher wires the Request Queue, Context Pipeline, Session
// Pool, Router, Autoscaled Pool, and the storage/robots collaborators
// into the Crawler Dispatcher (spec §4.6): the single run() loop that
// fetches a request, routes and runs it through the pipeline under a
// handler timeout, classifies any error against the decision table, and
// commits a successful handler's buffered side effects.
package dispatcher

import (
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"crawlcore/internal/autoscale"
	"crawlcore/internal/enqueue"
	"crawlcore/internal/pipeline"
	"crawlcore/internal/queue"
	"crawlcore/internal/robots"
	"crawlcore/internal/router"
	"crawlcore/internal/session"
	"crawlcore/internal/stats"
	"crawlcore/pkg/contract"
	"crawlcore/pkg/request"
)

// ErrorHandler is the user-supplied hook that runs before a retry decision
// is made (spec §4.6, step 4). It may return a replacement Request to use
// for the reclaim, or nil to reclaim the original. A non-nil error from
// this hook is fatal (UserDefinedErrorHandlerError).
type ErrorHandler func(ctx *pipeline.Context, err error) (*request.Request, error)

// FailedRequestHandler runs once per request after retries are exhausted.
// Any error it returns is fatal.
type FailedRequestHandler func(ctx *pipeline.Context, err error) error

// SkippedReasonHandler is invoked whenever a request is skipped without
// being dispatched (e.g. robots.txt disallow), per spec §8 scenario S5.
type SkippedReasonHandler func(req *request.Request, reason string)

// Config bundles every tunable the Dispatcher's run() reads, corresponding
// to the crawler-wide settings referenced throughout spec §4.6 and §5.
type Config struct {
	MaxRequestRetries    int
	MaxSessionRotations  int
	MaxRequestsPerCrawl  int // 0 means unbounded
	MaxCrawlDepth        int // 0 means unbounded
	RequestHandlerTimeout time.Duration
	InternalTimeout       time.Duration // 0 derives max(2*RequestHandlerTimeout, 5min)
	PurgeOnStart          bool
	KeepAlive             bool
	AbortOnError          bool
	RespectRobotsTxtFile  bool
	UseSessionPool        bool
	PersistStateInterval  time.Duration

	DefaultEnqueueStrategy request.EnqueueStrategy
	Include                []enqueue.Pattern
	Exclude                []enqueue.Pattern

	OnError          ErrorHandler
	OnFailedRequest  FailedRequestHandler
	OnSkippedRequest SkippedReasonHandler
}

// withDefaults fills zero-valued tunables with spec-mandated defaults.
func (c Config) withDefaults() Config {
	if c.RequestHandlerTimeout <= 0 {
		c.RequestHandlerTimeout = 60 * time.Second
	}
	if c.InternalTimeout <= 0 {
		c.InternalTimeout = internalTimeoutDefault(c.RequestHandlerTimeout)
	}
	if c.DefaultEnqueueStrategy == "" {
		c.DefaultEnqueueStrategy = request.StrategyAll
	}
	if c.PersistStateInterval <= 0 {
		c.PersistStateInterval = 15 * time.Second
	}
	return c
}

// internalTimeoutDefault is spec §5's "max(2 x request_handler_timeout, 5 min)".
func internalTimeoutDefault(handlerTimeout time.Duration) time.Duration {
	d := 2 * handlerTimeout
	if d < 5*time.Minute {
		return 5 * time.Minute
	}
	return d
}

// Dispatcher is the Crawler Dispatcher. Construct with New; the zero value
// is not usable.
type Dispatcher struct {
	cfg Config
	log logr.Logger

	rq        *queue.Queue
	pool      *autoscale.Pool
	sessions  *session.Pool
	pipeline  *pipeline.Pipeline
	router    *router.Router
	robots    *robots.Cache
	dataset   contract.Dataset
	kvs       contract.KeyValueStore
	proxy     ProxyResolver
	httpClient contract.HttpClient

	stats *stats.Stats

	state *stateStore

	stopped      atomic.Bool
	stopReason   atomic.Value // string
	abortedOnErr atomic.Bool
	requestsDone atomic.Int64
	fatalErr     atomic.Value // *fatalBox
	startedOnce  atomic.Bool
}

// fatalBox wraps a fatal error so it can live in an atomic.Value, which
// requires every stored value to share exactly one concrete type.
type fatalBox struct{ err error }

// FatalErr returns the first fatal error observed by a task, if any.
func (d *Dispatcher) FatalErr() error {
	if v, ok := d.fatalErr.Load().(*fatalBox); ok && v != nil {
		return v.err
	}
	return nil
}

// ProxyResolver resolves proxy info for a request/session pair; the
// Dispatcher never interprets the result itself (spec §6.1: "proxy_info
// may be null").
type ProxyResolver func(req *request.Request, sess contract.SessionLike) contract.ProxyInfo

// Collaborators bundles every dependency New needs. Only Proxy and Stats
// get a default when left nil (a resolver returning no proxy, and
// stats.New()); every other field is used as given, so Router must be
// non-nil before Run.
type Collaborators struct {
	Queue      *queue.Queue
	Pool       *autoscale.Pool
	Sessions   *session.Pool // nil when Config.UseSessionPool is false
	Pipeline   *pipeline.Pipeline
	Router     *router.Router
	Robots     *robots.Cache // nil when Config.RespectRobotsTxtFile is false
	Dataset    contract.Dataset
	KVS        contract.KeyValueStore
	Proxy      ProxyResolver
	HttpClient contract.HttpClient
	Stats      *stats.Stats
	Log        logr.Logger
}

// New constructs a Dispatcher from cfg and its collaborators.
func New(cfg Config, c Collaborators) *Dispatcher {
	cfg = cfg.withDefaults()
	if c.Proxy == nil {
		c.Proxy = func(*request.Request, contract.SessionLike) contract.ProxyInfo { return nil }
	}
	if c.Stats == nil {
		c.Stats = stats.New()
	}
	d := &Dispatcher{
		cfg:        cfg,
		log:        c.Log,
		rq:         c.Queue,
		pool:       c.Pool,
		sessions:   c.Sessions,
		pipeline:   c.Pipeline,
		router:     c.Router,
		robots:     c.Robots,
		dataset:    c.Dataset,
		kvs:        c.KVS,
		proxy:      c.Proxy,
		httpClient: c.HttpClient,
		stats:      c.Stats,
	}
	if c.KVS != nil {
		d.state = newStateStore(c.KVS)
	}
	d.stopReason.Store("")
	return d
}

// Stop is stop(reason?) (spec §4.6.2): causes is_task_ready to return
// false and, once in-flight tasks drain, is_finished to return true.
func (d *Dispatcher) Stop(reason string) {
	if d.stopped.CompareAndSwap(false, true) {
		d.stopReason.Store(reason)
	}
}

// Stopped reports whether Stop has been called.
func (d *Dispatcher) Stopped() bool { return d.stopped.Load() }

// StopReason returns the reason passed to Stop, or "" if Stop has not
// been called or was called with an empty reason.
func (d *Dispatcher) StopReason() string {
	if v, ok := d.stopReason.Load().(string); ok {
		return v
	}
	return ""
}

// Stats exposes the Dispatcher's Statistics collaborator.
func (d *Dispatcher) Stats() *stats.Stats { return d.stats }
