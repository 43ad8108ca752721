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
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"crawlcore/internal/crawlerr"
	"crawlcore/internal/pipeline"
	"crawlcore/internal/queue"
	"crawlcore/internal/session"
	"crawlcore/internal/stats"
	"crawlcore/pkg/request"
)

func newTestDispatcher(t *testing.T, cfg Config) (*Dispatcher, *queue.Queue) {
	t.Helper()
	rq := queue.NewWithShards(1, time.Minute)
	sessions := session.NewPool(4)
	d := New(cfg, Collaborators{
		Queue:    rq,
		Sessions: sessions,
		Stats:    stats.New(),
		Log:      logr.Discard(),
	})
	return d, rq
}

// leasedContext fetches req out of rq (leasing it) and wraps it in a fresh
// pipeline.Context, mirroring what runTask hands handleError.
func leasedContext(rq *queue.Queue, req *request.Request) *pipeline.Context {
	rq.AddBatch([]*request.Request{req}, false)
	leased := rq.FetchNext()
	return pipeline.NewContext(nil, leased, nil, nil, logr.Discard())
}

func TestHandleErrorHttpClientStatusCodeFinalizesWithoutRetry(t *testing.T) {
	d, rq := newTestDispatcher(t, Config{MaxRequestRetries: 5})
	req := request.New("http://x/", "GET", nil, nil)
	taskCtx := leasedContext(rq, req)

	fatal := d.handleError(taskCtx, nil, &crawlerr.HttpClientStatusCodeError{StatusCode: 404, URL: req.URL})
	if fatal != nil {
		t.Fatalf("expected non-fatal outcome, got %v", fatal)
	}
	if got := rq.Get(req.UniqueKey); got == nil || got.State != request.StateDone {
		t.Fatalf("expected request marked handled, got %+v", got)
	}
	if req.RetryCount != 0 {
		t.Fatalf("4xx must not consume a retry, got RetryCount=%d", req.RetryCount)
	}
	if got := d.Stats().Snapshot().RequestsFailed; got != 1 {
		t.Fatalf("RequestsFailed = %d, want 1", got)
	}
}

func TestHandleErrorRetryableRetriesThenFails(t *testing.T) {
	d, rq := newTestDispatcher(t, Config{MaxRequestRetries: 2})
	req := request.New("http://y/", "GET", nil, nil)
	taskCtx := leasedContext(rq, req)

	err := &crawlerr.HttpStatusCodeError{StatusCode: 503, URL: req.URL}

	// Attempt 1 and 2 reclaim (RetryCount becomes 1, then 2; both <= max).
	for i := 0; i < 2; i++ {
		if fatal := d.handleError(taskCtx, nil, err); fatal != nil {
			t.Fatalf("attempt %d: unexpected fatal %v", i, fatal)
		}
		if rq.Get(req.UniqueKey) == nil || req.State != request.StateUnprocessed {
			t.Fatalf("attempt %d: expected request reclaimed to pending", i)
		}
		// Re-lease for the next attempt, as runTask's next FetchNext would.
		if rq.FetchNext() == nil {
			t.Fatalf("attempt %d: expected the reclaimed request to be fetchable", i)
		}
	}

	// Attempt 3 exceeds MaxRequestRetries=2 and must finalize as failed.
	if fatal := d.handleError(taskCtx, nil, err); fatal != nil {
		t.Fatalf("unexpected fatal on final attempt: %v", fatal)
	}
	if got := rq.Get(req.UniqueKey); got == nil || got.State != request.StateDone {
		t.Fatalf("expected request finalized as failed, got %+v", got)
	}
	if got := d.Stats().Snapshot().RequestsFailed; got != 1 {
		t.Fatalf("RequestsFailed = %d, want 1", got)
	}
}

func TestHandleErrorHandlerTimeoutIsRetriable(t *testing.T) {
	d, rq := newTestDispatcher(t, Config{MaxRequestRetries: 3})
	req := request.New("http://timeout/", "GET", nil, nil)
	taskCtx := leasedContext(rq, req)

	fatal := d.handleError(taskCtx, nil, &crawlerr.HandlerTimeoutError{Timeout: "60s"})
	if fatal != nil {
		t.Fatalf("expected non-fatal outcome, got %v", fatal)
	}
	if req.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", req.RetryCount)
	}
	if rq.Get(req.UniqueKey) == nil || req.State != request.StateUnprocessed {
		t.Fatalf("expected HandlerTimeoutError to reclaim the request for retry")
	}
}

func TestHandleErrorSessionErrorRotatesThenFails(t *testing.T) {
	d, rq := newTestDispatcher(t, Config{MaxSessionRotations: 1})
	req := request.New("http://z/", "GET", nil, nil)
	taskCtx := leasedContext(rq, req)

	sess, err := d.sessions.GetSession()
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	sessErr := &crawlerr.SessionError{Reason: "blocked"}
	if fatal := d.handleError(taskCtx, sess, sessErr); fatal != nil {
		t.Fatalf("attempt 1: unexpected fatal %v", fatal)
	}
	if req.SessionRotationCount != 1 {
		t.Fatalf("SessionRotationCount = %d, want 1", req.SessionRotationCount)
	}
	if req.RetryCount != 0 {
		t.Fatalf("a SessionError must not consume max_request_retries budget, got RetryCount=%d", req.RetryCount)
	}

	rq.FetchNext()
	if fatal := d.handleError(taskCtx, sess, sessErr); fatal != nil {
		t.Fatalf("attempt 2: unexpected fatal %v", fatal)
	}
	if got := rq.Get(req.UniqueKey); got == nil || got.State != request.StateDone {
		t.Fatalf("expected request finalized after exceeding max_session_rotations, got %+v", got)
	}
}

func TestHandleErrorRequestCollisionFinalizesWithoutRetry(t *testing.T) {
	d, rq := newTestDispatcher(t, Config{MaxRequestRetries: 5})
	req := request.New("http://collide/", "GET", nil, nil)
	taskCtx := leasedContext(rq, req)

	fatal := d.handleError(taskCtx, nil, &crawlerr.RequestCollisionError{SessionID: "s1"})
	if fatal != nil {
		t.Fatalf("expected non-fatal outcome, got %v", fatal)
	}
	if got := rq.Get(req.UniqueKey); got == nil || got.State != request.StateDone {
		t.Fatalf("expected collision to finalize without retry, got %+v", got)
	}
}

func TestHandleErrorInterruptedIsSilent(t *testing.T) {
	d, rq := newTestDispatcher(t, Config{})
	req := request.New("http://quiet/", "GET", nil, nil)
	taskCtx := leasedContext(rq, req)

	fatal := d.handleError(taskCtx, nil, &crawlerr.ContextPipelineInterruptedError{Reason: "duplicate content"})
	if fatal != nil {
		t.Fatalf("expected non-fatal outcome, got %v", fatal)
	}
	if got := rq.Get(req.UniqueKey); got == nil || got.State != request.StateDone {
		t.Fatalf("expected request marked handled, got %+v", got)
	}
	snap := d.Stats().Snapshot()
	if snap.RequestsFailed != 0 || snap.RequestsFinished != 0 {
		t.Fatalf("a silent interruption must not affect finished/failed counters, got %+v", snap)
	}
}

func TestHandleErrorUnclassifiedIsFatal(t *testing.T) {
	d, rq := newTestDispatcher(t, Config{})
	req := request.New("http://boom/", "GET", nil, nil)
	taskCtx := leasedContext(rq, req)

	fatal := d.handleError(taskCtx, nil, errors.New("completely unexpected"))
	if fatal == nil {
		t.Fatalf("expected an unrecognized error to be fatal")
	}
	if got := rq.Get(req.UniqueKey); got == nil || got.State != request.StateDone {
		t.Fatalf("expected the request still marked handled on the way out, got %+v", got)
	}
}

func TestHandleErrorOnErrorHookFailureIsFatal(t *testing.T) {
	hookErr := errors.New("user hook exploded")
	d, rq := newTestDispatcher(t, Config{
		OnError: func(*pipeline.Context, error) (*request.Request, error) {
			return nil, hookErr
		},
	})
	req := request.New("http://hook/", "GET", nil, nil)
	taskCtx := leasedContext(rq, req)

	fatal := d.handleError(taskCtx, nil, &crawlerr.HttpStatusCodeError{StatusCode: 500, URL: req.URL})
	var userErr *crawlerr.UserDefinedErrorHandlerError
	if !errors.As(fatal, &userErr) {
		t.Fatalf("expected UserDefinedErrorHandlerError, got %v", fatal)
	}
}

func TestHandleErrorAbortOnErrorStopsAfterOneFailure(t *testing.T) {
	d, rq := newTestDispatcher(t, Config{AbortOnError: true})
	req := request.New("http://abort/", "GET", nil, nil)
	taskCtx := leasedContext(rq, req)

	if fatal := d.handleError(taskCtx, nil, &crawlerr.HttpClientStatusCodeError{StatusCode: 410, URL: req.URL}); fatal != nil {
		t.Fatalf("unexpected fatal: %v", fatal)
	}
	if !d.abortedOnErr.Load() {
		t.Fatalf("expected abort_on_error to flip abortedOnErr after a terminal failure")
	}
}
