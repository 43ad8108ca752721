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
	"context"
	"errors"
	"time"

	"crawlcore/internal/crawlerr"
	"crawlcore/internal/pipeline"
	"crawlcore/internal/session"
	"crawlcore/pkg/contract"
	"crawlcore/pkg/request"
)

// runTask is spec §4.6's run_task(): fetch one request, apply the
// robots.txt gate, bind a session, run it through the Context Pipeline
// and handler under request_handler_timeout, commit on success, and
// classify/handle on error. It is the function driven by the Autoscaled
// Pool, one goroutine per in-flight request.
func (d *Dispatcher) runTask(ctx context.Context) {
	req := d.rq.FetchNext()
	if req == nil {
		return
	}

	if d.cfg.RespectRobotsTxtFile && d.robots != nil {
		targetURL := req.URL
		if req.LoadedURL != "" {
			targetURL = req.LoadedURL
		}
		allowed, err := withInternalIO(ctx, d.cfg.InternalTimeout, func(c context.Context) (bool, error) {
			return d.robots.IsAllowed(c, targetURL)
		})
		if err != nil || !allowed {
			reason := "robots_txt"
			if err != nil {
				reason = "robots_txt_error"
			}
			d.markHandledBestEffort(req)
			d.reportSkipped(req, reason)
			return
		}
	}

	sess, sessErr := d.bindSession(ctx, req)
	if sessErr != nil {
		var collision *crawlerr.RequestCollisionError
		if errors.As(sessErr, &collision) {
			d.finalizeFailure(pipeline.NewContext(ctx, req, nil, nil, d.log), sessErr)
			return
		}
		d.reclaim(req, false)
		return
	}
	if sess != nil {
		defer sess.Release()
	}

	handlerFn, routeErr := d.router.Route(req)
	if routeErr != nil {
		d.markHandledBestEffort(req)
		d.stats.RecordError("router_no_handler")
		return
	}

	start := time.Now()
	req.State = request.StateRequestHandler

	runCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestHandlerTimeout)
	proxy := d.proxy(req, sessionLikeOf(sess))
	taskCtx := pipeline.NewContext(runCtx, req, sessionLikeOf(sess), proxy, d.log)
	handle := newTaskHandle(taskCtx, d.state)
	defer handle.releaseAll()

	runErr := d.pipeline.Run(taskCtx, handlerFn, handle)
	if runErr != nil && runCtx.Err() == context.DeadlineExceeded {
		runErr = &crawlerr.HandlerTimeoutError{Timeout: d.cfg.RequestHandlerTimeout.String()}
	}
	cancel()

	if runErr == nil {
		if commitErr := d.commit(ctx, taskCtx); commitErr != nil {
			d.markHandledBestEffort(req)
			d.stats.RecordError("commit_error")
			return
		}
		d.markHandledBestEffort(req)
		req.State = request.StateDone
		if sess != nil && sess.IsUsable() {
			sess.RecordSuccess()
		}
		d.stats.RecordFinished(time.Since(start), req.RetryCount)
		d.requestsDone.Add(1)
		return
	}

	if fatal := d.handleError(taskCtx, sess, runErr); fatal != nil {
		d.reportFatal(fatal)
	}
}

// bindSession is bound_session_or_any(req): a Request pinned to a
// session_id must be served by that exact session or fail with
// RequestCollisionError; otherwise any usable session from the pool is
// acquired.
func (d *Dispatcher) bindSession(ctx context.Context, req *request.Request) (*session.Session, error) {
	if !d.cfg.UseSessionPool || d.sessions == nil {
		return nil, nil
	}
	if req.SessionID != "" {
		sess := d.sessions.GetSessionByID(req.SessionID)
		if sess == nil {
			return nil, &crawlerr.RequestCollisionError{SessionID: req.SessionID}
		}
		return sess, nil
	}
	return withInternalIO(ctx, d.cfg.InternalTimeout, func(context.Context) (*session.Session, error) {
		return d.sessions.GetSession()
	})
}

func sessionLikeOf(sess *session.Session) contract.SessionLike {
	if sess == nil {
		return nil
	}
	return sess
}

// reportFatal records the first fatal error seen and stops the run so
// is_finished converges once in-flight tasks drain (spec §4.6: "Fatal
// errors propagate out of run() after attempting to mark the current
// request handled").
func (d *Dispatcher) reportFatal(err error) {
	d.fatalErr.CompareAndSwap(nil, &fatalBox{err: err})
	d.Stop("fatal_error")
}
