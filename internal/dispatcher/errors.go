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

	"crawlcore/internal/crawlerr"
	"crawlcore/internal/pipeline"
	"crawlcore/internal/session"
	"crawlcore/pkg/request"
)

// handleError implements spec §4.6 step 4, the single decision table. It
// runs after the single catch site in runTask and is the only place that
// decides retry/reclaim/fail/fatal for a classified error. A non-nil
// return means the run must terminate (UserDefinedErrorHandlerError or an
// unrecognized, "any other exception" error).
func (d *Dispatcher) handleError(taskCtx *pipeline.Context, sess *session.Session, err error) error {
	d.stats.RecordError(crawlerr.Kind(err))

	if d.cfg.OnError != nil {
		replacement, hookErr := d.cfg.OnError(taskCtx, err)
		if hookErr != nil {
			d.markHandledBestEffort(taskCtx.Request)
			return &crawlerr.UserDefinedErrorHandlerError{WrappedException: hookErr}
		}
		if replacement != nil {
			taskCtx.Request = replacement
		}
	}

	var interrupted *crawlerr.ContextPipelineInterruptedError
	if errors.As(err, &interrupted) {
		d.markHandledBestEffort(taskCtx.Request)
		d.reportSkipped(taskCtx.Request, "context_pipeline_interrupted")
		return nil
	}

	var sessErr *crawlerr.SessionError
	if errors.As(err, &sessErr) {
		return d.handleSessionError(taskCtx, sess, sessErr)
	}

	var clientErr *crawlerr.HttpClientStatusCodeError
	if errors.As(err, &clientErr) {
		d.markSessionBad(sess)
		return d.finalizeFailure(taskCtx, err)
	}

	var collisionErr *crawlerr.RequestCollisionError
	if errors.As(err, &collisionErr) {
		return d.finalizeFailure(taskCtx, err)
	}

	var userErr *crawlerr.UserDefinedErrorHandlerError
	if errors.As(err, &userErr) {
		d.markHandledBestEffort(taskCtx.Request)
		return err
	}

	// HttpStatusCodeError, ContextPipelineInitializationError,
	// RequestHandlerError, and HandlerTimeoutError (which runTask returns
	// on its own, unwrapped, when the handler deadline passes) all share
	// the retry-until max_request_retries, mark-bad-session behavior.
	if isRetriableByKind(err) {
		d.markSessionBad(sess)
		return d.retryOrFail(taskCtx, err)
	}

	// Any other exception: fatal, terminate the run.
	d.markHandledBestEffort(taskCtx.Request)
	return err
}

func isRetriableByKind(err error) bool {
	var httpErr *crawlerr.HttpStatusCodeError
	var initErr *crawlerr.ContextPipelineInitializationError
	var handlerErr *crawlerr.RequestHandlerError
	var timeoutErr *crawlerr.HandlerTimeoutError
	return errors.As(err, &httpErr) || errors.As(err, &initErr) ||
		errors.As(err, &handlerErr) || errors.As(err, &timeoutErr)
}

// handleSessionError is the SessionError row: retry until
// max_session_rotations (tracked separately from max_request_retries),
// retiring the blocked session and rebinding the request to no particular
// session before reclaiming it.
func (d *Dispatcher) handleSessionError(taskCtx *pipeline.Context, sess *session.Session, sessErr *crawlerr.SessionError) error {
	req := taskCtx.Request
	if sess != nil {
		sess.RecordSessionError(sessErr)
		if d.sessions != nil {
			d.sessions.RetireSession(sess.ID(), sessErr.Reason)
		}
	}
	req.SessionRotationCount++
	if req.SessionRotationCount > d.cfg.MaxSessionRotations {
		return d.finalizeFailure(taskCtx, sessErr)
	}
	d.reclaim(req, false)
	return nil
}

// retryOrFail is the shared retry-until-max_request_retries path for
// HttpStatusCodeError, ContextPipelineInitializationError, and
// RequestHandlerError/HandlerTimeoutError.
func (d *Dispatcher) retryOrFail(taskCtx *pipeline.Context, err error) error {
	req := taskCtx.Request
	req.RecordRetryReason(crawlerr.Kind(err))
	req.RetryCount++
	if req.RetryCount > req.EffectiveMaxRetries(d.cfg.MaxRequestRetries) {
		return d.finalizeFailure(taskCtx, err)
	}
	d.reclaim(req, false)
	return nil
}

// finalizeFailure runs the failed-request handler (if registered, any
// error from it is fatal), marks the request handled so it leaves the
// in-progress partition, records the failure, and honors
// abort_on_error (spec §4.6.3).
func (d *Dispatcher) finalizeFailure(taskCtx *pipeline.Context, cause error) error {
	if d.cfg.OnFailedRequest != nil {
		if hookErr := d.cfg.OnFailedRequest(taskCtx, cause); hookErr != nil {
			d.markHandledBestEffort(taskCtx.Request)
			return hookErr
		}
	}
	d.markHandledBestEffort(taskCtx.Request)
	d.stats.RecordFailed(taskCtx.Request.RetryCount)
	if d.cfg.AbortOnError {
		d.abortedOnErr.Store(true)
	}
	return nil
}

func (d *Dispatcher) reclaim(req *request.Request, forefront bool) {
	d.rq.Reclaim(req.UniqueKey, forefront)
}

func (d *Dispatcher) markSessionBad(sess *session.Session) {
	if sess != nil {
		sess.MarkBlocked("dispatcher: handler reported a retriable error")
	}
}

func (d *Dispatcher) markHandledBestEffort(req *request.Request) {
	if req == nil {
		return
	}
	d.rq.MarkHandled(req.UniqueKey)
}

func (d *Dispatcher) reportSkipped(req *request.Request, reason string) {
	if d.cfg.OnSkippedRequest != nil {
		d.cfg.OnSkippedRequest(req, reason)
	}
}
