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

// Package crawlerr defines the typed error taxonomy the dispatcher
// classifies on: network/protocol errors, pipeline structural errors,
// policy errors, and the two fatal kinds (user error-handler failure and
// anything else). Each wrapping kind implements Unwrap so callers can use
// errors.As to recover the original cause.
package crawlerr

import "fmt"

// SessionError indicates the session used for a request is blocked or
// otherwise suspicious; the Dispatcher retires the session and reclaims
// the request (§4.6 decision table).
type SessionError struct {
	Reason string
	Cause  error
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session error: %s: %v", e.Reason, e.Cause)
	}
	return "session error: " + e.Reason
}

func (e *SessionError) Unwrap() error { return e.Cause }

// HttpStatusCodeError covers 5xx responses, or any status the caller has
// additionally configured as an error (additional_http_error_status_codes).
// It is retried until max_request_retries.
type HttpStatusCodeError struct {
	StatusCode int
	URL        string
}

func (e *HttpStatusCodeError) Error() string {
	return fmt.Sprintf("http status code error: %d for %s", e.StatusCode, e.URL)
}

// HttpClientStatusCodeError covers 4xx responses; it is not retried.
type HttpClientStatusCodeError struct {
	StatusCode int
	URL        string
}

func (e *HttpClientStatusCodeError) Error() string {
	return fmt.Sprintf("http client status code error: %d for %s", e.StatusCode, e.URL)
}

// ContextPipelineInitializationError wraps a panic/error raised during a
// middleware's setup stage. CtxSoFar is whatever partial context had been
// built by earlier middlewares.
type ContextPipelineInitializationError struct {
	WrappedException error
	CtxSoFar         any
}

func (e *ContextPipelineInitializationError) Error() string {
	return fmt.Sprintf("context pipeline initialization error: %v", e.WrappedException)
}

func (e *ContextPipelineInitializationError) Unwrap() error { return e.WrappedException }

// ContextPipelineInterruptedError signals a middleware wants the request
// silently dropped (marked handled, not failed) during setup.
type ContextPipelineInterruptedError struct {
	Reason string
}

func (e *ContextPipelineInterruptedError) Error() string {
	return "context pipeline interrupted: " + e.Reason
}

// ContextPipelineFinalizationError wraps a panic/error raised during a
// middleware's cleanup stage.
type ContextPipelineFinalizationError struct {
	WrappedException error
	CtxAtCleanup      any
}

func (e *ContextPipelineFinalizationError) Error() string {
	return fmt.Sprintf("context pipeline finalization error: %v", e.WrappedException)
}

func (e *ContextPipelineFinalizationError) Unwrap() error { return e.WrappedException }

// RequestHandlerError wraps a panic/error raised by the user's request
// handler together with the final context it was given.
type RequestHandlerError struct {
	WrappedException error
	FinalCtx         any
}

func (e *RequestHandlerError) Error() string {
	return fmt.Sprintf("request handler error: %v", e.WrappedException)
}

func (e *RequestHandlerError) Unwrap() error { return e.WrappedException }

// RequestCollisionError indicates a Request was bound to session_id=S but
// S is no longer available to the dispatching worker.
type RequestCollisionError struct {
	SessionID string
}

func (e *RequestCollisionError) Error() string {
	return "request collision: bound session " + e.SessionID + " is unavailable"
}

// UserDefinedErrorHandlerError indicates the user's error handler itself
// raised; this is fatal and terminates the run.
type UserDefinedErrorHandlerError struct {
	WrappedException error
}

func (e *UserDefinedErrorHandlerError) Error() string {
	return fmt.Sprintf("user-defined error handler failed: %v", e.WrappedException)
}

func (e *UserDefinedErrorHandlerError) Unwrap() error { return e.WrappedException }

// HandlerTimeoutError marks a request-handler invocation that exceeded
// request_handler_timeout; the Dispatcher treats it the same as a
// RequestHandlerError once classified (§4.6 decision table).
type HandlerTimeoutError struct {
	Timeout string
}

func (e *HandlerTimeoutError) Error() string {
	return "request handler timed out after " + e.Timeout
}

// Kind returns a short, stable label for a classified error, used for
// statistics and Request.RetryReasonHistory. Unrecognized errors return
// "fatal".
func Kind(err error) string {
	switch err.(type) {
	case *HttpClientStatusCodeError:
		return "http_client_status_code_error"
	case *HttpStatusCodeError:
		return "http_status_code_error"
	case *SessionError:
		return "session_error"
	case *RequestCollisionError:
		return "request_collision_error"
	case *ContextPipelineInterruptedError:
		return "context_pipeline_interrupted_error"
	case *ContextPipelineInitializationError:
		return "context_pipeline_initialization_error"
	case *RequestHandlerError:
		return "request_handler_error"
	case *UserDefinedErrorHandlerError:
		return "user_defined_error_handler_error"
	case *HandlerTimeoutError:
		return "handler_timeout_error"
	case *ContextPipelineFinalizationError:
		return "context_pipeline_finalization_error"
	default:
		return "fatal"
	}
}
