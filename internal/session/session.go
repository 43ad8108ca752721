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

// Package session implements the Session Pool (spec §4.3): a bounded set
// of reusable, health-tracked identities assigned to requests for their
// handler execution. Each Session additionally wraps a sony/gobreaker
// circuit breaker that trips and forces early retirement after a run of
// consecutive SessionErrors, giving the pool a cheaper signal than waiting
// for the crawler-wide max_session_rotations budget to exhaust.
package session

import (
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the per-session circuit breaker.
type BreakerConfig struct {
	// ConsecutiveFailureThreshold is how many consecutive SessionErrors
	// trip the breaker to open (forced retirement).
	ConsecutiveFailureThreshold uint32
	// Window is the rolling interval gobreaker uses to reset its
	// consecutive-failure counter between trips.
	Window time.Duration
	// OpenTimeout is how long the breaker stays open before allowing a
	// half-open probe; irrelevant here since an open breaker retires the
	// session outright, but gobreaker.Settings requires a value.
	OpenTimeout time.Duration
}

// DefaultBreakerConfig matches the Design Notes guidance: three
// consecutive blocks within a one-minute window force retirement.
var DefaultBreakerConfig = BreakerConfig{
	ConsecutiveFailureThreshold: 3,
	Window:                      time.Minute,
	OpenTimeout:                 30 * time.Second,
}

// Session is a reusable, health-tracked identity assigned to a Request for
// its handler execution. It implements contract.SessionLike.
type Session struct {
	id        string
	createdAt time.Time
	cookieJar http.CookieJar

	blocked atomic.Bool
	retired atomic.Bool
	usages  atomic.Int64
	inFlight atomic.Int64

	mu            sync.Mutex
	blockedReason string

	breaker *gobreaker.CircuitBreaker
}

func newSession(id string, cfg BreakerConfig) *Session {
	jar, _ := cookiejar.New(nil)
	s := &Session{id: id, createdAt: time.Now(), cookieJar: jar}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        id,
		MaxRequests: 1,
		Interval:    cfg.Window,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				s.retireLocked("circuit_breaker_open")
			}
		},
	})
	return s
}

func (s *Session) retireLocked(reason string) {
	s.mu.Lock()
	s.blockedReason = reason
	s.mu.Unlock()
	s.retired.Store(true)
}

// ID satisfies contract.SessionLike.
func (s *Session) ID() string { return s.id }

// IsUsable reports whether the session may still be handed out: neither
// blocked nor retired.
func (s *Session) IsUsable() bool {
	return !s.blocked.Load() && !s.retired.Load()
}

// IsRetired reports whether the session has been permanently removed from
// circulation (but may still be referenced by in-flight contexts).
func (s *Session) IsRetired() bool { return s.retired.Load() }

// BlockedReason returns the reason the session was last blocked or
// retired, or "" if it has never been.
func (s *Session) BlockedReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockedReason
}

// CookieJar returns the session's cookie jar, shared across every request
// handled under this session.
func (s *Session) CookieJar() http.CookieJar { return s.cookieJar }

// MarkBlocked flags the session as blocked (e.g. a 403/429 response)
// without necessarily retiring it; the Dispatcher decides whether a block
// escalates to retirement.
func (s *Session) MarkBlocked(reason string) {
	s.mu.Lock()
	s.blockedReason = reason
	s.mu.Unlock()
	s.blocked.Store(true)
}

// Retire permanently removes the session from circulation.
func (s *Session) Retire(reason string) {
	s.retireLocked(reason)
}

// RecordSessionError feeds one SessionError occurrence to the circuit
// breaker. A run of ConsecutiveFailureThreshold such calls trips the
// breaker and retires the session (see OnStateChange above).
func (s *Session) RecordSessionError(cause error) {
	_, _ = s.breaker.Execute(func() (any, error) { return nil, cause })
}

// RecordSuccess resets the breaker's consecutive-failure streak.
func (s *Session) RecordSuccess() {
	_, _ = s.breaker.Execute(func() (any, error) { return nil, nil })
}

// Acquire pins the session as referenced by an in-flight context; Release
// unpins it. The pool only reclaims a retired session's slot once its
// reference count returns to zero, matching spec §4.3's "may still be
// referenced by in-flight contexts until their tasks complete".
func (s *Session) Acquire() {
	s.usages.Add(1)
	s.inFlight.Add(1)
}

// Release unpins one in-flight reference acquired by Acquire.
func (s *Session) Release() { s.inFlight.Add(-1) }

func (s *Session) refCount() int64 { return s.inFlight.Load() }

// Usages returns how many times this session has been handed out by the
// pool, for statistics.
func (s *Session) Usages() int64 { return s.usages.Load() }

// newID generates a fresh session identifier.
func newID() string { return uuid.NewString() }
