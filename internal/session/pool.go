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

package session

import (
	"errors"
	"sync"
)

// ErrPoolExhausted is returned by GetSession when the pool is at
// max_pool_size and every session currently in circulation is blocked or
// awaiting eviction.
var ErrPoolExhausted = errors.New("session: pool exhausted, no usable session and at max_pool_size")

// Pool is the Session Pool: mutations are serialized by a single internal
// lock, per spec §5's "Session Pool mutations (acquire/retire) are
// serialized by the pool's internal lock."
type Pool struct {
	mu            sync.Mutex
	maxPoolSize   int
	breakerConfig BreakerConfig
	order         []string
	sessions      map[string]*Session
	next          int
}

// NewPool constructs a Pool bounded at maxPoolSize concurrently-live
// sessions, using DefaultBreakerConfig for early retirement.
func NewPool(maxPoolSize int) *Pool {
	return NewPoolWithBreakerConfig(maxPoolSize, DefaultBreakerConfig)
}

// NewPoolWithBreakerConfig is NewPool with an explicit breaker
// configuration, primarily for tests that want a tight failure threshold.
func NewPoolWithBreakerConfig(maxPoolSize int, cfg BreakerConfig) *Pool {
	if maxPoolSize < 1 {
		maxPoolSize = 1
	}
	return &Pool{
		maxPoolSize:   maxPoolSize,
		breakerConfig: cfg,
		sessions:      make(map[string]*Session),
	}
}

// evictRetiredLocked drops retired sessions with no in-flight references,
// freeing their slot. Must be called with mu held.
func (p *Pool) evictRetiredLocked() {
	kept := p.order[:0]
	for _, id := range p.order {
		s := p.sessions[id]
		if s.IsRetired() && s.refCount() == 0 {
			delete(p.sessions, id)
			continue
		}
		kept = append(kept, id)
	}
	p.order = kept
	if p.next > len(p.order) {
		p.next = 0
	}
}

func (p *Pool) newSessionLocked() *Session {
	id := newID()
	s := newSession(id, p.breakerConfig)
	p.sessions[id] = s
	p.order = append(p.order, id)
	s.Acquire()
	return s
}

// GetSession is get_session(): returns any usable session, round-robin
// over the current pool, creating one if below max_pool_size. Returns
// ErrPoolExhausted if the pool is at capacity and nothing is usable.
func (p *Pool) GetSession() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evictRetiredLocked()

	// Prefer growing the pool up to max_pool_size over reusing an
	// existing session, so the pool accumulates distinct identities
	// before it starts recycling any one of them.
	if len(p.order) < p.maxPoolSize {
		return p.newSessionLocked(), nil
	}

	for i := 0; i < len(p.order); i++ {
		idx := (p.next + i) % len(p.order)
		s := p.sessions[p.order[idx]]
		if s.IsUsable() {
			p.next = (idx + 1) % len(p.order)
			s.Acquire()
			return s, nil
		}
	}
	return nil, ErrPoolExhausted
}

// GetSessionByID is get_session_by_id(id): returns the session with that
// id if it is still tracked by the pool (usable, blocked, or retired but
// still referenced), or nil.
func (p *Pool) GetSessionByID(id string) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[id]
}

// RetireSession retires the session with the given id, if tracked. Safe to
// call on an unknown or already-retired id.
func (p *Pool) RetireSession(id, reason string) {
	p.mu.Lock()
	s, ok := p.sessions[id]
	p.mu.Unlock()
	if !ok {
		return
	}
	s.Retire(reason)
	p.mu.Lock()
	p.evictRetiredLocked()
	p.mu.Unlock()
}

// ResetStore is reset_store(): drops every tracked session unconditionally
// (the scoped __enter__/__exit__-equivalent lifecycle boundary).
func (p *Pool) ResetStore() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = make(map[string]*Session)
	p.order = nil
	p.next = 0
}

// Size returns the number of sessions currently tracked, including
// retired-but-still-referenced ones.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}
