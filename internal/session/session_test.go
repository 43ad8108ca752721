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
	"testing"
)

// S4 — Session rotation on block. Pool size = 1; the handler always
// raises SessionError and the Dispatcher retires the current session
// after every failure, forcing a rotation. Expect exactly 7 distinct
// session ids observed.
func TestSessionRotationOnRepeatedSessionError(t *testing.T) {
	p := NewPool(1)
	seen := make(map[string]bool)
	for i := 0; i < 7; i++ {
		s, err := p.GetSession()
		if err != nil {
			t.Fatalf("GetSession() attempt %d: %v", i, err)
		}
		seen[s.ID()] = true
		s.RecordSessionError(errors.New("blocked"))
		p.RetireSession(s.ID(), "session_error")
		s.Release()
	}
	if len(seen) != 7 {
		t.Fatalf("expected 7 distinct session ids, got %d: %v", len(seen), seen)
	}
}

func TestCircuitBreakerAutoRetiresAfterConsecutiveFailures(t *testing.T) {
	p := NewPoolWithBreakerConfig(2, BreakerConfig{ConsecutiveFailureThreshold: 3, Window: 0, OpenTimeout: 0})
	s, err := p.GetSession()
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !s.IsUsable() {
		t.Fatalf("freshly created session should be usable")
	}
	for i := 0; i < 3; i++ {
		s.RecordSessionError(errors.New("blocked"))
	}
	if s.IsUsable() {
		t.Fatalf("expected session to auto-retire after 3 consecutive SessionErrors")
	}
	if !s.IsRetired() {
		t.Fatalf("expected IsRetired() to be true")
	}
}

func TestRecordSuccessResetsConsecutiveFailureStreak(t *testing.T) {
	s := newSession("s1", BreakerConfig{ConsecutiveFailureThreshold: 2, Window: 0, OpenTimeout: 0})
	s.RecordSessionError(errors.New("x"))
	s.RecordSuccess()
	s.RecordSessionError(errors.New("x"))
	if s.IsRetired() {
		t.Fatalf("success between two failures should have reset the consecutive-failure streak")
	}
}

func TestGetSessionByIDFindsTrackedSession(t *testing.T) {
	p := NewPool(2)
	s, _ := p.GetSession()
	got := p.GetSessionByID(s.ID())
	if got == nil || got.ID() != s.ID() {
		t.Fatalf("expected GetSessionByID to find %q, got %+v", s.ID(), got)
	}
	if p.GetSessionByID("does-not-exist") != nil {
		t.Fatalf("expected nil for an unknown id")
	}
}

func TestPoolExhaustedWhenAtCapacityAndBlocked(t *testing.T) {
	p := NewPool(1)
	s, err := p.GetSession()
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	s.MarkBlocked("429")

	if _, err := p.GetSession(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
}

func TestResetStoreDropsAllSessions(t *testing.T) {
	p := NewPool(3)
	p.GetSession()
	p.GetSession()
	if p.Size() == 0 {
		t.Fatalf("expected sessions before reset")
	}
	p.ResetStore()
	if p.Size() != 0 {
		t.Fatalf("expected 0 sessions after ResetStore, got %d", p.Size())
	}
}

func TestGetSessionCreatesUpToMaxPoolSize(t *testing.T) {
	p := NewPool(2)
	a, _ := p.GetSession()
	b, _ := p.GetSession()
	if a.ID() == b.ID() {
		t.Fatalf("expected two distinct sessions up to max_pool_size")
	}
	if p.Size() != 2 {
		t.Fatalf("expected pool size 2, got %d", p.Size())
	}
}
