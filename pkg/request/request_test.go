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

package request

import "testing"

func TestNewDerivesStableUniqueKeyAndID(t *testing.T) {
	a := New("https://Example.com:443/path?b=2&a=1", "GET", nil, nil)
	b := New("https://example.com/path?a=1&b=2", "GET", nil, nil)
	if a.UniqueKey != b.UniqueKey {
		t.Fatalf("expected equal unique keys, got %q and %q", a.UniqueKey, b.UniqueKey)
	}
	if a.ID != b.ID {
		t.Fatalf("expected equal ids, got %q and %q", a.ID, b.ID)
	}
}

func TestNewDifferentMethodOrPayloadChangesKey(t *testing.T) {
	get := New("https://example.com/x", "GET", nil, nil)
	post := New("https://example.com/x", "POST", nil, []byte(`{"a":1}`))
	if get.UniqueKey == post.UniqueKey {
		t.Fatalf("expected different unique keys for GET vs POST+payload")
	}
}

func TestCanonicalizeURLStripsFragmentByDefault(t *testing.T) {
	withFrag := CanonicalizeURL("https://example.com/x#section", true)
	withoutFrag := CanonicalizeURL("https://example.com/x", true)
	if withFrag != withoutFrag {
		t.Fatalf("expected fragment-stripped canonicalization to match: %q vs %q", withFrag, withoutFrag)
	}
	kept := CanonicalizeURL("https://example.com/x#section", false)
	if kept == withoutFrag {
		t.Fatalf("expected fragment to be preserved when stripFragment=false")
	}
}

func TestEffectiveMaxRetries(t *testing.T) {
	r := New("https://example.com", "GET", nil, nil)
	if got := r.EffectiveMaxRetries(3); got != 3 {
		t.Fatalf("EffectiveMaxRetries() = %d, want crawler default 3", got)
	}
	override := 7
	r.MaxRetries = &override
	if got := r.EffectiveMaxRetries(3); got != 7 {
		t.Fatalf("EffectiveMaxRetries() = %d, want override 7", got)
	}
}

func TestRecordRetryReasonTrimsHistory(t *testing.T) {
	r := New("https://example.com", "GET", nil, nil)
	for i := 0; i < 20; i++ {
		r.RecordRetryReason("http_status_code_error")
	}
	if len(r.RetryReasonHistory) != maxRetryReasonHistory {
		t.Fatalf("len(RetryReasonHistory) = %d, want %d", len(r.RetryReasonHistory), maxRetryReasonHistory)
	}
}
