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

func TestRunResultIsEmptyInitially(t *testing.T) {
	rr := NewRunResult()
	if !rr.IsEmpty() {
		t.Fatalf("expected new RunResult to be empty")
	}
}

func TestRunResultAccumulatesAndIsNotEmpty(t *testing.T) {
	rr := NewRunResult()
	rr.AddRequests(AddRequestsCall{Requests: []*Request{New("https://example.com/a", "GET", nil, nil)}})
	rr.PushData(PushDataCall{Payload: []map[string]any{{"x": 1}}})
	rr.SetKeyValue("", "default", "k", []byte("v"), "text/plain")
	if rr.IsEmpty() {
		t.Fatalf("expected non-empty RunResult after recording effects")
	}
	if len(rr.AddRequestsCalls) != 1 || len(rr.PushDataCalls) != 1 {
		t.Fatalf("expected one buffered call of each kind")
	}
	changes := rr.KeyValueStoreChanges()
	writes, ok := changes[[2]string{"", "default"}]
	if !ok || len(writes) != 1 || writes[0].Key != "k" {
		t.Fatalf("expected one buffered kvs write for (\"\",\"default\"), got %v", changes)
	}
}

func TestRunResultSetKeyValueOverwritesSameKey(t *testing.T) {
	rr := NewRunResult()
	rr.SetKeyValue("id1", "", "k", []byte("first"), "text/plain")
	rr.SetKeyValue("id1", "", "k", []byte("second"), "text/plain")
	changes := rr.KeyValueStoreChanges()
	writes := changes[[2]string{"id1", ""}]
	if len(writes) != 1 {
		t.Fatalf("expected a single write per key, got %d", len(writes))
	}
	if string(writes[0].Content) != "second" {
		t.Fatalf("expected last-write-wins, got %q", writes[0].Content)
	}
}
