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

package storage

import (
	"context"
	"testing"
	"time"
)

// fakeRedisCommander is an in-process stand-in for RedisCommander, backed
// by plain maps, so RedisKeyValueStore and its CommitBatch idempotency
// can be exercised without a live server.
type fakeRedisCommander struct {
	values  map[string]string
	markers map[string]bool
	evals   int
}

func newFakeRedisCommander() *fakeRedisCommander {
	return &fakeRedisCommander{values: map[string]string{}, markers: map[string]bool{}}
}

func (f *fakeRedisCommander) Get(_ context.Context, key string) (string, error) {
	return f.values[key], nil
}

func (f *fakeRedisCommander) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.values[key] = value
	return nil
}

func (f *fakeRedisCommander) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

// Eval emulates redisIdemScript: SETNX the marker, then SET the value
// only if the marker was not already present.
func (f *fakeRedisCommander) Eval(_ context.Context, _ string, keys []string, args ...any) (any, error) {
	f.evals++
	valueKey, markerKey := keys[0], keys[1]
	value := args[0].(string)
	if f.markers[markerKey] {
		return int64(0), nil
	}
	f.markers[markerKey] = true
	f.values[valueKey] = value
	return int64(1), nil
}

func TestRedisKeyValueStoreSetGet(t *testing.T) {
	ctx := context.Background()
	cmd := newFakeRedisCommander()
	s := NewRedisKeyValueStore(cmd, time.Hour)

	if err := s.SetValue(ctx, "k", []byte("v"), "text/plain"); err != nil {
		t.Fatalf("SetValue() = %v", err)
	}
	content, contentType, found, err := s.GetValue(ctx, "k")
	if err != nil || !found || string(content) != "v" || contentType != "text/plain" {
		t.Fatalf("GetValue(k) = %q, %q, %v, %v", content, contentType, found, err)
	}
}

func TestRedisKeyValueStoreGetValueMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewRedisKeyValueStore(newFakeRedisCommander(), time.Hour)

	_, _, found, err := s.GetValue(ctx, "missing")
	if err != nil || found {
		t.Fatalf("GetValue(missing) = found=%v, err=%v, want false, nil", found, err)
	}
}

func TestRedisKeyValueStoreDeleteValue(t *testing.T) {
	ctx := context.Background()
	cmd := newFakeRedisCommander()
	s := NewRedisKeyValueStore(cmd, time.Hour)

	_ = s.SetValue(ctx, "k", []byte("v"), "")
	if err := s.DeleteValue(ctx, "k"); err != nil {
		t.Fatalf("DeleteValue() = %v", err)
	}
	if _, _, found, _ := s.GetValue(ctx, "k"); found {
		t.Fatalf("GetValue(k) after delete should not be found")
	}
}

func TestRedisKeyValueStoreCommitBatchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cmd := newFakeRedisCommander()
	s := NewRedisKeyValueStore(cmd, time.Hour)

	entry := CommitEntry{Key: "k", Value: []byte("v1"), CommitID: "commit-1"}
	if err := s.CommitBatch(ctx, []CommitEntry{entry}); err != nil {
		t.Fatalf("CommitBatch() = %v", err)
	}
	// Retry the exact same commit with a different value: must be a no-op.
	retry := CommitEntry{Key: "k", Value: []byte("v2-should-not-apply"), CommitID: "commit-1"}
	if err := s.CommitBatch(ctx, []CommitEntry{retry}); err != nil {
		t.Fatalf("CommitBatch() retry = %v", err)
	}

	content, _, found, err := s.GetValue(ctx, "k")
	if err != nil || !found || string(content) != "v1" {
		t.Fatalf("GetValue(k) = %q, %v, %v, want v1 (retry must not overwrite)", content, found, err)
	}
	if cmd.evals != 2 {
		t.Fatalf("evals = %d, want 2 (both attempts reach the script, only the first applies)", cmd.evals)
	}
}

func TestRedisKeyValueStoreCommitBatchRejectsEmptyCommitID(t *testing.T) {
	ctx := context.Background()
	s := NewRedisKeyValueStore(newFakeRedisCommander(), time.Hour)
	err := s.CommitBatch(ctx, []CommitEntry{{Key: "k", Value: []byte("v")}})
	if err == nil {
		t.Fatalf("CommitBatch() with empty CommitID should error")
	}
}

func TestRedisKeyValueStoreIterateKeysAndDropAreUnsupported(t *testing.T) {
	ctx := context.Background()
	s := NewRedisKeyValueStore(newFakeRedisCommander(), time.Hour)

	if err := s.IterateKeys(ctx, func(string) bool { return true }); err == nil {
		t.Fatalf("IterateKeys() should report unsupported")
	}
	if err := s.Drop(ctx); err == nil {
		t.Fatalf("Drop() should report unsupported")
	}
}
