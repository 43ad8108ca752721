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
	"sort"
	"sync"

	"crawlcore/pkg/contract"
)

// MemoryDataset is the default, in-process contract.Dataset: an ordered,
// append-mostly slice of records guarded by one mutex. It is what
// cmd/crawl-demo and the package's own tests use when no durable backend
// is configured.
type MemoryDataset struct {
	mu    sync.RWMutex
	items []map[string]any
}

// NewMemoryDataset returns an empty dataset.
func NewMemoryDataset() *MemoryDataset {
	return &MemoryDataset{}
}

func (d *MemoryDataset) PushData(_ context.Context, items []map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, item := range items {
		d.items = append(d.items, cloneItem(item))
	}
	return nil
}

func (d *MemoryDataset) GetData(_ context.Context, offset, limit int) ([]map[string]any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sliceWindow(d.items, offset, limit), nil
}

func (d *MemoryDataset) IterateItems(_ context.Context, fn func(item map[string]any) bool) error {
	d.mu.RLock()
	items := make([]map[string]any, len(d.items))
	copy(items, d.items)
	d.mu.RUnlock()

	for _, item := range items {
		if !fn(item) {
			break
		}
	}
	return nil
}

func (d *MemoryDataset) WriteToCSV(_ context.Context, w contract.WriteCloser) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return writeItemsAsCSV(w, d.items)
}

func (d *MemoryDataset) WriteToJSON(_ context.Context, w contract.WriteCloser) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return writeItemsAsJSON(w, d.items)
}

// Drop discards every record; the dataset remains usable afterward.
func (d *MemoryDataset) Drop(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = nil
	return nil
}

// Purge is equivalent to Drop for the in-memory backend: there is no
// separate metadata to retain.
func (d *MemoryDataset) Purge(ctx context.Context) error {
	return d.Drop(ctx)
}

func cloneItem(item map[string]any) map[string]any {
	out := make(map[string]any, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

type kvRecord struct {
	content     []byte
	contentType string
}

// MemoryKeyValueStore is the default, in-process contract.KeyValueStore.
type MemoryKeyValueStore struct {
	mu         sync.RWMutex
	values     map[string]kvRecord
	autoSaved  map[string]map[string]any
}

// NewMemoryKeyValueStore returns an empty store.
func NewMemoryKeyValueStore() *MemoryKeyValueStore {
	return &MemoryKeyValueStore{
		values:    make(map[string]kvRecord),
		autoSaved: make(map[string]map[string]any),
	}
}

func (s *MemoryKeyValueStore) GetValue(_ context.Context, key string) ([]byte, string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.values[key]
	if !ok {
		return nil, "", false, nil
	}
	out := make([]byte, len(rec.content))
	copy(out, rec.content)
	return out, rec.contentType, true, nil
}

func (s *MemoryKeyValueStore) SetValue(_ context.Context, key string, content []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(content))
	copy(cp, content)
	s.values[key] = kvRecord{content: cp, contentType: contentType}
	return nil
}

func (s *MemoryKeyValueStore) DeleteValue(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryKeyValueStore) IterateKeys(_ context.Context, fn func(key string) bool) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)

	for _, k := range keys {
		if !fn(k) {
			break
		}
	}
	return nil
}

// GetAutoSavedValue returns the live, mutable map registered under key,
// initializing it from defaultValue on first use. Callers mutate the
// returned map directly; PersistAutoSavedValues is the flush point that
// durable backends use to write it out (a no-op here, since the map is
// already the store of record).
func (s *MemoryKeyValueStore) GetAutoSavedValue(_ context.Context, key string, defaultValue map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.autoSaved[key]; ok {
		return v, nil
	}
	v := cloneItem(defaultValue)
	s.autoSaved[key] = v
	return v, nil
}

func (s *MemoryKeyValueStore) PersistAutoSavedValues(_ context.Context) error {
	return nil
}

func (s *MemoryKeyValueStore) Drop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]kvRecord)
	s.autoSaved = make(map[string]map[string]any)
	return nil
}
