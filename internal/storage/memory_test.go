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
	"bytes"
	"context"
	"strings"
	"testing"
)

type closeBuffer struct{ bytes.Buffer }

func (c *closeBuffer) Close() error { return nil }

func TestMemoryDatasetPushAndGetData(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDataset()
	if err := d.PushData(ctx, []map[string]any{{"id": 1}, {"id": 2}, {"id": 3}}); err != nil {
		t.Fatalf("PushData() = %v", err)
	}

	got, err := d.GetData(ctx, 1, 1)
	if err != nil {
		t.Fatalf("GetData() = %v", err)
	}
	if len(got) != 1 || got[0]["id"] != 2 {
		t.Fatalf("GetData(1,1) = %v, want [{id:2}]", got)
	}

	all, err := d.GetData(ctx, 0, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("GetData(0,0) = %v, %v, want 3 items", all, err)
	}
}

func TestMemoryDatasetGetDataOffsetPastEndIsEmpty(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDataset()
	_ = d.PushData(ctx, []map[string]any{{"id": 1}})
	got, err := d.GetData(ctx, 5, 10)
	if err != nil || len(got) != 0 {
		t.Fatalf("GetData(5,10) = %v, %v, want empty", got, err)
	}
}

func TestMemoryDatasetIterateItemsStopsEarly(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDataset()
	_ = d.PushData(ctx, []map[string]any{{"id": 1}, {"id": 2}, {"id": 3}})

	var seen []any
	err := d.IterateItems(ctx, func(item map[string]any) bool {
		seen = append(seen, item["id"])
		return len(seen) < 2
	})
	if err != nil {
		t.Fatalf("IterateItems() = %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("seen = %v, want 2 items (stopped early)", seen)
	}
}

func TestMemoryDatasetWriteToJSON(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDataset()
	_ = d.PushData(ctx, []map[string]any{{"id": 1}})

	var buf closeBuffer
	if err := d.WriteToJSON(ctx, &buf); err != nil {
		t.Fatalf("WriteToJSON() = %v", err)
	}
	if !strings.Contains(buf.String(), `"id":1`) {
		t.Fatalf("WriteToJSON() output = %q, want it to contain id:1", buf.String())
	}
}

func TestMemoryDatasetWriteToCSVIncludesHeaderAndRows(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDataset()
	_ = d.PushData(ctx, []map[string]any{{"a": 1, "b": "x"}, {"a": 2}})

	var buf closeBuffer
	if err := d.WriteToCSV(ctx, &buf); err != nil {
		t.Fatalf("WriteToCSV() = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("WriteToCSV() lines = %v, want header + 2 rows", lines)
	}
	if lines[0] != "a,b" {
		t.Fatalf("header = %q, want sorted a,b", lines[0])
	}
}

func TestMemoryDatasetDropClearsItems(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDataset()
	_ = d.PushData(ctx, []map[string]any{{"id": 1}})
	if err := d.Drop(ctx); err != nil {
		t.Fatalf("Drop() = %v", err)
	}
	got, _ := d.GetData(ctx, 0, 0)
	if len(got) != 0 {
		t.Fatalf("GetData() after Drop = %v, want empty", got)
	}
	// Dataset remains usable after Drop.
	if err := d.PushData(ctx, []map[string]any{{"id": 2}}); err != nil {
		t.Fatalf("PushData() after Drop = %v", err)
	}
}

func TestMemoryDatasetPushDataCopiesItems(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDataset()
	item := map[string]any{"id": 1}
	_ = d.PushData(ctx, []map[string]any{item})
	item["id"] = 999

	got, _ := d.GetData(ctx, 0, 0)
	if got[0]["id"] != 1 {
		t.Fatalf("GetData()[0][id] = %v, want 1 (mutating the caller's map must not affect the stored copy)", got[0]["id"])
	}
}

func TestMemoryKeyValueStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryKeyValueStore()

	if _, _, found, err := s.GetValue(ctx, "missing"); err != nil || found {
		t.Fatalf("GetValue(missing) = found=%v, err=%v, want false, nil", found, err)
	}
	if err := s.SetValue(ctx, "k", []byte("v"), "text/plain"); err != nil {
		t.Fatalf("SetValue() = %v", err)
	}
	content, contentType, found, err := s.GetValue(ctx, "k")
	if err != nil || !found || string(content) != "v" || contentType != "text/plain" {
		t.Fatalf("GetValue(k) = %q, %q, %v, %v, want v, text/plain, true, nil", content, contentType, found, err)
	}
	if err := s.DeleteValue(ctx, "k"); err != nil {
		t.Fatalf("DeleteValue() = %v", err)
	}
	if _, _, found, _ := s.GetValue(ctx, "k"); found {
		t.Fatalf("GetValue(k) after delete should not be found")
	}
}

func TestMemoryKeyValueStoreIterateKeysIsSorted(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryKeyValueStore()
	_ = s.SetValue(ctx, "b", nil, "")
	_ = s.SetValue(ctx, "a", nil, "")
	_ = s.SetValue(ctx, "c", nil, "")

	var order []string
	if err := s.IterateKeys(ctx, func(key string) bool {
		order = append(order, key)
		return true
	}); err != nil {
		t.Fatalf("IterateKeys() = %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, k := range want {
		if order[i] != k {
			t.Fatalf("IterateKeys() order = %v, want %v", order, want)
		}
	}
}

func TestMemoryKeyValueStoreGetAutoSavedValueIsLiveAndShared(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryKeyValueStore()

	v1, err := s.GetAutoSavedValue(ctx, "state", map[string]any{"count": 0})
	if err != nil {
		t.Fatalf("GetAutoSavedValue() = %v", err)
	}
	v1["count"] = 5

	v2, err := s.GetAutoSavedValue(ctx, "state", map[string]any{"count": 0})
	if err != nil {
		t.Fatalf("GetAutoSavedValue() second call = %v", err)
	}
	if v2["count"] != 5 {
		t.Fatalf("GetAutoSavedValue() second call count = %v, want 5 (same live map)", v2["count"])
	}
}

func TestMemoryKeyValueStoreDropClearsEverything(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryKeyValueStore()
	_ = s.SetValue(ctx, "k", []byte("v"), "")
	_, _ = s.GetAutoSavedValue(ctx, "state", map[string]any{"count": 1})

	if err := s.Drop(ctx); err != nil {
		t.Fatalf("Drop() = %v", err)
	}
	if _, _, found, _ := s.GetValue(ctx, "k"); found {
		t.Fatalf("GetValue(k) after Drop should not be found")
	}
	v, _ := s.GetAutoSavedValue(ctx, "state", map[string]any{"count": 0})
	if v["count"] != 0 {
		t.Fatalf("GetAutoSavedValue() after Drop = %v, want reset to default", v["count"])
	}
}
