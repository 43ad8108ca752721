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

// Package storage provides reference implementations of
// crawlcore/pkg/contract.Dataset and contract.KeyValueStore: an
// in-process default, a file-backed default, and durable adapters over
// Redis, Postgres, and Kafka, mirroring the idempotent-persistence shapes
// the core's storage contracts were modeled on.
package storage

import (
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"crawlcore/pkg/contract"
)

// newCommitID returns a fresh random idempotency key, following the
// convention that every retried write carries a stable id so a backend can
// recognize and skip a duplicate application.
func newCommitID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	dst := make([]byte, 32)
	hex.Encode(dst, b[:])
	return string(dst)
}

// writeItemsAsJSON writes items as a single JSON array, the shared
// implementation behind every Dataset.WriteToJSON.
func writeItemsAsJSON(w contract.WriteCloser, items []map[string]any) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("storage: write json: %w", err)
	}
	return nil
}

// writeItemsAsCSV writes items as CSV with a header row derived from the
// union of keys across all items (sorted for determinism), the shared
// implementation behind every Dataset.WriteToCSV.
func writeItemsAsCSV(w contract.WriteCloser, items []map[string]any) error {
	header := csvHeader(items)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("storage: write csv header: %w", err)
	}
	for _, item := range items {
		row := make([]string, len(header))
		for i, key := range header {
			if v, ok := item[key]; ok {
				row[i] = fmt.Sprintf("%v", v)
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("storage: write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvHeader(items []map[string]any) []string {
	seen := make(map[string]struct{})
	for _, item := range items {
		for k := range item {
			seen[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(seen))
	for k := range seen {
		header = append(header, k)
	}
	sort.Strings(header)
	return header
}

// sliceWindow applies the Dataset.GetData offset/limit convention: offset
// clamps to the slice length, and limit<=0 means "everything from offset".
func sliceWindow(items []map[string]any, offset, limit int) []map[string]any {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]map[string]any, end-offset)
	copy(out, items[offset:end])
	return out
}
