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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"crawlcore/pkg/contract"
)

// FileDataset is a buffered, append-only JSONL contract.Dataset: every
// PushData item becomes one encoded line, flushed periodically so a crash
// loses at most a short window of writes.
type FileDataset struct {
	mu        sync.Mutex
	path      string
	f         *os.File
	w         *bufio.Writer
	lastFlush time.Time
}

// NewFileDataset opens (or creates) path in append mode with a buffered
// writer. Call Close when done.
func NewFileDataset(path string) (*FileDataset, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &FileDataset{
		path:      path,
		f:         f,
		w:         bufio.NewWriterSize(f, 1<<20),
		lastFlush: time.Now(),
	}, nil
}

func (d *FileDataset) PushData(_ context.Context, items []map[string]any) error {
	if len(items) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	enc := json.NewEncoder(d.w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			_ = d.w.Flush()
			if err := enc.Encode(item); err != nil {
				return fmt.Errorf("storage: encode item: %w", err)
			}
		}
	}
	if time.Since(d.lastFlush) > 100*time.Millisecond {
		if err := d.w.Flush(); err != nil {
			return fmt.Errorf("storage: flush: %w", err)
		}
		d.lastFlush = time.Now()
	}
	return nil
}

// Flush forces buffered writes to disk.
func (d *FileDataset) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastFlush = time.Now()
	return d.w.Flush()
}

// Close flushes and closes the underlying file.
func (d *FileDataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.w.Flush()
	return d.f.Close()
}

func (d *FileDataset) readAll() ([]map[string]any, error) {
	d.mu.Lock()
	if err := d.w.Flush(); err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("storage: flush before read: %w", err)
	}
	d.mu.Unlock()

	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", d.path, err)
	}
	defer f.Close()

	var out []map[string]any
	dec := json.NewDecoder(f)
	for dec.More() {
		var item map[string]any
		if err := dec.Decode(&item); err != nil {
			return nil, fmt.Errorf("storage: decode %s: %w", d.path, err)
		}
		out = append(out, item)
	}
	return out, nil
}

func (d *FileDataset) GetData(_ context.Context, offset, limit int) ([]map[string]any, error) {
	items, err := d.readAll()
	if err != nil {
		return nil, err
	}
	return sliceWindow(items, offset, limit), nil
}

func (d *FileDataset) IterateItems(_ context.Context, fn func(item map[string]any) bool) error {
	items, err := d.readAll()
	if err != nil {
		return err
	}
	for _, item := range items {
		if !fn(item) {
			break
		}
	}
	return nil
}

func (d *FileDataset) WriteToCSV(_ context.Context, w contract.WriteCloser) error {
	items, err := d.readAll()
	if err != nil {
		return err
	}
	return writeItemsAsCSV(w, items)
}

func (d *FileDataset) WriteToJSON(_ context.Context, w contract.WriteCloser) error {
	items, err := d.readAll()
	if err != nil {
		return err
	}
	return writeItemsAsJSON(w, items)
}

// Drop truncates the backing file in place.
func (d *FileDataset) Drop(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.w.Flush(); err != nil {
		return fmt.Errorf("storage: flush before drop: %w", err)
	}
	if err := d.f.Truncate(0); err != nil {
		return fmt.Errorf("storage: truncate %s: %w", d.path, err)
	}
	if _, err := d.f.Seek(0, 0); err != nil {
		return fmt.Errorf("storage: seek %s: %w", d.path, err)
	}
	d.w.Reset(d.f)
	return nil
}

// Purge is equivalent to Drop for the file backend.
func (d *FileDataset) Purge(ctx context.Context) error {
	return d.Drop(ctx)
}
