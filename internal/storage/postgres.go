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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crawlcore/pkg/contract"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS dataset_items (
//   dataset    TEXT NOT NULL,
//   commit_id  TEXT PRIMARY KEY,
//   seq        BIGSERIAL,
//   payload    JSONB NOT NULL,
//   created_at TIMESTAMPTZ NOT NULL DEFAULT now()
// );
// CREATE INDEX IF NOT EXISTS idx_dataset_items_dataset_seq ON dataset_items(dataset, seq);

// PostgresDataset is a durable contract.Dataset over a *sql.DB. No driver
// is imported here — exactly as the teacher's PostgresPersister never
// imports a driver — so callers wire in pgx, lib/pq, or any other
// database/sql driver of their choosing.
type PostgresDataset struct {
	db             *sql.DB
	name           string
	defaultTimeout time.Duration
}

// NewPostgresDataset returns a dataset scoped to the given logical name
// (its rows are filtered by dataset=name).
func NewPostgresDataset(db *sql.DB, name string) *PostgresDataset {
	return &PostgresDataset{db: db, name: name, defaultTimeout: 10 * time.Second}
}

func (d *PostgresDataset) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok || d.defaultTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.defaultTimeout)
}

// PushData inserts each item idempotently: every row carries a freshly
// generated commit id, and ON CONFLICT DO NOTHING makes a retried insert
// of the same row (same commit id) a no-op, mirroring the teacher's
// applied_commits guard.
func (d *PostgresDataset) PushData(ctx context.Context, items []map[string]any) error {
	if len(items) == 0 {
		return nil
	}
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("storage: postgres begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("storage: postgres marshal item: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dataset_items(dataset, commit_id, payload) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			d.name, newCommitID(), payload); err != nil {
			return fmt.Errorf("storage: postgres insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: postgres commit: %w", err)
	}
	return nil
}

func (d *PostgresDataset) GetData(ctx context.Context, offset, limit int) ([]map[string]any, error) {
	query := `SELECT payload FROM dataset_items WHERE dataset = $1 ORDER BY seq OFFSET $2`
	args := []any{d.name, offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: postgres select: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("storage: postgres scan: %w", err)
		}
		var item map[string]any
		if err := json.Unmarshal(payload, &item); err != nil {
			return nil, fmt.Errorf("storage: postgres decode: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (d *PostgresDataset) IterateItems(ctx context.Context, fn func(item map[string]any) bool) error {
	rows, err := d.db.QueryContext(ctx, `SELECT payload FROM dataset_items WHERE dataset = $1 ORDER BY seq`, d.name)
	if err != nil {
		return fmt.Errorf("storage: postgres select: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("storage: postgres scan: %w", err)
		}
		var item map[string]any
		if err := json.Unmarshal(payload, &item); err != nil {
			return fmt.Errorf("storage: postgres decode: %w", err)
		}
		if !fn(item) {
			break
		}
	}
	return rows.Err()
}

func (d *PostgresDataset) WriteToCSV(ctx context.Context, w contract.WriteCloser) error {
	items, err := d.GetData(ctx, 0, 0)
	if err != nil {
		return err
	}
	return writeItemsAsCSV(w, items)
}

func (d *PostgresDataset) WriteToJSON(ctx context.Context, w contract.WriteCloser) error {
	items, err := d.GetData(ctx, 0, 0)
	if err != nil {
		return err
	}
	return writeItemsAsJSON(w, items)
}

func (d *PostgresDataset) Drop(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM dataset_items WHERE dataset = $1`, d.name)
	if err != nil {
		return fmt.Errorf("storage: postgres drop: %w", err)
	}
	return nil
}

// Purge is equivalent to Drop: the dataset table carries no separate
// metadata row to preserve across a purge.
func (d *PostgresDataset) Purge(ctx context.Context) error {
	return d.Drop(ctx)
}

// CommitBatch implements Committer directly against caller-supplied
// commit ids (unlike PushData, which mints its own), for use_state's
// locked-slot persistence (spec §4.9) where the caller already has a
// stable retry id.
func (d *PostgresDataset) CommitBatch(ctx context.Context, entries []CommitEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("storage: postgres begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		if e.CommitID == "" {
			return errors.New("storage: CommitEntry.CommitID must be set")
		}
		payload, err := json.Marshal(map[string]any{"key": e.Key, "value": e.Value, "content_type": e.ContentType})
		if err != nil {
			return fmt.Errorf("storage: postgres marshal commit: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dataset_items(dataset, commit_id, payload) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			d.name, e.CommitID, payload); err != nil {
			return fmt.Errorf("storage: postgres commit insert(%s): %w", e.CommitID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: postgres commit: %w", err)
	}
	return nil
}
