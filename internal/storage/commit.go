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

import "context"

// CommitEntry is the idempotent-write shape every durable backend in this
// package accepts: a logical Key, the Value to store, and a CommitID that
// makes re-applying the same write (after a crash, a timeout, a duplicate
// delivery) a no-op.
type CommitEntry struct {
	Key         string
	Value       []byte
	ContentType string
	CommitID    string
}

// Committer is the minimal idempotent-write API a durable backend
// supports. A backend need not implement Committer to satisfy
// contract.KeyValueStore; it only does so when its writes can be made
// safe to retry (Redis via a Lua marker, Postgres via ON CONFLICT DO
// NOTHING, Kafka via an idempotent producer keyed by CommitID).
type Committer interface {
	CommitBatch(ctx context.Context, entries []CommitEntry) error
}
