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

// IdemShim adapts any Committer to a plain single-value Set call,
// minting a fresh CommitID per call. It is the bridge use_state's
// locked slot (spec §4.9) writes through when the caller has no
// already-stable retry id of its own to supply.
//
// In production you should prefer a stable id across retries (derived
// from the slot key and a monotonic sequence, say); a freshly minted id
// per call is only safe when the caller itself does not retry the same
// logical write, which holds for use_state's write-behind flush.
type IdemShim struct {
	impl Committer
}

// NewIdemShim wraps impl.
func NewIdemShim(impl Committer) *IdemShim { return &IdemShim{impl: impl} }

// Set writes key=content through the wrapped Committer under a fresh
// commit id.
func (s *IdemShim) Set(ctx context.Context, key string, content []byte, contentType string) error {
	entry := CommitEntry{Key: key, Value: content, ContentType: contentType, CommitID: newCommitID()}
	return s.impl.CommitBatch(ctx, []CommitEntry{entry})
}
