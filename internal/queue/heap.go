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

package queue

import "crawlcore/pkg/request"

// pendingEntry is one pending item within a shard's ordering heap.
type pendingEntry struct {
	seq       int64
	uniqueKey string
	req       *request.Request
	index     int
}

// pendingHeap orders pendingEntry values by ascending sequence number, so
// the root is always the next item fetch_next should hand out. Forefront
// insertions get sequence numbers <= 0, which sort before the positive
// ones (starting at 1) assigned to ordinary appends.
type pendingHeap []*pendingEntry

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool { return h[i].seq < h[j].seq }

func (h pendingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *pendingHeap) Push(x any) {
	pe := x.(*pendingEntry)
	pe.index = len(*h)
	*h = append(*h, pe)
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	pe := old[n-1]
	old[n-1] = nil
	pe.index = -1
	*h = old[:n-1]
	return pe
}
