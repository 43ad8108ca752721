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

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics are global, not per-instance: a process hosts one
// Request Queue and unbounded per-shard labels would only add cardinality
// without insight.
var (
	addedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawlcore_queue_added_total",
		Help: "Total requests newly accepted by add_batch",
	})
	alreadyPresentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawlcore_queue_already_present_total",
		Help: "Total add_batch requests rejected because unique_key was already pending or in-progress",
	})
	alreadyHandledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawlcore_queue_already_handled_total",
		Help: "Total add_batch requests rejected because unique_key was already handled",
	})
	fetchNextTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawlcore_queue_fetch_next_total",
		Help: "Total successful fetch_next calls",
	})
	markHandledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawlcore_queue_mark_handled_total",
		Help: "Total successful mark_handled transitions",
	})
	reclaimTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawlcore_queue_reclaim_total",
		Help: "Total in-progress requests reclaimed back to pending",
	})
	leaseExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawlcore_queue_lease_expired_total",
		Help: "Total in-progress requests reclaimed by the lease reaper after their lease expired",
	})
	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crawlcore_queue_pending",
		Help: "Current number of pending (unleased) requests across all shards",
	})
	inProgressGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crawlcore_queue_in_progress",
		Help: "Current number of leased (in-progress) requests across all shards",
	})
	handledGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crawlcore_queue_handled",
		Help: "Current number of handled requests tracked in memory across all shards",
	})
)

func init() {
	prometheus.MustRegister(
		addedTotal, alreadyPresentTotal, alreadyHandledTotal,
		fetchNextTotal, markHandledTotal, reclaimTotal, leaseExpiredTotal,
		pendingGauge, inProgressGauge, handledGauge,
	)
}
