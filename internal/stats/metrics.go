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

package stats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics — exported once per process, mirroring prom_counters.go's
// "global, registered once in init()" style. retryAttemptsTotal and
// errorsTotal carry a label because the cardinality they see is bounded by
// max_request_retries and the small crawlerr taxonomy, not by request
// identity.
var (
	requestsFinishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawlcore_requests_finished_total",
		Help: "Total requests that completed their handler successfully",
	})
	requestsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawlcore_requests_failed_total",
		Help: "Total requests that exhausted retries/rotations and were marked failed",
	})
	requestDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawlcore_request_duration_seconds",
		Help:    "Wall-clock duration of a single successful fetch+pipeline+handler attempt",
		Buckets: prometheus.DefBuckets,
	})
	retryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlcore_retry_attempts_total",
		Help: "Requests bucketed by the number of retries consumed before their terminal outcome",
	}, []string{"attempt"})
	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlcore_errors_total",
		Help: "Classified handler/pipeline errors by kind, per crawlerr.Kind",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(requestsFinishedTotal, requestsFailedTotal, requestDurationSeconds, retryAttemptsTotal, errorsTotal)
}

func attemptLabel(attempt int) string { return strconv.Itoa(attempt) }
