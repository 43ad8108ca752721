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

package dispatcher

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// internalIODelay and internalIOMaxTries implement spec §5's "every
// RQ/KVS/session call the Dispatcher performs is wrapped with
// wait_for(timeout=internal_timeout, max_retries=3)" and Design Notes'
// "bounded retry with constant-ish delay and a max of three attempts; no
// jitter required for correctness".
const (
	internalIODelay    = 50 * time.Millisecond
	internalIOMaxTries = 3
)

// withInternalIO wraps a fallible internal I/O call (an RQ/KVS/session
// operation) with Config.InternalTimeout and a bounded constant-delay
// retry, mirroring the teacher's deliberately simple, non-jittered retry
// discipline.
func withInternalIO[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return backoff.Retry(cctx, func() (T, error) {
		return op(cctx)
	}, backoff.WithBackOff(backoff.NewConstantBackOff(internalIODelay)), backoff.WithMaxTries(internalIOMaxTries))
}

// withInternalIOVoid is withInternalIO for calls with no useful result.
func withInternalIOVoid(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	_, err := withInternalIO(ctx, timeout, func(c context.Context) (struct{}, error) {
		return struct{}{}, op(c)
	})
	return err
}
