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
	"os"
	"os/signal"
	"syscall"

	"crawlcore/pkg/request"
)

// Run is the Crawler Dispatcher's run() (spec §4.6 steps 1-3): it starts
// every scoped collaborator, seeds the Request Queue with initialRequests,
// drives the Autoscaled Pool until the run converges, and tears everything
// down in reverse order. A first SIGINT/SIGTERM stops accepting new work
// and cancels the driving context so in-flight tasks see cancellation; a
// second forces the process to exit rather than wait out a stuck handler.
func (d *Dispatcher) Run(ctx context.Context, initialRequests []*request.Request) error {
	// 1. Setup: bring up every scoped resource before any task can run.
	d.stats.Start()
	d.rq.Start()
	d.pool.Start()
	if d.state != nil {
		d.state.Start(d.cfg.PersistStateInterval)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			d.log.Info("interrupt received, stopping (second interrupt forces exit)")
			d.Stop("interrupt")
			cancel()
		case <-runCtx.Done():
			return
		}
		select {
		case <-sigCh:
			d.log.Info("second interrupt received, forcing exit")
			os.Exit(1)
		case <-runCtx.Done():
		}
	}()

	// 2. Seed: hand the first batch of requests to the queue. purge_on_start
	// asks for the default RQ to be dropped and reopened before seeding;
	// the Request Queue collaborator has no such reset primitive (it is a
	// long-lived, externally-owned object shared across Dispatcher.New
	// calls), so a second Run on an already-started Dispatcher with
	// PurgeOnStart set is a documented no-op rather than a silent partial
	// purge (see DESIGN.md).
	if d.cfg.PurgeOnStart && d.startedOnce.Load() {
		d.log.Info("purge_on_start requested on a reused dispatcher but the Request Queue has no purge primitive; continuing without purging")
	}
	d.startedOnce.Store(true)
	if len(initialRequests) > 0 {
		d.rq.AddBatch(initialRequests, false)
	}

	// 3. Drive the Autoscaled Pool.
	d.pool.Run(runCtx, d.isTaskReady, d.runTask, d.isFinished)

	// Teardown, reverse of setup.
	if d.state != nil {
		d.state.Stop(ctx)
	}
	d.pool.Stop()
	d.rq.Stop()
	d.stats.Stop()

	snap := d.stats.Snapshot()
	d.log.Info("run finished",
		"stop_reason", d.StopReason(),
		"requests_finished", snap.RequestsFinished,
		"requests_failed", snap.RequestsFailed,
	)

	return d.FatalErr()
}

// isTaskReady is is_task_ready(): false once stopped, aborted, or the
// max_requests_per_crawl ceiling is reached, so the pool stops picking up
// new work while letting already-leased tasks finish.
func (d *Dispatcher) isTaskReady() bool {
	if d.stopped.Load() || d.abortedOnErr.Load() {
		return false
	}
	if d.cfg.MaxRequestsPerCrawl > 0 && d.requestsDone.Load() >= int64(d.cfg.MaxRequestsPerCrawl) {
		return false
	}
	return !d.rq.IsEmpty()
}

// isFinished is is_finished(): once stopped/aborted/max-reached, the run
// converges as soon as no task is currently leased, even if unfetched
// pending items remain (they are deliberately left unprocessed). Absent
// any of those, keep_alive suppresses the normal empty-queue convergence so
// a handler's later add_requests can resume the run; without keep_alive,
// convergence is the Request Queue's own is_finished().
func (d *Dispatcher) isFinished() bool {
	if d.stopped.Load() || d.abortedOnErr.Load() {
		return d.rq.Metadata().InProgress == 0
	}
	if d.cfg.MaxRequestsPerCrawl > 0 && d.requestsDone.Load() >= int64(d.cfg.MaxRequestsPerCrawl) {
		return d.rq.Metadata().InProgress == 0
	}
	if d.cfg.KeepAlive {
		return false
	}
	return d.rq.IsFinished()
}
