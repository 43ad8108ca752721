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

// Package autoscale implements the Autoscaled Pool (spec §4.5): a
// concurrency ceiling sized between min_concurrency and max_concurrency by
// periodic Snapshotter readings, gating a goroutine-per-task scheduler
// driven by three probes supplied by the Dispatcher: IsTaskReady, RunTask,
// IsFinished. Go's native goroutine concurrency stands in for the source
// project's single-threaded cooperative event loop; the ceiling still
// bounds how many task goroutines may run at once, which is the property
// the rest of the core relies on (spec §5: "Concurrency is adjusted only
// between task boundaries").
package autoscale

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"crawlcore/pkg/counter"
)

const (
	// defaultScaleUpStepRatio/defaultScaleDownStepRatio mirror the
	// source project's conservative +5%/-5% adjustment per scaling tick.
	defaultScaleUpStepRatio   = 0.05
	defaultScaleDownStepRatio = 0.05
	// defaultDesiredConcurrencyRatio is the in-use/ceiling fraction above
	// which the pool considers there to be enough demand to scale up.
	defaultDesiredConcurrencyRatio = 0.90

	defaultScaleInterval = 2 * time.Second
	defaultPollInterval  = 25 * time.Millisecond
)

// Pool is the Autoscaled Pool.
type Pool struct {
	headroom       *counter.Headroom
	minConcurrency int64
	maxConcurrency int64

	snapshotter   *Snapshotter
	scaleInterval time.Duration
	pollInterval  time.Duration

	scaleUpStepRatio        float64
	scaleDownStepRatio      float64
	desiredConcurrencyRatio float64

	wg      sync.WaitGroup
	stopCh  chan struct{}
	started atomic.Bool
}

// NewPool constructs a Pool whose ceiling floats between minConcurrency and
// maxConcurrency, starting at minConcurrency.
func NewPool(minConcurrency, maxConcurrency int64, snapshotter *Snapshotter) *Pool {
	if minConcurrency < 1 {
		minConcurrency = 1
	}
	if maxConcurrency < minConcurrency {
		maxConcurrency = minConcurrency
	}
	return &Pool{
		headroom:                counter.New(minConcurrency),
		minConcurrency:          minConcurrency,
		maxConcurrency:          maxConcurrency,
		snapshotter:             snapshotter,
		scaleInterval:           defaultScaleInterval,
		pollInterval:            defaultPollInterval,
		scaleUpStepRatio:        defaultScaleUpStepRatio,
		scaleDownStepRatio:      defaultScaleDownStepRatio,
		desiredConcurrencyRatio: defaultDesiredConcurrencyRatio,
	}
}

// Headroom exposes the underlying concurrency gate, e.g. for tests or for
// a Dispatcher that wants to report current/ceiling concurrency.
func (p *Pool) Headroom() *counter.Headroom { return p.headroom }

// SetScaleInterval overrides the default scaling-tick interval. Must be
// called before Start.
func (p *Pool) SetScaleInterval(d time.Duration) {
	if d > 0 {
		p.scaleInterval = d
	}
}

// Start launches the background scaling loop, which periodically takes a
// Snapshot and raises or lowers the concurrency ceiling.
func (p *Pool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.scaleLoop()
}

// Stop halts the scaling loop. It does not cancel in-flight tasks started
// via Run; callers should cancel their own context for that.
func (p *Pool) Stop() {
	if !p.started.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Pool) scaleLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.scaleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.runScaleCycle()
		case <-p.stopCh:
			return
		}
	}
}

// runScaleCycle mirrors the teacher's runCommitCycle: read current state,
// decide, apply. Healthy load and high demand raises the ceiling; an
// overloaded snapshot lowers it. Neither ever crosses
// min_concurrency/max_concurrency.
func (p *Pool) runScaleCycle() {
	snap := p.snapshotter.Take()
	ceiling := p.headroom.Ceiling()

	if snap.Overloaded() {
		next := ceiling - scaleStep(ceiling, p.scaleDownStepRatio)
		if next < p.minConcurrency {
			next = p.minConcurrency
		}
		p.headroom.SetCeiling(next)
		return
	}

	demand := float64(p.headroom.InUse()) >= float64(ceiling)*p.desiredConcurrencyRatio
	if demand && ceiling < p.maxConcurrency {
		next := ceiling + scaleStep(ceiling, p.scaleUpStepRatio)
		if next > p.maxConcurrency {
			next = p.maxConcurrency
		}
		p.headroom.SetCeiling(next)
	}
}

func scaleStep(ceiling int64, ratio float64) int64 {
	step := int64(float64(ceiling) * ratio)
	if step < 1 {
		step = 1
	}
	return step
}

// Run is the cooperative scheduler loop: while isFinished reports false,
// it polls isTaskReady and, once a concurrency slot is available via
// TryAcquire, spawns runTask in its own goroutine. Run blocks until
// isFinished reports true and every in-flight task has completed.
func (p *Pool) Run(ctx context.Context, isTaskReady func() bool, runTask func(context.Context), isFinished func() bool) {
	var inFlight sync.WaitGroup
	for {
		if isFinished() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if !isTaskReady() {
			sleep(ctx, p.pollInterval)
			continue
		}
		if !p.headroom.TryAcquire(1) {
			sleep(ctx, p.pollInterval)
			continue
		}
		inFlight.Add(1)
		go func() {
			defer inFlight.Done()
			defer p.headroom.Release(1)
			runTask(ctx)
		}()
	}
	inFlight.Wait()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
