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

package autoscale

import (
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/procfs"
)

// Snapshot is one reading of system load, used by Pool to decide whether
// to raise or lower concurrency.
type Snapshot struct {
	Taken time.Time

	MemoryRatio float64 // used/total, 0..1
	CPURatio    float64 // busy/total over the interval since the prior snapshot, 0..1
	EventLoopLagMillis float64

	MemoryOverloaded   bool
	CPUOverloaded      bool
	EventLoopOverloaded bool

	// HasHostStats is false when /proc was unavailable (e.g. non-Linux); then
	// MemoryRatio falls back to process-level runtime.MemStats and CPURatio
	// is left at 0.
	HasHostStats bool
}

// Overloaded reports whether any dimension of the snapshot crossed its
// threshold.
func (s Snapshot) Overloaded() bool {
	return s.MemoryOverloaded || s.CPUOverloaded || s.EventLoopOverloaded
}

// Snapshotter periodically samples memory, CPU, and event-loop
// responsiveness. Per SPEC_FULL.md, CPU/memory come from
// prometheus/procfs (/proc/stat, /proc/meminfo) when available; there is
// no event loop in a goroutine-per-task Go runtime, so "event-loop lag" is
// approximated by timing a zero-duration time.AfterFunc round trip, which
// lengthens under the same GC/scheduler pressure a real event loop would
// stall on.
type Snapshotter struct {
	maxMemoryRatio      float64
	maxCPURatio         float64
	maxEventLoopLagMillis float64

	fs     procfs.FS
	hasFS  bool

	mu       sync.Mutex
	prevCPU  procfs.CPUStat
	prevTime time.Time
}

// DefaultMaxMemoryRatio etc. mirror the source project's conservative
// defaults for when a resource is considered saturated.
const (
	DefaultMaxMemoryRatio       = 0.90
	DefaultMaxCPURatio          = 0.95
	DefaultMaxEventLoopLagMillis = 50.0
)

// NewSnapshotter constructs a Snapshotter with the given thresholds. A
// zero value for any threshold uses its default.
func NewSnapshotter(maxMemoryRatio, maxCPURatio, maxEventLoopLagMillis float64) *Snapshotter {
	if maxMemoryRatio <= 0 {
		maxMemoryRatio = DefaultMaxMemoryRatio
	}
	if maxCPURatio <= 0 {
		maxCPURatio = DefaultMaxCPURatio
	}
	if maxEventLoopLagMillis <= 0 {
		maxEventLoopLagMillis = DefaultMaxEventLoopLagMillis
	}
	s := &Snapshotter{
		maxMemoryRatio:        maxMemoryRatio,
		maxCPURatio:           maxCPURatio,
		maxEventLoopLagMillis: maxEventLoopLagMillis,
	}
	if fs, err := procfs.NewDefaultFS(); err == nil {
		s.fs = fs
		s.hasFS = true
	}
	return s
}

// Take samples the current system load. Safe for concurrent use, though
// callers should serialize calls from a single scaling loop for a
// meaningful CPU-ratio delta.
func (s *Snapshotter) Take() Snapshot {
	snap := Snapshot{Taken: time.Now()}

	snap.EventLoopLagMillis = measureEventLoopLag()
	snap.EventLoopOverloaded = snap.EventLoopLagMillis > s.maxEventLoopLagMillis

	if s.hasFS {
		snap.HasHostStats = true
		if mem, err := s.fs.Meminfo(); err == nil && mem.MemTotal != nil && mem.MemAvailable != nil {
			total := float64(*mem.MemTotal)
			avail := float64(*mem.MemAvailable)
			if total > 0 {
				snap.MemoryRatio = 1 - avail/total
			}
		}
		snap.CPURatio = s.sampleCPURatio()
	} else {
		snap.MemoryRatio = processMemoryRatio()
	}
	snap.MemoryOverloaded = snap.MemoryRatio > s.maxMemoryRatio
	snap.CPUOverloaded = snap.CPURatio > s.maxCPURatio

	return snap
}

func (s *Snapshotter) sampleCPURatio() float64 {
	stat, err := s.fs.Stat()
	if err != nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	prev := s.prevCPU
	prevTime := s.prevTime
	s.prevCPU = stat.CPUTotal
	s.prevTime = now

	if prevTime.IsZero() {
		return 0
	}

	prevTotal := cpuTotalSeconds(prev)
	currTotal := cpuTotalSeconds(stat.CPUTotal)
	prevIdle := prev.Idle + prev.Iowait
	currIdle := stat.CPUTotal.Idle + stat.CPUTotal.Iowait

	totalDelta := currTotal - prevTotal
	idleDelta := currIdle - prevIdle
	if totalDelta <= 0 {
		return 0
	}
	busyDelta := totalDelta - idleDelta
	if busyDelta < 0 {
		busyDelta = 0
	}
	return busyDelta / totalDelta
}

func cpuTotalSeconds(c procfs.CPUStat) float64 {
	return c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
}

// processMemoryRatio is the non-Linux fallback: memory the Go runtime has
// obtained from the OS (MemStats.Sys) against its own soft memory limit
// (or, with no limit configured, a fixed 1GiB reference so the ratio stays
// meaningful).
func processMemoryRatio() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	limit := debugMemoryLimit()
	// debug.SetMemoryLimit reports math.MaxInt64 when no limit is set.
	if limit <= 0 || limit == math.MaxInt64 {
		limit = 1 << 30
	}
	return float64(m.Sys) / float64(limit)
}

func debugMemoryLimit() int64 {
	return debug.SetMemoryLimit(-1)
}

func measureEventLoopLag() float64 {
	start := time.Now()
	done := make(chan struct{})
	time.AfterFunc(0, func() { close(done) })
	<-done
	return float64(time.Since(start).Microseconds()) / 1000.0
}
