// Package metrics implements runtime.MetricsSink (per-cycle duration
// recording) plus an optional host-health sampler, exposed read-only over
// the control plane's metadata snapshot endpoint.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"github.com/trustplatform/trustrun/internal/ioimage"
)

// CycleStats is a running summary of per-cycle durations since the last
// Reset, cheap enough to recompute Snapshot() on every control-plane poll.
type CycleStats struct {
	Count int64
	Min   time.Duration
	Max   time.Duration
	Sum   time.Duration
}

// Mean returns Sum/Count, or zero if no cycle has been recorded yet.
func (s CycleStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / time.Duration(s.Count)
}

// Registry accumulates cycle timings and the most recently published
// driver statuses, satisfying runtime.MetricsSink and ioimage.StatusSink.
type Registry struct {
	mu     sync.Mutex
	stats  CycleStats
	status map[string]ioimage.DriverStatus
}

func NewRegistry() *Registry {
	return &Registry{status: make(map[string]ioimage.DriverStatus)}
}

// RecordCycle implements runtime.MetricsSink.
func (r *Registry) RecordCycle(duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stats.Count == 0 || duration < r.stats.Min {
		r.stats.Min = duration
	}
	if duration > r.stats.Max {
		r.stats.Max = duration
	}
	r.stats.Sum += duration
	r.stats.Count++
}

// Publish implements ioimage.StatusSink.
func (r *Registry) Publish(s ioimage.DriverStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[s.Driver] = s
}

// Snapshot returns the current cycle-duration summary.
func (r *Registry) Snapshot() CycleStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// DriverStatuses returns a copy of the most recently published status per
// driver name.
func (r *Registry) DriverStatuses() map[string]ioimage.DriverStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]ioimage.DriverStatus, len(r.status))
	for k, v := range r.status {
		out[k] = v
	}
	return out
}

// Reset zeroes the accumulated cycle stats without touching driver status.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = CycleStats{}
}

// HostSnapshot is the host-health section of the metadata snapshot: uptime/
// process counts from ioimage.SampleHostHealth plus CPU/memory percentages
// sampled directly via gopsutil, matching cmd/gprobe's metrics.Config
// intent of an expensive/cheap split (CPU percent sampling blocks for the
// given interval, so callers should not call it from the hot cycle path).
type HostSnapshot struct {
	ioimage.HostHealth
	CPUPercent    float64
	MemUsedBytes  uint64
	MemTotalBytes uint64
}

// SampleHost blocks for interval sampling CPU percent, then reads host
// health and memory once. Intended for a low-frequency metrics tick, not
// per-cycle use.
func SampleHost(ctx context.Context, interval time.Duration) (HostSnapshot, error) {
	health, err := ioimage.SampleHostHealth(ctx)
	if err != nil {
		return HostSnapshot{}, err
	}

	var cpuPct float64
	if percents, err := cpu.PercentWithContext(ctx, interval, false); err == nil && len(percents) > 0 {
		cpuPct = percents[0]
	}

	var used, total uint64
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		used, total = vm.Used, vm.Total
	}

	return HostSnapshot{
		HostHealth:    health,
		CPUPercent:    cpuPct,
		MemUsedBytes:  used,
		MemTotalBytes: total,
	}, nil
}
