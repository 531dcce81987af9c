// Package device inspects the host the player runs on. The playback layer
// uses the snapshot to decide whether hardware-accelerated decode is worth
// enabling and to expose host load through the diagnostics API.
package device

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is a point-in-time view of host resources.
type Snapshot struct {
	Hostname        string        `json:"hostname"`
	OS              string        `json:"os"`
	Arch            string        `json:"arch"`
	Uptime          time.Duration `json:"uptime"`
	CPUCores        int           `json:"cpu_cores"`
	CPUPercent      float64       `json:"cpu_percent"`
	LoadAvg1m       float64       `json:"load_avg_1m"`
	MemoryTotal     uint64        `json:"memory_total"`
	MemoryAvailable uint64        `json:"memory_available"`
	MemoryPercent   float64       `json:"memory_percent"`
	CollectedAt     time.Time     `json:"collected_at"`
}

// Resource thresholds for the hardware-decode recommendation. A box that is
// already starved should not take on GPU/driver initialisation overhead, and
// a single-core box gains nothing from offload anyway.
const (
	minCoresForHWDecode   = 2
	minAvailableMemory    = 512 * 1024 * 1024
	maxLoadPerCore        = 1.5
	snapshotCacheDuration = 10 * time.Second
)

// RecommendHardwareDecode reports whether hardware-accelerated decode should
// be enabled given the host's current resources.
func (s Snapshot) RecommendHardwareDecode() bool {
	if s.CPUCores < minCoresForHWDecode {
		return false
	}
	if s.MemoryTotal > 0 && s.MemoryAvailable < minAvailableMemory {
		return false
	}
	if s.CPUCores > 0 && s.LoadAvg1m/float64(s.CPUCores) > maxLoadPerCore {
		return false
	}
	return true
}

// Collector gathers host statistics. Snapshots are cached briefly because
// gopsutil reads are not free and the API may poll.
type Collector struct {
	hostname string

	mu       sync.Mutex
	cached   Snapshot
	cachedAt time.Time
}

// NewCollector creates a Collector.
func NewCollector() *Collector {
	hostname, _ := os.Hostname()
	return &Collector{hostname: hostname}
}

// Collect gathers a host snapshot, serving a cached copy when fresh enough.
// Individual probe failures are tolerated; the corresponding fields stay zero.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cachedAt.IsZero() && time.Since(c.cachedAt) < snapshotCacheDuration {
		return c.cached
	}

	snap := Snapshot{
		Hostname:    c.hostname,
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		CollectedAt: time.Now(),
	}

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		snap.Uptime = time.Duration(uptime) * time.Second
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPUCores = cores
	}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	if loadAvg, err := load.AvgWithContext(ctx); err == nil {
		snap.LoadAvg1m = loadAvg.Load1
	}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemoryTotal = memInfo.Total
		snap.MemoryAvailable = memInfo.Available
		snap.MemoryPercent = memInfo.UsedPercent
	}

	c.cached = snap
	c.cachedAt = snap.CollectedAt
	return snap
}
