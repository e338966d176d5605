// Package healthcheck reports process and host resource metrics for the
// operator status surface, the same CPU/memory snapshot the teacher exposes
// through its STATS display mode.
package healthcheck

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/rs/zerolog"
)

// Snapshot is a point-in-time resource reading.
type Snapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemPercent    float64 `json:"mem_percent"`
	MemUsedMB     float64 `json:"mem_used_mb"`
	DiskPercent   float64 `json:"disk_percent"`
	DiskUsedMB    float64 `json:"disk_used_mb"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Checker samples host metrics, tracking process startup time for uptime.
type Checker struct {
	startupTime time.Time
	dataDir     string
	log         zerolog.Logger
}

// New creates a Checker. dataDir is the volume whose free space is reported
// (the position-state/ledger volume, not the root filesystem).
func New(dataDir string, log zerolog.Logger) *Checker {
	return &Checker{
		startupTime: time.Now(),
		dataDir:     dataDir,
		log:         log.With().Str("component", "healthcheck").Logger(),
	}
}

// Sample reads current CPU, memory, and disk usage. A sampling failure on
// any one metric degrades that field to zero rather than failing the whole
// snapshot, since a partial health report is more useful than none.
func (c *Checker) Sample() Snapshot {
	snap := Snapshot{UptimeSeconds: time.Since(c.startupTime).Seconds()}

	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to sample cpu percent")
	} else if len(cpuPercent) > 0 {
		snap.CPUPercent = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to sample memory")
	} else {
		snap.MemPercent = memStat.UsedPercent
		snap.MemUsedMB = float64(memStat.Used) / 1024 / 1024
	}

	diskStat, err := disk.Usage(c.dataDir)
	if err != nil {
		c.log.Warn().Err(err).Str("path", c.dataDir).Msg("failed to sample disk usage")
	} else {
		snap.DiskPercent = diskStat.UsedPercent
		snap.DiskUsedMB = float64(diskStat.Used) / 1024 / 1024
	}

	return snap
}

// Healthy reports whether the snapshot is within acceptable operating
// bounds. A convertbot process doesn't fail closed on resource pressure
// (unlike the guard's drawdown trip), it just surfaces the warning for an
// operator watching /healthz.
func (s Snapshot) Healthy() bool {
	return s.MemPercent < 95 && s.DiskPercent < 95
}
