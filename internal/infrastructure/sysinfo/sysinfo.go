// Package sysinfo samples host resource usage for the monitoring
// endpoints and classifies it against alert thresholds.
package sysinfo

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Alert thresholds in percent. Warning below critical for each axis.
const (
	CPUWarning  = 80.0
	CPUCritical = 90.0

	MemoryWarning  = 85.0
	MemoryCritical = 95.0

	DiskWarning  = 85.0
	DiskCritical = 95.0
)

// Status classifies one axis or the whole host.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "unhealthy"
)

// Alert is one threshold breach.
type Alert struct {
	Resource string  `json:"resource"`
	Severity string  `json:"severity"`
	Value    float64 `json:"value_percent"`
	Limit    float64 `json:"threshold_percent"`
	Message  string  `json:"message"`
}

// Snapshot is one sample of host state.
type Snapshot struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsedMB  uint64    `json:"memory_used_mb"`
	MemoryTotalMB uint64    `json:"memory_total_mb"`
	DiskPercent   float64   `json:"disk_percent"`
	DiskFreeGB    float64   `json:"disk_free_gb"`
	Load1         float64   `json:"load_1"`
	UptimeSeconds uint64    `json:"uptime_seconds"`
	ProcessCount  int       `json:"process_count"`
	Goroutines    int       `json:"goroutines"`
	Status        Status    `json:"status"`
	Alerts        []Alert   `json:"alerts,omitempty"`
	SampledAt     time.Time `json:"sampled_at"`
}

var startedAt = time.Now()

// Collect samples the host. Individual probe failures leave zeroes
// rather than failing the snapshot.
func Collect(ctx context.Context) *Snapshot {
	snap := &Snapshot{
		Goroutines: runtime.NumGoroutine(),
		SampledAt:  time.Now().UTC(),
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemoryPercent = vm.UsedPercent
		snap.MemoryUsedMB = vm.Used / (1 << 20)
		snap.MemoryTotalMB = vm.Total / (1 << 20)
	}
	if usage, err := disk.UsageWithContext(ctx, diskRoot()); err == nil {
		snap.DiskPercent = usage.UsedPercent
		snap.DiskFreeGB = float64(usage.Free) / float64(1<<30)
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.Load1 = avg.Load1
	}
	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		snap.UptimeSeconds = uptime
	}
	if pids, err := process.PidsWithContext(ctx); err == nil {
		snap.ProcessCount = len(pids)
	}

	snap.Alerts = evaluate(snap)
	snap.Status = overall(snap.Alerts)
	return snap
}

// ProcessUptime reports how long this gateway process has been up.
func ProcessUptime() time.Duration {
	return time.Since(startedAt)
}

func diskRoot() string {
	if runtime.GOOS == "windows" {
		return "C:"
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "/"
}

func evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	alerts = appendAlert(alerts, "cpu", snap.CPUPercent, CPUWarning, CPUCritical)
	alerts = appendAlert(alerts, "memory", snap.MemoryPercent, MemoryWarning, MemoryCritical)
	alerts = appendAlert(alerts, "disk", snap.DiskPercent, DiskWarning, DiskCritical)
	return alerts
}

func appendAlert(alerts []Alert, resource string, value, warning, critical float64) []Alert {
	switch {
	case value >= critical:
		return append(alerts, Alert{
			Resource: resource,
			Severity: "critical",
			Value:    value,
			Limit:    critical,
			Message:  resource + " usage is critical",
		})
	case value >= warning:
		return append(alerts, Alert{
			Resource: resource,
			Severity: "warning",
			Value:    value,
			Limit:    warning,
			Message:  resource + " usage is elevated",
		})
	default:
		return alerts
	}
}

func overall(alerts []Alert) Status {
	status := StatusHealthy
	for _, a := range alerts {
		if a.Severity == "critical" {
			return StatusCritical
		}
		status = StatusDegraded
	}
	return status
}
