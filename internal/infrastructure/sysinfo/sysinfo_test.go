package sysinfo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectProducesSnapshot(t *testing.T) {
	snap := Collect(context.Background())
	assert.NotZero(t, snap.SampledAt)
	assert.Greater(t, snap.Goroutines, 0)
	assert.NotEmpty(t, snap.Status)
}

func TestEvaluateThresholds(t *testing.T) {
	tests := []struct {
		name   string
		snap   Snapshot
		status Status
		alerts int
	}{
		{"all nominal", Snapshot{CPUPercent: 10, MemoryPercent: 40, DiskPercent: 50}, StatusHealthy, 0},
		{"cpu warning", Snapshot{CPUPercent: 85, MemoryPercent: 40, DiskPercent: 50}, StatusDegraded, 1},
		{"memory critical", Snapshot{CPUPercent: 10, MemoryPercent: 96, DiskPercent: 50}, StatusCritical, 1},
		{"mixed severities", Snapshot{CPUPercent: 85, MemoryPercent: 96, DiskPercent: 86}, StatusCritical, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := evaluate(&tt.snap)
			assert.Len(t, alerts, tt.alerts)
			assert.Equal(t, tt.status, overall(alerts))
		})
	}
}
