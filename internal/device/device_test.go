package device

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollector_Collect(t *testing.T) {
	c := NewCollector()
	snap := c.Collect(context.Background())

	assert.Equal(t, runtime.GOOS, snap.OS)
	assert.Equal(t, runtime.GOARCH, snap.Arch)
	assert.GreaterOrEqual(t, snap.CPUCores, 1)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_CachesSnapshots(t *testing.T) {
	c := NewCollector()
	first := c.Collect(context.Background())
	time.Sleep(5 * time.Millisecond)
	second := c.Collect(context.Background())

	assert.Equal(t, first.CollectedAt, second.CollectedAt, "served from cache")
}

func TestSnapshot_RecommendHardwareDecode(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want bool
	}{
		{
			name: "healthy multi-core host",
			snap: Snapshot{CPUCores: 4, LoadAvg1m: 1.0, MemoryTotal: 8 << 30, MemoryAvailable: 4 << 30},
			want: true,
		},
		{
			name: "single core",
			snap: Snapshot{CPUCores: 1, MemoryTotal: 8 << 30, MemoryAvailable: 4 << 30},
			want: false,
		},
		{
			name: "memory starved",
			snap: Snapshot{CPUCores: 4, MemoryTotal: 8 << 30, MemoryAvailable: 128 << 20},
			want: false,
		},
		{
			name: "overloaded",
			snap: Snapshot{CPUCores: 2, LoadAvg1m: 6.0, MemoryTotal: 8 << 30, MemoryAvailable: 4 << 30},
			want: false,
		},
		{
			name: "memory unknown is not disqualifying",
			snap: Snapshot{CPUCores: 4, LoadAvg1m: 0.5},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.snap.RecommendHardwareDecode())
		})
	}
}
