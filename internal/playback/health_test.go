package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitor_RingBounds(t *testing.T) {
	m := NewMonitor(0)

	// Fill well past capacity; only the newest 30 count.
	for i := 0; i < 100; i++ {
		m.OnBufferSample(float64(i))
	}

	snap := m.Snapshot()
	assert.Equal(t, RingCapacity, snap.Samples)

	// Retained samples are 70..99; their mean is 84.5.
	assert.InDelta(t, 84.5, snap.AverageBuffer, 0.0001)
}

func TestMonitor_AverageIsExactMean(t *testing.T) {
	m := NewMonitor(0)
	for _, pct := range []float64{50, 60, 70} {
		m.OnBufferSample(pct)
	}
	assert.InDelta(t, 60.0, m.AverageBuffer(), 0.0001)
}

func TestMonitor_SingleStallSample(t *testing.T) {
	m := NewMonitor(0)
	m.OnBufferSample(5)

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.StallCount)
	assert.Equal(t, 1, snap.RecentEvents)
	assert.Equal(t, 0, snap.LowBufferRun)

	// A stall forces at least Poor regardless of the average.
	health := m.Classify()
	assert.True(t, health == HealthPoor || health == HealthCritical,
		"got %s, want poor or critical", health)
}

func TestMonitor_FullHealthyRing(t *testing.T) {
	m := NewMonitor(0)
	for i := 0; i < 30; i++ {
		m.OnBufferSample(100)
	}

	snap := m.Snapshot()
	assert.Equal(t, 30, snap.Samples)
	assert.InDelta(t, 100.0, snap.AverageBuffer, 0.0001)
	assert.Equal(t, 0, snap.RecentEvents)
	assert.Equal(t, HealthExcellent, m.Classify())
}

func TestMonitor_LowBufferDebounce(t *testing.T) {
	t.Run("three low samples make one event", func(t *testing.T) {
		m := NewMonitor(0)
		for _, pct := range []float64{30, 35, 40} {
			m.OnBufferSample(pct)
		}

		snap := m.Snapshot()
		assert.Equal(t, 1, snap.RecentEvents)
		assert.Equal(t, 3, snap.BufferingCount)
		assert.Equal(t, 0, snap.LowBufferRun, "run resets after the debounced event")
	})

	t.Run("a healthy sample resets the run", func(t *testing.T) {
		m := NewMonitor(0)
		m.OnBufferSample(30)
		m.OnBufferSample(35)
		m.OnBufferSample(80) // run broken
		m.OnBufferSample(40)
		m.OnBufferSample(45)

		snap := m.Snapshot()
		assert.Equal(t, 0, snap.RecentEvents)
		assert.Equal(t, 2, snap.LowBufferRun)
	})

	t.Run("a stall resets the run too", func(t *testing.T) {
		m := NewMonitor(0)
		m.OnBufferSample(30)
		m.OnBufferSample(35)
		m.OnBufferSample(5) // stall, its own event

		snap := m.Snapshot()
		assert.Equal(t, 1, snap.RecentEvents)
		assert.Equal(t, 0, snap.LowBufferRun)
		assert.Equal(t, 1, snap.StallCount)
	})
}

func TestMonitor_EventWindowPruning(t *testing.T) {
	m := NewMonitor(60 * time.Second)

	// Inject a controllable clock.
	current := time.Now()
	m.now = func() time.Time { return current }

	m.OnBufferSample(5) // event at t0
	current = current.Add(30 * time.Second)
	m.OnBufferSample(5) // event at t0+30s

	assert.Equal(t, 2, m.Snapshot().RecentEvents)

	// t0+61s: the first event ages out.
	current = current.Add(31 * time.Second)
	assert.Equal(t, 1, m.Snapshot().RecentEvents)

	// t0+92s: both gone.
	current = current.Add(31 * time.Second)
	assert.Equal(t, 0, m.Snapshot().RecentEvents)
}

func TestMonitor_Classify(t *testing.T) {
	t.Run("unknown with no telemetry", func(t *testing.T) {
		m := NewMonitor(0)
		assert.Equal(t, HealthUnknown, m.Classify())
	})

	t.Run("error forces critical", func(t *testing.T) {
		m := NewMonitor(0)
		for i := 0; i < 10; i++ {
			m.OnBufferSample(100)
		}
		m.RecordError()
		assert.Equal(t, HealthCritical, m.Classify())

		m.ClearErrors()
		assert.Equal(t, HealthExcellent, m.Classify())
	})

	t.Run("average thresholds", func(t *testing.T) {
		tests := []struct {
			avg  float64
			want HealthStatus
		}{
			{avg: 15, want: HealthCritical},
			{avg: 25, want: HealthPoor},
			{avg: 45, want: HealthFair},
			{avg: 70, want: HealthGood},
			{avg: 90, want: HealthExcellent},
		}
		for _, tt := range tests {
			m := NewMonitor(0)
			for i := 0; i < 5; i++ {
				m.OnBufferSample(tt.avg)
			}
			assert.Equal(t, tt.want, m.Classify(), "avg=%v", tt.avg)
		}
	})

	t.Run("event counts drive classification", func(t *testing.T) {
		m := NewMonitor(0)
		for i := 0; i < 30; i++ {
			m.OnBufferSample(100)
		}
		assert.Equal(t, HealthExcellent, m.Classify())

		m.recordTestEvent()
		assert.Equal(t, HealthGood, m.Classify())
		m.recordTestEvent()
		assert.Equal(t, HealthFair, m.Classify())
		m.recordTestEvent()
		assert.Equal(t, HealthPoor, m.Classify())
		m.recordTestEvent()
		m.recordTestEvent()
		assert.Equal(t, HealthCritical, m.Classify())
	})
}

func TestMonitor_ResetDiscardsEverything(t *testing.T) {
	m := NewMonitor(0)
	m.OnBufferSample(5)
	m.OnBufferSample(30)
	m.RecordError()

	m.Reset()

	snap := m.Snapshot()
	assert.Equal(t, Snapshot{}, snap)
	assert.Equal(t, HealthUnknown, m.Classify())
}

func TestMonitor_ClearStallState(t *testing.T) {
	m := NewMonitor(0)
	m.OnBufferSample(5)
	m.OnBufferSample(5)
	m.OnBufferSample(30)

	m.ClearStallState()

	snap := m.Snapshot()
	assert.Equal(t, 0, snap.StallCount)
	assert.Equal(t, 0, snap.RecentEvents)
	// Buffering counter is untouched by stall recovery.
	assert.Equal(t, 1, snap.BufferingCount)
}

// recordTestEvent injects a buffering event directly.
func (m *Monitor) recordTestEvent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordEventLocked()
}
