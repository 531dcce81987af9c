package playback

import (
	"sync"
	"time"
)

// HealthStatus is the derived five-level classification of playback
// stability. It is recomputed from current state every tick and never
// persisted across sessions.
type HealthStatus int

const (
	HealthUnknown HealthStatus = iota
	HealthExcellent
	HealthGood
	HealthFair
	HealthPoor
	HealthCritical
)

func (h HealthStatus) String() string {
	switch h {
	case HealthExcellent:
		return "excellent"
	case HealthGood:
		return "good"
	case HealthFair:
		return "fair"
	case HealthPoor:
		return "poor"
	case HealthCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Telemetry thresholds.
const (
	// RingCapacity is the number of buffer samples retained for averaging.
	RingCapacity = 30

	// DefaultEventWindow is how long buffering events count as recent.
	DefaultEventWindow = 60 * time.Second

	// stallThresholdPct: below this buffer level playback is about to freeze.
	stallThresholdPct = 10

	// lowThresholdPct: below this the buffer is running low.
	lowThresholdPct = 50

	// lowRunDebounce is how many consecutive low samples make one event.
	lowRunDebounce = 3
)

// Snapshot is a point-in-time copy of the monitor state, taken under the
// lock. RecentEvents reflects the pruned event window.
type Snapshot struct {
	BufferingCount int     `json:"buffering_count"`
	StallCount     int     `json:"stall_count"`
	ErrorCount     int     `json:"error_count"`
	LowBufferRun   int     `json:"low_buffer_run"`
	RecentEvents   int     `json:"recent_events"`
	AverageBuffer  float64 `json:"average_buffer"`
	Samples        int     `json:"samples"`
	LastEventAt    time.Time `json:"last_event_at,omitzero"`
}

// Monitor consumes buffer telemetry from the player's callback thread and
// maintains the rolling statistics the adaptation ladder reads on its own
// tick thread. A single mutex guards everything; both sides go through it.
type Monitor struct {
	mu sync.Mutex

	ring    [RingCapacity]float64
	ringLen int
	ringPos int

	events []time.Time
	window time.Duration

	bufferingCount int
	stallCount     int
	errorCount     int
	lowRun         int
	lastEventAt    time.Time

	now func() time.Time
}

// NewMonitor creates a Monitor with the given recent-event window.
// A zero window falls back to DefaultEventWindow.
func NewMonitor(window time.Duration) *Monitor {
	if window <= 0 {
		window = DefaultEventWindow
	}
	return &Monitor{
		window: window,
		now:    time.Now,
	}
}

// OnBufferSample records one telemetry callback. pct is the player-reported
// cache fill percentage (0-100). Called from the player's own goroutine.
func (m *Monitor) OnBufferSample(pct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ring[m.ringPos] = pct
	m.ringPos = (m.ringPos + 1) % RingCapacity
	if m.ringLen < RingCapacity {
		m.ringLen++
	}

	switch {
	case pct < stallThresholdPct:
		// Imminent freeze. Every stall is an event.
		m.stallCount++
		m.lowRun = 0
		m.recordEventLocked()

	case pct < lowThresholdPct:
		m.bufferingCount++
		m.lowRun++
		// Debounce: three consecutive low samples make one event, not three.
		if m.lowRun >= lowRunDebounce {
			m.lowRun = 0
			m.recordEventLocked()
		}

	default:
		m.lowRun = 0
	}
}

// RecordError registers a player error. Cleared only by a successful
// reconnect or a full reset.
func (m *Monitor) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount++
}

// ClearErrors resets the error count after a successful reconnect.
func (m *Monitor) ClearErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount = 0
}

// Classify prunes stale events and derives the current health status.
// With no samples, events, or errors yet it reports HealthUnknown.
func (m *Monitor) Classify() HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()
	recent := len(m.events)
	avg, haveAvg := m.averageLocked()

	if !haveAvg && recent == 0 && m.errorCount == 0 && m.stallCount == 0 {
		return HealthUnknown
	}

	switch {
	case m.errorCount > 0 || (haveAvg && avg < 20) || recent >= 5:
		return HealthCritical
	case (haveAvg && avg < 30) || recent >= 3 || m.stallCount > 0:
		return HealthPoor
	case (haveAvg && avg < 50) || recent >= 2:
		return HealthFair
	case (haveAvg && avg < 80) || recent >= 1:
		return HealthGood
	default:
		return HealthExcellent
	}
}

// Snapshot returns a pruned copy of the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()
	avg, _ := m.averageLocked()
	return Snapshot{
		BufferingCount: m.bufferingCount,
		StallCount:     m.stallCount,
		ErrorCount:     m.errorCount,
		LowBufferRun:   m.lowRun,
		RecentEvents:   len(m.events),
		AverageBuffer:  avg,
		Samples:        m.ringLen,
		LastEventAt:    m.lastEventAt,
	}
}

// AverageBuffer returns the arithmetic mean of the retained samples,
// or zero when no sample has arrived yet.
func (m *Monitor) AverageBuffer() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	avg, _ := m.averageLocked()
	return avg
}

// ResetBuffering clears the low-buffer counter after a level-0/1 action.
func (m *Monitor) ResetBuffering() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bufferingCount = 0
}

// ClearStallState clears stalls and the event window after level-2 recovery.
func (m *Monitor) ClearStallState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stallCount = 0
	m.events = m.events[:0]
}

// Reset discards all state, as at session start.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ringLen = 0
	m.ringPos = 0
	m.events = m.events[:0]
	m.bufferingCount = 0
	m.stallCount = 0
	m.errorCount = 0
	m.lowRun = 0
	m.lastEventAt = time.Time{}
}

func (m *Monitor) recordEventLocked() {
	now := m.now()
	m.events = append(m.events, now)
	m.lastEventAt = now
}

// pruneLocked drops events older than the window.
func (m *Monitor) pruneLocked() {
	cutoff := m.now().Add(-m.window)
	keep := 0
	for _, e := range m.events {
		if e.After(cutoff) {
			m.events[keep] = e
			keep++
		}
	}
	m.events = m.events[:keep]
}

// averageLocked recomputes the mean from the ring contents. Recomputing
// rather than tracking incrementally avoids float drift across evictions.
func (m *Monitor) averageLocked() (float64, bool) {
	if m.ringLen == 0 {
		return 0, false
	}
	var sum float64
	for i := 0; i < m.ringLen; i++ {
		sum += m.ring[i]
	}
	return sum / float64(m.ringLen), true
}
