package playback

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// historyCapacity bounds the per-session action history surfaced by the
// diagnostics API.
const historyCapacity = 32

// ActionRecord describes one executed remediation action.
type ActionRecord struct {
	ID     string    `json:"id"`
	Level  string    `json:"level"`
	Reason string    `json:"reason"`
	Tier   string    `json:"tier,omitempty"`
	At     time.Time `json:"at"`
}

// history is a bounded, newest-last list of executed actions.
type history struct {
	mu      sync.Mutex
	records []ActionRecord
}

func newHistory() *history {
	return &history{records: make([]ActionRecord, 0, historyCapacity)}
}

func (h *history) add(level, reason, tier string) ActionRecord {
	rec := ActionRecord{
		ID:     ulid.Make().String(),
		Level:  level,
		Reason: reason,
		Tier:   tier,
		At:     time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) == historyCapacity {
		copy(h.records, h.records[1:])
		h.records = h.records[:historyCapacity-1]
	}
	h.records = append(h.records, rec)
	return rec
}

// Records returns a copy of the retained records, oldest first.
func (h *history) Records() []ActionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ActionRecord, len(h.records))
	copy(out, h.records)
	return out
}

func (h *history) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = h.records[:0]
}
