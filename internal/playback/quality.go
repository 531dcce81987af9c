package playback

import "sync"

// QualityTier is a discrete bitrate/resolution class. Downgrading trades
// visual quality for buffering resilience.
type QualityTier int

const (
	QualityAuto QualityTier = iota
	QualityUltra
	QualityHigh
	QualityMedium
	QualityLow
)

func (q QualityTier) String() string {
	switch q {
	case QualityAuto:
		return "auto"
	case QualityUltra:
		return "ultra"
	case QualityHigh:
		return "high"
	case QualityMedium:
		return "medium"
	case QualityLow:
		return "low"
	default:
		return "unknown"
	}
}

// next returns the downgrade successor. QualityLow is terminal.
func (q QualityTier) next() (QualityTier, bool) {
	switch q {
	case QualityAuto:
		return QualityUltra, true
	case QualityUltra:
		return QualityHigh, true
	case QualityHigh:
		return QualityMedium, true
	case QualityMedium:
		return QualityLow, true
	default:
		return QualityLow, false
	}
}

// Ladder tracks the current quality tier and how many downgrades have been
// applied this session. Downgrades are monotonic; Reset is only valid at
// session start.
type Ladder struct {
	mu         sync.Mutex
	tier       QualityTier
	downgrades int
}

// NewLadder returns a Ladder at QualityAuto with zero downgrades.
func NewLadder() *Ladder {
	return &Ladder{tier: QualityAuto}
}

// Downgrade moves to the next lower tier and returns it. It refuses when the
// tier is already QualityLow or when the downgrade count has reached bound
// (the bound differs per remediation level and is supplied by the caller).
func (l *Ladder) Downgrade(bound int) (QualityTier, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.downgrades >= bound {
		return l.tier, false
	}
	next, ok := l.tier.next()
	if !ok {
		return l.tier, false
	}

	l.tier = next
	l.downgrades++
	return l.tier, true
}

// Reset restores QualityAuto and a zero downgrade count.
func (l *Ladder) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tier = QualityAuto
	l.downgrades = 0
}

// Tier returns the current quality tier.
func (l *Ladder) Tier() QualityTier {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tier
}

// Downgrades returns the number of downgrades applied this session.
func (l *Ladder) Downgrades() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.downgrades
}
