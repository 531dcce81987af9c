package playback

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/pulsetv/pulsetv/internal/observability"
)

// ErrSessionNotFound is returned when a session ID is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Manager is the registry of active playback sessions, keyed by session ID.
// The diagnostics API reads it; the caller that owns the players writes it.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewManager creates an empty session registry.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   observability.WithComponent(logger, "session-manager"),
	}
}

// Create builds a session for the player and registers it.
func (m *Manager) Create(player Player, opts SessionOptions) *Session {
	s := NewSession(player, opts)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.logger.Debug("session registered", slog.String("session_id", s.ID()))
	return s
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove stops the session and drops it from the registry.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	return s.Stop(ctx)
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns snapshots of all registered sessions, ordered by ID.
func (m *Manager) List() []SessionSnapshot {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	snaps := make([]SessionSnapshot, 0, len(sessions))
	for _, s := range sessions {
		snaps = append(snaps, s.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

// StopAll stops every registered session and clears the registry.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.Stop(ctx); err != nil {
			m.logger.Warn("stopping session",
				slog.String("session_id", s.ID()),
				slog.String("error", err.Error()),
			)
		}
	}
}
