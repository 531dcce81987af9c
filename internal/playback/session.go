package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pulsetv/pulsetv/internal/observability"
	"github.com/pulsetv/pulsetv/internal/probe"
)

// Session errors.
var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotStarted     = errors.New("session not started")
)

// SessionOptions carries the collaborators of a Session.
type SessionOptions struct {
	Logger *slog.Logger
	// Prober, when set, runs a background probe at start and applies the
	// resolved settings once it completes. Nil disables probing.
	Prober     *probe.Prober
	Controller ControllerConfig
	Callbacks  Callbacks
	Recorder   Recorder
	// Reconnector overrides the controller's reconnector; used by tests.
	Reconnector *Reconnector
}

// Session owns one controller instance per active stream. Start spawns the
// monitoring loop; Stop tears it down synchronously, so no telemetry
// callback can arrive after Stop returns. A channel change is a stop plus a
// fresh start: adaptation state is discarded, never merged.
type Session struct {
	id     string
	player Player
	opts   SessionOptions
	logger *slog.Logger

	mu     sync.Mutex
	ctrl   *Controller
	cancel context.CancelFunc
	wg     sync.WaitGroup
	url    string
	active bool
}

// NewSession creates an idle session for the given player.
func NewSession(player Player, opts SessionOptions) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder
	}
	if opts.Controller.TickInterval <= 0 {
		opts.Controller = DefaultControllerConfig()
	}

	id := uuid.NewString()
	return &Session{
		id:     id,
		player: player,
		opts:   opts,
		logger: observability.WithSession(observability.WithComponent(opts.Logger, "session"), id),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start begins playback of url with a fast-path preset and spawns the
// adaptation loop. When a prober is configured, the measured settings are
// applied asynchronously once the probe completes.
func (s *Session) Start(ctx context.Context, url string, contentType ContentType) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	settings := QuickResolve(contentType)
	if err := s.player.Play(ctx, url, settings); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("starting playback: %w", err)
	}

	ctrl := NewController(s.opts.Controller, s.player, url, contentType, settings, ControllerOptions{
		Logger:      s.logger,
		Callbacks:   s.opts.Callbacks,
		Recorder:    s.opts.Recorder,
		Reconnector: s.opts.Reconnector,
	})

	// The loop outlives the Start call; it stops via Stop, not via the
	// caller's request context.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.ctrl = ctrl
	s.cancel = cancel
	s.url = url
	s.active = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctrl.Run(runCtx)
	}()

	if s.opts.Prober != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.probeAndApply(runCtx, ctrl, url, contentType)
		}()
	}
	s.mu.Unlock()

	s.logger.Info("session started",
		slog.String("url", observability.SanitizeURL(url)),
		slog.String("content_type", contentType.String()),
	)
	s.opts.Callbacks.status("playback started")
	return nil
}

// probeAndApply measures the connection in the background and swaps in the
// resolved settings.
func (s *Session) probeAndApply(ctx context.Context, ctrl *Controller, url string, contentType ContentType) {
	info := s.opts.Prober.Probe(ctx, url)
	if ctx.Err() != nil {
		return
	}

	ctrl.ApplySettings(ResolveSettings(info, contentType))

	if s.opts.Callbacks.OnQualityAnalyzed != nil {
		s.opts.Callbacks.OnQualityAnalyzed(ConnectionSummary{
			LatencyMs:     info.Latency.Milliseconds(),
			DownloadMbps:  info.DownloadMbps,
			SpeedCategory: info.SpeedCategory.String(),
			Stable:        info.IsStable,
			Text: fmt.Sprintf("%.1f Mbps, %d ms latency (%s)",
				info.DownloadMbps, info.Latency.Milliseconds(), info.SpeedCategory),
		})
	}
}

// Stop cancels the adaptation loop, waits for it to unsubscribe from
// telemetry, and stops the player. Cancelling the loop also aborts any
// in-flight reconnect. Stopping an idle session is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.active = false
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	if err := s.player.Stop(ctx); err != nil {
		return fmt.Errorf("stopping player: %w", err)
	}
	s.logger.Info("session stopped")
	return nil
}

// ChangeChannel switches to a new stream: the current loop (and any
// in-flight reconnect) is cancelled, adaptation state is discarded, and a
// fresh controller starts for the new URL.
func (s *Session) ChangeChannel(ctx context.Context, url string, contentType ContentType) error {
	if err := s.Stop(ctx); err != nil {
		s.logger.Warn("stopping previous channel", slog.String("error", err.Error()))
	}
	return s.Start(ctx, url, contentType)
}

// Active reports whether the session is currently playing.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SessionSnapshot is a point-in-time view of a session for diagnostics.
type SessionSnapshot struct {
	ID         string              `json:"id"`
	Active     bool                `json:"active"`
	Controller *ControllerSnapshot `json:"controller,omitempty"`
}

// Snapshot returns the session state; the controller part is present only
// while the session is active.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	ctrl := s.ctrl
	active := s.active
	s.mu.Unlock()

	snap := SessionSnapshot{ID: s.id, Active: active}
	if active && ctrl != nil {
		cs := ctrl.Snapshot()
		snap.Controller = &cs
	}
	return snap
}
