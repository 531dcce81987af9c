// Package playback implements the adaptive playback quality controller: a
// per-session control loop that classifies playback health from buffering
// telemetry and walks an escalating remediation ladder (quality downgrade,
// buffer inflation, aggressive recovery, bounded reconnect) while avoiding
// oscillation and overlapping repair actions.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsetv/pulsetv/internal/observability"
)

// Remediation level names used in logs, history, and metrics.
const (
	actionQualityDowngrade = "quality_downgrade"
	actionBufferIncrease   = "buffer_increase"
	actionStallRecovery    = "stall_recovery"
	actionReconnect        = "reconnect"
	actionStabilize        = "stabilize"
)

// Ladder trigger thresholds.
const (
	level0BufferingThreshold = 1
	level1BufferingThreshold = 2
	level2StallThreshold     = 2
	level2EventThreshold     = 4
	level3ErrorThreshold     = 2
)

// Buffer adjustment steps and caps per level.
const (
	level1NetworkStep = 1000 * time.Millisecond
	level1NetworkCap  = 10 * time.Second
	level1LiveStep    = 500 * time.Millisecond
	level1LiveCap     = 8 * time.Second

	level2NetworkStep = 3000 * time.Millisecond
	level2NetworkCap  = 15 * time.Second
	level2LiveStep    = 2000 * time.Millisecond
	level2LiveCap     = 12 * time.Second

	stabilizeStep  = 500 * time.Millisecond
	stabilizeFloor = 3 * time.Second

	maxStabilityNetworkCaching = 15 * time.Second
	maxStabilityLiveCaching    = 12 * time.Second
	maxStabilityFileCaching    = 16 * time.Second
	maxStabilityMinBufferPct   = 25
)

// ControllerConfig holds the tunable timings of the adaptation loop.
// The defaults are the product contract; tests shrink them.
type ControllerConfig struct {
	// TickInterval is the evaluation period.
	TickInterval time.Duration
	// EventWindow is how long buffering events count as recent.
	EventWindow time.Duration
	// QualityCooldown pauses the ladder after a level-0 downgrade.
	QualityCooldown time.Duration
	// RecoveryHold blocks level-1/2 re-entry after level-2 recovery.
	RecoveryHold time.Duration
	// StabilizationAfter is the quiet time before the one-off latency trim.
	StabilizationAfter time.Duration
	// MaxDowngradesQuality bounds level-0 downgrades.
	MaxDowngradesQuality int
	// MaxDowngradesRecovery bounds total downgrades including level-2.
	MaxDowngradesRecovery int
}

// DefaultControllerConfig returns the production timings.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		TickInterval:          2 * time.Second,
		EventWindow:           DefaultEventWindow,
		QualityCooldown:       3 * time.Second,
		RecoveryHold:          5 * time.Second,
		StabilizationAfter:    120 * time.Second,
		MaxDowngradesQuality:  3,
		MaxDowngradesRecovery: 5,
	}
}

// ControllerOptions carries the optional collaborators of a Controller.
type ControllerOptions struct {
	Logger    *slog.Logger
	Callbacks Callbacks
	Recorder  Recorder
	// Reconnector overrides the default reconnector; used by tests to
	// shrink the grace and settle pauses.
	Reconnector *Reconnector
}

// Controller runs the adaptation loop for one playback session. At most one
// remediation action fires per tick, in strict priority order; cooldowns and
// the recovery hold prevent thrashing. All telemetry state lives in the
// Monitor behind its single lock; the controller's own mutable state is
// guarded by mu.
type Controller struct {
	cfg         ControllerConfig
	logger      *slog.Logger
	player      Player
	monitor     *Monitor
	ladder      *Ladder
	reconnector *Reconnector
	callbacks   Callbacks
	recorder    Recorder
	history     *history

	url         string
	contentType ContentType

	mu              sync.Mutex
	settings        PlayerSettings
	health          HealthStatus
	pausedUntil     time.Time
	recoveringUntil time.Time
	sessionStart    time.Time
	adapted         bool
	stabilized      bool
}

// NewController creates a Controller for one stream. settings is the initial
// configuration (from QuickResolve or ResolveSettings); the controller
// replaces it wholesale on every change.
func NewController(cfg ControllerConfig, player Player, url string, contentType ContentType, settings PlayerSettings, opts ControllerOptions) *Controller {
	if cfg.TickInterval <= 0 {
		cfg = DefaultControllerConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.WithComponent(logger, "controller")

	recorder := opts.Recorder
	if recorder == nil {
		recorder = NopRecorder
	}

	c := &Controller{
		cfg:          cfg,
		logger:       logger,
		player:       player,
		monitor:      NewMonitor(cfg.EventWindow),
		ladder:       NewLadder(),
		callbacks:    opts.Callbacks,
		recorder:     recorder,
		history:      newHistory(),
		url:          url,
		contentType:  contentType,
		settings:     settings,
		health:       HealthUnknown,
		sessionStart: time.Now(),
	}

	c.reconnector = opts.Reconnector
	if c.reconnector == nil {
		c.reconnector = NewReconnector(player, logger)
	}
	c.reconnector.onAttempt = func(attempt, total int) {
		if c.callbacks.OnReconnecting != nil {
			c.callbacks.OnReconnecting(fmt.Sprintf("reconnecting (attempt %d/%d)", attempt, total))
		}
	}

	return c
}

// Run subscribes to player telemetry and ticks until ctx is cancelled.
// Telemetry subscriptions are removed synchronously before Run returns, so
// no late callback can touch freed state once the caller observes the exit.
func (c *Controller) Run(ctx context.Context) {
	unsubscribe := c.player.Subscribe(PlayerEvents{
		OnBufferSample: c.monitor.OnBufferSample,
		OnError:        c.onPlayerError,
		OnStopped:      c.onPlayerStopped,
		OnEndReached:   c.onEndReached,
	})
	defer unsubscribe()

	c.recorder.SessionStarted()
	defer c.recorder.SessionEnded()

	c.logger.Info("adaptation loop started",
		slog.String("url", observability.SanitizeURL(c.url)),
		slog.String("content_type", c.contentType.String()),
		slog.Duration("tick_interval", c.cfg.TickInterval),
	)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("adaptation loop stopped")
			return
		case <-ticker.C:
			c.runTick(ctx)
		}
	}
}

// runTick evaluates one tick, surviving panics so a bad tick never kills the
// loop.
func (c *Controller) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("tick panicked", slog.Any("panic", r))
		}
	}()
	c.tick(ctx, time.Now())
}

// tick classifies health and fires at most one remediation action, in strict
// priority order. The early returns after each fired level are load-bearing:
// they keep two levels from acting in the same tick.
func (c *Controller) tick(ctx context.Context, now time.Time) {
	health := c.monitor.Classify()
	c.updateHealth(health)
	snap := c.monitor.Snapshot()

	c.mu.Lock()
	paused := now.Before(c.pausedUntil)
	recovering := now.Before(c.recoveringUntil)
	adaptive := c.settings.AdaptiveQuality
	c.mu.Unlock()

	if paused {
		// Level-0 cooldown: the whole ladder waits, telemetry keeps flowing.
		return
	}

	// Level 0: trade quality for resilience before touching buffers.
	if snap.BufferingCount >= level0BufferingThreshold && adaptive {
		if tier, ok := c.ladder.Downgrade(c.cfg.MaxDowngradesQuality); ok {
			c.monitor.ResetBuffering()

			c.mu.Lock()
			c.settings.PreferredQuality = tier
			c.adapted = true
			c.pausedUntil = now.Add(c.cfg.QualityCooldown)
			c.mu.Unlock()

			c.actionFired(actionQualityDowngrade, "buffering with quality headroom", tier.String())
			if c.callbacks.OnQualityDowngradeRequested != nil {
				c.callbacks.OnQualityDowngradeRequested(tier)
			}
			c.callbacks.status(fmt.Sprintf("reducing quality to %s to stabilise playback", tier))
			return
		}
	}

	// Level 1: nudge the buffers up.
	if snap.BufferingCount >= level1BufferingThreshold && !recovering {
		c.monitor.ResetBuffering()

		c.mu.Lock()
		c.settings.NetworkCaching = capAdd(c.settings.NetworkCaching, level1NetworkStep, level1NetworkCap)
		c.settings.LiveCaching = capAdd(c.settings.LiveCaching, level1LiveStep, level1LiveCap)
		c.adapted = true
		settings := c.settings
		c.mu.Unlock()

		c.actionFired(actionBufferIncrease, "repeated low buffer", "")
		c.emitSettings(settings)
		c.callbacks.status("increasing buffer to ride out congestion")
		return
	}

	// Level 2: stalls demand aggressive recovery and a stream restart.
	if (snap.StallCount >= level2StallThreshold || snap.RecentEvents >= level2EventThreshold) && !recovering {
		tier, downgraded := c.ladder.Downgrade(c.cfg.MaxDowngradesRecovery)

		c.mu.Lock()
		if downgraded {
			c.settings.PreferredQuality = tier
		}
		c.settings.NetworkCaching = capAdd(c.settings.NetworkCaching, level2NetworkStep, level2NetworkCap)
		c.settings.LiveCaching = capAdd(c.settings.LiveCaching, level2LiveStep, level2LiveCap)
		c.settings.SkipFramesOnLag = true
		c.adapted = true
		c.recoveringUntil = now.Add(c.cfg.RecoveryHold)
		settings := c.settings
		c.mu.Unlock()

		c.monitor.ClearStallState()

		tierLabel := ""
		if downgraded {
			tierLabel = tier.String()
		}
		c.actionFired(actionStallRecovery, "stalls detected", tierLabel)
		c.emitSettings(settings)
		if c.callbacks.OnRestartRequired != nil {
			c.callbacks.OnRestartRequired(settings)
		}
		c.callbacks.status("recovering from stalls: restarting stream with enlarged buffers")
		return
	}

	// Level 3: a broken player connection gets one bounded reconnect run.
	if (snap.ErrorCount >= level3ErrorThreshold || health == HealthCritical) && !recovering {
		c.mu.Lock()
		c.settings.NetworkCaching = maxStabilityNetworkCaching
		c.settings.LiveCaching = maxStabilityLiveCaching
		c.settings.FileCaching = maxStabilityFileCaching
		c.settings.MinBufferBeforePlayPercent = maxStabilityMinBufferPct
		c.settings.SkipFramesOnLag = true
		c.adapted = true
		settings := c.settings
		c.mu.Unlock()

		c.actionFired(actionReconnect, "critical health or repeated errors", "")
		c.emitSettings(settings)
		if c.callbacks.OnReconnecting != nil {
			c.callbacks.OnReconnecting("connection lost, attempting to reconnect")
		}

		if c.reconnector.TryReconnect(ctx, c.url, settings) {
			c.recorder.ReconnectCompleted("success")
			c.resetAfterReconnect(now)
			c.callbacks.status("reconnected, playback restored")
		} else {
			c.recorder.ReconnectCompleted("failure")
			// Non-fatal: the loop keeps running and may try again on a
			// later tick if conditions still hold.
			c.callbacks.status("reconnection failed")
		}
		return
	}

	// Stabilization: one opportunistic latency trim per quiet session.
	c.mu.Lock()
	quietSince := c.sessionStart
	if snap.LastEventAt.After(quietSince) {
		quietSince = snap.LastEventAt
	}
	eligible := health == HealthExcellent &&
		!c.adapted && !c.stabilized &&
		now.Sub(c.sessionStart) > c.cfg.StabilizationAfter &&
		now.Sub(quietSince) > c.cfg.StabilizationAfter &&
		c.settings.NetworkCaching > stabilizeFloor
	if !eligible {
		c.mu.Unlock()
		return
	}
	c.settings.NetworkCaching -= stabilizeStep
	if c.settings.NetworkCaching < stabilizeFloor {
		c.settings.NetworkCaching = stabilizeFloor
	}
	c.stabilized = true
	settings := c.settings
	c.mu.Unlock()

	c.actionFired(actionStabilize, "stable session, trimming latency", "")
	c.emitSettings(settings)
	c.callbacks.status("connection stable, reducing buffer for lower latency")
}

// resetAfterReconnect discards adaptation state as at session start. The
// reconnected stream is effectively a fresh session on the same URL.
func (c *Controller) resetAfterReconnect(now time.Time) {
	c.monitor.Reset()
	c.ladder.Reset()

	c.mu.Lock()
	c.settings.PreferredQuality = QualityAuto
	c.sessionStart = now
	c.adapted = false
	c.stabilized = false
	c.pausedUntil = time.Time{}
	c.recoveringUntil = time.Time{}
	c.mu.Unlock()
}

func (c *Controller) actionFired(level, reason, tier string) {
	c.history.add(level, reason, tier)
	c.recorder.ActionExecuted(level)
	c.logger.Info("remediation action",
		slog.String("level", level),
		slog.String("reason", reason),
	)
}

func (c *Controller) emitSettings(settings PlayerSettings) {
	if c.callbacks.OnSettingsChanged != nil {
		c.callbacks.OnSettingsChanged(settings)
	}
}

func (c *Controller) updateHealth(health HealthStatus) {
	c.mu.Lock()
	changed := health != c.health
	c.health = health
	c.mu.Unlock()

	if !changed {
		return
	}
	c.recorder.HealthChanged(health.String())
	c.logger.Debug("health changed", slog.String("health", health.String()))
	if c.callbacks.OnHealthStatusChanged != nil {
		c.callbacks.OnHealthStatusChanged(health)
	}
}

func (c *Controller) onPlayerError() {
	c.monitor.RecordError()
	c.logger.Warn("player reported error")
}

func (c *Controller) onPlayerStopped() {
	c.logger.Debug("player stopped")
	c.callbacks.status("playback stopped")
}

func (c *Controller) onEndReached() {
	c.logger.Debug("player reached end of stream")
	c.callbacks.status("end of stream")
}

// ApplySettings replaces the settings wholesale, typically with an
// asynchronously probed result, and notifies the caller.
func (c *Controller) ApplySettings(settings PlayerSettings) {
	c.mu.Lock()
	c.settings = settings
	c.mu.Unlock()
	c.emitSettings(settings)
}

// Settings returns a copy of the current settings.
func (c *Controller) Settings() PlayerSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Health returns the most recently classified health status.
func (c *Controller) Health() HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health
}

// ControllerSnapshot is a point-in-time view of a controller for the
// diagnostics API. The URL is sanitized.
type ControllerSnapshot struct {
	URL         string         `json:"url"`
	ContentType string         `json:"content_type"`
	Health      string         `json:"health"`
	Tier        string         `json:"tier"`
	Downgrades  int            `json:"downgrades"`
	Recovering  bool           `json:"recovering"`
	StartedAt   time.Time      `json:"started_at"`
	Settings    PlayerSettings `json:"settings"`
	Telemetry   Snapshot       `json:"telemetry"`
	History     []ActionRecord `json:"history"`
}

// Snapshot returns the current controller state for diagnostics.
func (c *Controller) Snapshot() ControllerSnapshot {
	telemetry := c.monitor.Snapshot()

	c.mu.Lock()
	snap := ControllerSnapshot{
		URL:         observability.SanitizeURL(c.url),
		ContentType: c.contentType.String(),
		Health:      c.health.String(),
		Recovering:  time.Now().Before(c.recoveringUntil),
		StartedAt:   c.sessionStart,
		Settings:    c.settings,
	}
	c.mu.Unlock()

	snap.Tier = c.ladder.Tier().String()
	snap.Downgrades = c.ladder.Downgrades()
	snap.Telemetry = telemetry
	snap.History = c.history.Records()
	return snap
}

// capAdd adds step to d without exceeding limit.
func capAdd(d, step, limit time.Duration) time.Duration {
	d += step
	if d > limit {
		return limit
	}
	return d
}
