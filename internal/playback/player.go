package playback

import "context"

// PlayerEvents carries the telemetry callbacks a player invokes on its own
// goroutine. Any field may be nil; nil callbacks are simply not delivered.
type PlayerEvents struct {
	// OnBufferSample reports the current cache fill percentage (0-100).
	OnBufferSample func(pct float64)
	// OnError reports a playback error.
	OnError func()
	// OnStopped reports that playback stopped.
	OnStopped func()
	// OnEndReached reports that the stream ended.
	OnEndReached func()
}

// Player is the capability surface the controller needs from the decode and
// render pipeline. The pipeline itself is an external collaborator; this
// package never instantiates one outside of tests and the built-in headless
// player.
type Player interface {
	// Play opens the URL with the given settings and starts playback.
	Play(ctx context.Context, url string, settings PlayerSettings) error
	// Stop halts playback. Stopping an idle player is not an error.
	Stop(ctx context.Context) error
	// IsPlaying reports whether the player is currently playing.
	IsPlaying() bool
	// Subscribe registers telemetry callbacks and returns an unsubscribe
	// function. Unsubscribe must take effect synchronously: after it
	// returns, no callback in events will be invoked again.
	Subscribe(events PlayerEvents) (unsubscribe func())
}

// ConnectionSummary is the probe-derived quality report surfaced to the UI.
type ConnectionSummary struct {
	LatencyMs     int64   `json:"latency_ms"`
	DownloadMbps  float64 `json:"download_mbps"`
	SpeedCategory string  `json:"speed_category"`
	Stable        bool    `json:"stable"`
	Text          string  `json:"text"`
}

// Callbacks are the events the controller and session surface to the caller.
// All fields are optional. Callbacks fire on the controller's own goroutine,
// outside any internal lock; dispatching to a UI thread is the caller's job.
type Callbacks struct {
	OnStatusChanged             func(text string)
	OnQualityAnalyzed           func(summary ConnectionSummary)
	OnSettingsChanged           func(settings PlayerSettings)
	OnReconnecting              func(text string)
	OnHealthStatusChanged       func(status HealthStatus)
	OnRestartRequired           func(settings PlayerSettings)
	OnQualityDowngradeRequested func(tier QualityTier)
}

func (c Callbacks) status(text string) {
	if c.OnStatusChanged != nil {
		c.OnStatusChanged(text)
	}
}

// Recorder receives adaptation telemetry for metrics export. Implementations
// must be safe for concurrent use. NopRecorder is used when metrics are
// disabled.
type Recorder interface {
	// ActionExecuted counts one remediation action at the given level.
	ActionExecuted(level string)
	// HealthChanged counts a transition into the given health status.
	HealthChanged(status string)
	// ReconnectCompleted counts one finished reconnect sequence.
	ReconnectCompleted(outcome string)
	// SessionStarted and SessionEnded track the active session gauge.
	SessionStarted()
	SessionEnded()
}

type nopRecorder struct{}

func (nopRecorder) ActionExecuted(string)     {}
func (nopRecorder) HealthChanged(string)      {}
func (nopRecorder) ReconnectCompleted(string) {}
func (nopRecorder) SessionStarted()           {}
func (nopRecorder) SessionEnded()             {}

// NopRecorder discards all telemetry.
var NopRecorder Recorder = nopRecorder{}
