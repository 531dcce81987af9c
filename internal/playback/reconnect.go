package playback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pulsetv/pulsetv/internal/observability"
)

// ErrReconnectFailed is reported when every reconnect attempt is exhausted.
var ErrReconnectFailed = errors.New("reconnect attempts exhausted")

var errNotPlaying = errors.New("player did not resume")

// Reconnect cycle pacing.
const (
	// DefaultReconnectGrace is the pause between stopping and restarting.
	DefaultReconnectGrace = 500 * time.Millisecond

	// DefaultReconnectSettle is how long a restart gets to reach playing
	// state before the attempt is judged.
	DefaultReconnectSettle = 2 * time.Second
)

// Reconnector restarts a stream after a severe failure: a bounded, delayed,
// strictly sequential retry loop. How many attempts and how far apart comes
// from the active PlayerSettings; escalation beyond exhaustion is the
// controller's job, never the Reconnector's.
type Reconnector struct {
	player Player
	logger *slog.Logger

	// grace and settle are overridable for tests.
	grace  time.Duration
	settle time.Duration

	// onAttempt, when set, observes each attempt. Used for status text.
	onAttempt func(attempt, total int)
}

// NewReconnector creates a Reconnector for the given player.
func NewReconnector(player Player, logger *slog.Logger) *Reconnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconnector{
		player: player,
		logger: observability.WithComponent(logger, "reconnect"),
		grace:  DefaultReconnectGrace,
		settle: DefaultReconnectSettle,
	}
}

// TryReconnect runs up to settings.ReconnectAttempts cycles of:
// wait ReconnectDelay, stop, grace pause, play, settle pause, check playing.
// The first success returns true; the caller is responsible for clearing the
// error count. Exhaustion returns false. Context cancellation aborts
// between waits.
func (r *Reconnector) TryReconnect(ctx context.Context, url string, settings PlayerSettings) bool {
	attempts := settings.ReconnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	r.logger.Info("starting reconnect sequence",
		slog.String("url", observability.SanitizeURL(url)),
		slog.Int("max_attempts", attempts),
		slog.Duration("delay", settings.ReconnectDelay),
	)

	// The delay precedes every attempt, including the first: the upstream
	// just failed, reconnecting instantly tends to fail the same way.
	if !sleepCtx(ctx, settings.ReconnectDelay) {
		return false
	}

	attempt := 0
	op := func() error {
		attempt++
		if r.onAttempt != nil {
			r.onAttempt(attempt, attempts)
		}
		r.logger.Info("reconnect attempt",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		if err := r.player.Stop(ctx); err != nil {
			r.logger.Debug("stop before reconnect failed",
				slog.String("error", err.Error()),
			)
		}
		if !sleepCtx(ctx, r.grace) {
			return backoff.Permanent(ctx.Err())
		}

		if err := r.player.Play(ctx, url, settings); err != nil {
			return err
		}
		if !sleepCtx(ctx, r.settle) {
			return backoff.Permanent(ctx.Err())
		}

		if !r.player.IsPlaying() {
			return errNotPlaying
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(settings.ReconnectDelay), uint64(attempts-1)),
		ctx,
	)

	if err := backoff.Retry(op, policy); err != nil {
		r.logger.Warn("reconnect sequence failed",
			slog.Int("attempts", attempt),
			slog.String("error", err.Error()),
		)
		return false
	}

	r.logger.Info("reconnect succeeded", slog.Int("attempts", attempt))
	return true
}

// sleepCtx sleeps for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
