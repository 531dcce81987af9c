// Package probe measures network conditions for a candidate stream URL
// before playback starts. The result feeds initial buffering parameters;
// a probe never fails the caller, it degrades to a conservative default.
package probe

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/pulsetv/pulsetv/internal/httpclient"
	"github.com/pulsetv/pulsetv/internal/observability"
)

// SpeedCategory classifies measured download throughput.
type SpeedCategory int

const (
	SpeedUnknown SpeedCategory = iota
	SpeedVeryLow
	SpeedLow
	SpeedAverage
	SpeedGood
	SpeedVeryGood
	SpeedExcellent
)

func (s SpeedCategory) String() string {
	switch s {
	case SpeedExcellent:
		return "excellent"
	case SpeedVeryGood:
		return "very_good"
	case SpeedGood:
		return "good"
	case SpeedAverage:
		return "average"
	case SpeedLow:
		return "low"
	case SpeedVeryLow:
		return "very_low"
	default:
		return "unknown"
	}
}

// Throughput thresholds in Mbps for each speed category.
const (
	thresholdExcellent = 50
	thresholdVeryGood  = 20
	thresholdGood      = 10
	thresholdAverage   = 5
	thresholdLow       = 2
)

// Stability bounds: a connection is stable when latency is under
// stableMaxLatency and throughput is above stableMinMbps.
const (
	stableMaxLatency = 500 * time.Millisecond
	stableMinMbps    = 5
)

// ConnectionInfo is the immutable result of a single probe.
type ConnectionInfo struct {
	Latency       time.Duration
	DownloadMbps  float64
	SpeedCategory SpeedCategory
	IsStable      bool
}

// Categorize maps a throughput measurement to a speed category.
func Categorize(mbps float64) SpeedCategory {
	switch {
	case mbps >= thresholdExcellent:
		return SpeedExcellent
	case mbps >= thresholdVeryGood:
		return SpeedVeryGood
	case mbps >= thresholdGood:
		return SpeedGood
	case mbps >= thresholdAverage:
		return SpeedAverage
	case mbps >= thresholdLow:
		return SpeedLow
	default:
		return SpeedVeryLow
	}
}

// DefaultInfo is the conservative fallback used when a probe fails.
// It assumes a usable but unremarkable connection so playback can start
// with middle-of-the-road buffering.
func DefaultInfo() ConnectionInfo {
	return ConnectionInfo{
		Latency:       500 * time.Millisecond,
		DownloadMbps:  5,
		SpeedCategory: SpeedAverage,
		IsStable:      false,
	}
}

// Default prober configuration.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultSampleSize = 512 * 1024
)

// Config holds prober configuration.
type Config struct {
	// Timeout bounds the entire probe: latency round trip plus body sample.
	Timeout time.Duration

	// SampleSize is the maximum number of body bytes read for the
	// throughput estimate.
	SampleSize int64

	// Logger is the structured logger. Defaults to slog.Default().
	Logger *slog.Logger

	// HTTPClient is the client used for the probe request. If nil, a
	// client with retries disabled is created; retries would distort the
	// latency measurement.
	HTTPClient *httpclient.Client

	// Observe, when set, receives the outcome ("success" or "failure")
	// and total duration of every probe. Used for metrics export.
	Observe func(outcome string, elapsed time.Duration)
}

// Prober performs pre-playback network measurements.
type Prober struct {
	client     *httpclient.Client
	timeout    time.Duration
	sampleSize int64
	logger     *slog.Logger
	observe    func(outcome string, elapsed time.Duration)
}

// New creates a Prober, filling zero config fields with defaults.
func New(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultSampleSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		clientCfg := httpclient.DefaultConfig()
		clientCfg.RetryAttempts = 0
		clientCfg.Timeout = cfg.Timeout
		clientCfg.Logger = cfg.Logger
		cfg.HTTPClient = httpclient.New(clientCfg)
	}

	return &Prober{
		client:     cfg.HTTPClient,
		timeout:    cfg.Timeout,
		sampleSize: cfg.SampleSize,
		logger:     observability.WithComponent(cfg.Logger, "probe"),
		observe:    cfg.Observe,
	}
}

// Probe measures round-trip latency and download throughput for url.
// Latency is the time from request to response headers; throughput is
// estimated from a capped body sample. On any failure the conservative
// default is returned so playback start is never blocked.
func (p *Prober) Probe(ctx context.Context, url string) ConnectionInfo {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	outcome := "failure"
	defer func() {
		if p.observe != nil {
			p.observe(outcome, time.Since(start))
		}
	}()

	resp, err := p.client.Get(ctx, url)
	if err != nil {
		p.logger.Warn("probe request failed, using conservative defaults",
			slog.String("url", observability.SanitizeURL(url)),
			slog.String("error", err.Error()),
		)
		return DefaultInfo()
	}
	defer resp.Body.Close()

	// Headers are in; this is the round trip.
	latency := time.Since(start)

	if resp.StatusCode >= 400 {
		p.logger.Warn("probe got error status, using conservative defaults",
			slog.String("url", observability.SanitizeURL(url)),
			slog.Int("status", resp.StatusCode),
		)
		return DefaultInfo()
	}

	readStart := time.Now()
	sampled, err := io.Copy(io.Discard, io.LimitReader(resp.Body, p.sampleSize))
	elapsed := time.Since(readStart)

	if sampled == 0 {
		if err != nil {
			p.logger.Warn("probe body read failed, using conservative defaults",
				slog.String("url", observability.SanitizeURL(url)),
				slog.String("error", err.Error()),
			)
			return DefaultInfo()
		}
		outcome = "success"
		// Headers-only response: keep the measured latency, assume the
		// default throughput.
		info := DefaultInfo()
		info.Latency = latency
		info.IsStable = latency < stableMaxLatency && info.DownloadMbps > stableMinMbps
		return info
	}

	// A tiny fast sample can clock in below timer resolution.
	if elapsed < time.Millisecond {
		elapsed = time.Millisecond
	}

	outcome = "success"
	mbps := float64(sampled) * 8 / 1e6 / elapsed.Seconds()
	info := ConnectionInfo{
		Latency:       latency,
		DownloadMbps:  mbps,
		SpeedCategory: Categorize(mbps),
		IsStable:      latency < stableMaxLatency && mbps > stableMinMbps,
	}

	p.logger.Info("probe completed",
		slog.String("url", observability.SanitizeURL(url)),
		slog.Duration("latency", info.Latency),
		slog.Float64("download_mbps", info.DownloadMbps),
		slog.String("category", info.SpeedCategory.String()),
		slog.Bool("stable", info.IsStable),
		slog.Int64("sampled_bytes", sampled),
	)

	return info
}
