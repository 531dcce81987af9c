package playback

import (
	"fmt"
	"strings"
	"time"

	"github.com/pulsetv/pulsetv/internal/probe"
)

// ContentType tags what kind of stream a URL points at. It is supplied by
// the playlist layer; this package only uses it to shape buffering.
type ContentType int

const (
	ContentUnknown ContentType = iota
	ContentLive
	ContentMovie
	ContentSeries
)

func (c ContentType) String() string {
	switch c {
	case ContentLive:
		return "live"
	case ContentMovie:
		return "movie"
	case ContentSeries:
		return "series"
	default:
		return "unknown"
	}
}

// ParseContentType parses a content type name as found in playlists or CLI
// flags. Unrecognised values map to ContentUnknown.
func ParseContentType(s string) ContentType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live", "channel", "tv":
		return ContentLive
	case "movie", "vod", "film":
		return ContentMovie
	case "series", "episode", "show":
		return ContentSeries
	default:
		return ContentUnknown
	}
}

// PlayerSettings is the buffering and reconnect configuration handed to the
// player. It is owned by the active session and replaced wholesale on every
// controller-driven change, never partially mutated from outside.
type PlayerSettings struct {
	NetworkCaching             time.Duration `json:"network_caching"`
	LiveCaching                time.Duration `json:"live_caching"`
	FileCaching                time.Duration `json:"file_caching"`
	MinBufferBeforePlayPercent int           `json:"min_buffer_before_play_percent"`
	ConnectTimeout             time.Duration `json:"connect_timeout"`
	AutoReconnect              bool          `json:"auto_reconnect"`
	ReconnectAttempts          int           `json:"reconnect_attempts"`
	ReconnectDelay             time.Duration `json:"reconnect_delay"`
	HardwareAcceleration       bool          `json:"hardware_acceleration"`
	SkipFramesOnLag            bool          `json:"skip_frames_on_lag"`
	AdaptiveQuality            bool          `json:"adaptive_quality"`
	ResumePlayback             bool          `json:"resume_playback"`
	PreferredQuality           QualityTier   `json:"preferred_quality"`
}

// Buffering bands by measured download speed. Buffer sizes scale inversely
// with speed: the faster the connection, the smaller the buffer and the
// quicker the start.
const (
	cachingExcellent = 2000 * time.Millisecond
	cachingVeryGood  = 3000 * time.Millisecond
	cachingGood      = 5000 * time.Millisecond
	cachingAverage   = 8000 * time.Millisecond
	cachingSlow      = 12000 * time.Millisecond

	defaultConnectTimeout = 10 * time.Second

	// latencyPenaltyThreshold is the round-trip latency above which caching
	// and timeouts are scaled up to ride out jitter.
	latencyPenaltyThreshold = 300 * time.Millisecond
	latencyCachingFactor    = 5
	latencyTimeoutFactor    = 10

	minLiveCaching = 2000 * time.Millisecond
)

// Reconnect policy per connection stability.
const (
	stableReconnectAttempts   = 3
	stableReconnectDelay      = 2000 * time.Millisecond
	unstableReconnectAttempts = 5
	unstableReconnectDelay    = 3000 * time.Millisecond
)

// ResolveSettings turns a probe result and a content-type tag into initial
// player settings.
func ResolveSettings(info probe.ConnectionInfo, contentType ContentType) PlayerSettings {
	s := PlayerSettings{
		ConnectTimeout:       defaultConnectTimeout,
		AutoReconnect:        true,
		HardwareAcceleration: true,
		AdaptiveQuality:      true,
		PreferredQuality:     QualityAuto,
	}

	switch {
	case info.DownloadMbps >= 50:
		s.NetworkCaching = cachingExcellent
		s.MinBufferBeforePlayPercent = 5
	case info.DownloadMbps >= 20:
		s.NetworkCaching = cachingVeryGood
		s.MinBufferBeforePlayPercent = 8
	case info.DownloadMbps >= 10:
		s.NetworkCaching = cachingGood
		s.MinBufferBeforePlayPercent = 10
	case info.DownloadMbps >= 5:
		s.NetworkCaching = cachingAverage
		s.MinBufferBeforePlayPercent = 15
	default:
		s.NetworkCaching = cachingSlow
		s.MinBufferBeforePlayPercent = 20
		s.PreferredQuality = QualityLow
	}

	// High-latency links need proportionally deeper buffers and more
	// patient connects, whatever the raw throughput says.
	if info.Latency > latencyPenaltyThreshold {
		if floor := info.Latency * latencyCachingFactor; s.NetworkCaching < floor {
			s.NetworkCaching = floor
		}
		if floor := info.Latency * latencyTimeoutFactor; s.ConnectTimeout < floor {
			s.ConnectTimeout = floor
		}
	}

	s.LiveCaching = s.NetworkCaching
	s.FileCaching = s.NetworkCaching + time.Second

	switch contentType {
	case ContentLive:
		s.LiveCaching = maxDuration(minLiveCaching, s.NetworkCaching-time.Second)
		s.SkipFramesOnLag = true
	case ContentMovie, ContentSeries:
		s.NetworkCaching = s.NetworkCaching * 13 / 10
		s.FileCaching = s.NetworkCaching + time.Second
		s.ResumePlayback = true
	}

	if info.IsStable {
		s.ReconnectAttempts = stableReconnectAttempts
		s.ReconnectDelay = stableReconnectDelay
	} else {
		s.ReconnectAttempts = unstableReconnectAttempts
		s.ReconnectDelay = unstableReconnectDelay
	}

	return s
}

// QuickResolve returns a static preset for the content type without probing.
// It exists for low-latency startup; callers typically probe in the
// background and apply the measured result afterward.
func QuickResolve(contentType ContentType) PlayerSettings {
	s := PlayerSettings{
		NetworkCaching:             4000 * time.Millisecond,
		LiveCaching:                3000 * time.Millisecond,
		FileCaching:                5000 * time.Millisecond,
		MinBufferBeforePlayPercent: 10,
		ConnectTimeout:             defaultConnectTimeout,
		AutoReconnect:              true,
		ReconnectAttempts:          stableReconnectAttempts,
		ReconnectDelay:             stableReconnectDelay,
		HardwareAcceleration:       true,
		AdaptiveQuality:            true,
		PreferredQuality:           QualityAuto,
	}

	switch contentType {
	case ContentLive:
		s.NetworkCaching = 3000 * time.Millisecond
		s.LiveCaching = 2500 * time.Millisecond
		s.SkipFramesOnLag = true
	case ContentMovie, ContentSeries:
		s.NetworkCaching = 5000 * time.Millisecond
		s.FileCaching = 6000 * time.Millisecond
		s.ResumePlayback = true
	}

	return s
}

// Summary returns a one-line description of the settings for status text.
func (s PlayerSettings) Summary() string {
	return fmt.Sprintf("network=%s live=%s reconnect=%dx%s quality=%s",
		s.NetworkCaching, s.LiveCaching, s.ReconnectAttempts, s.ReconnectDelay, s.PreferredQuality)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
