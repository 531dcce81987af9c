package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pulsetv/pulsetv/internal/probe"
)

func TestResolveSettings(t *testing.T) {
	t.Run("fast stable live connection", func(t *testing.T) {
		info := probe.ConnectionInfo{
			Latency:       50 * time.Millisecond,
			DownloadMbps:  60,
			SpeedCategory: probe.SpeedExcellent,
			IsStable:      true,
		}
		s := ResolveSettings(info, ContentLive)

		assert.Equal(t, 2000*time.Millisecond, s.NetworkCaching)
		assert.Equal(t, 2000*time.Millisecond, s.LiveCaching)
		assert.Equal(t, 3, s.ReconnectAttempts)
		assert.Equal(t, 2000*time.Millisecond, s.ReconnectDelay)
		assert.True(t, s.SkipFramesOnLag)
		assert.True(t, s.AutoReconnect)
		assert.Equal(t, QualityAuto, s.PreferredQuality)
	})

	t.Run("slow high-latency movie connection", func(t *testing.T) {
		info := probe.ConnectionInfo{
			Latency:       400 * time.Millisecond,
			DownloadMbps:  3,
			SpeedCategory: probe.SpeedLow,
			IsStable:      false,
		}
		s := ResolveSettings(info, ContentMovie)

		assert.True(t, s.AdaptiveQuality)
		assert.Equal(t, QualityLow, s.PreferredQuality)
		assert.GreaterOrEqual(t, s.NetworkCaching, 2000*time.Millisecond)
		assert.True(t, s.ResumePlayback)
		assert.Equal(t, 5, s.ReconnectAttempts)
		assert.Equal(t, 3000*time.Millisecond, s.ReconnectDelay)
		// 400ms*10 is still under the 10s default, so the timeout holds.
		assert.Equal(t, 10*time.Second, s.ConnectTimeout)
	})

	t.Run("speed bands scale caching inversely", func(t *testing.T) {
		tests := []struct {
			mbps float64
			want time.Duration
		}{
			{mbps: 80, want: 2000 * time.Millisecond},
			{mbps: 30, want: 3000 * time.Millisecond},
			{mbps: 12, want: 5000 * time.Millisecond},
			{mbps: 6, want: 8000 * time.Millisecond},
			{mbps: 1, want: 12000 * time.Millisecond},
		}
		for _, tt := range tests {
			info := probe.ConnectionInfo{Latency: 50 * time.Millisecond, DownloadMbps: tt.mbps}
			s := ResolveSettings(info, ContentUnknown)
			assert.Equal(t, tt.want, s.NetworkCaching, "mbps=%v", tt.mbps)
		}
	})

	t.Run("latency floor raises network caching", func(t *testing.T) {
		info := probe.ConnectionInfo{Latency: 800 * time.Millisecond, DownloadMbps: 60}
		s := ResolveSettings(info, ContentUnknown)
		// 800ms * 5 = 4s beats the 2s band value.
		assert.Equal(t, 4000*time.Millisecond, s.NetworkCaching)

		// Only truly slow round trips push the connect timeout past 10s.
		info.Latency = 1200 * time.Millisecond
		s = ResolveSettings(info, ContentUnknown)
		assert.Equal(t, 6000*time.Millisecond, s.NetworkCaching)
		assert.Equal(t, 12*time.Second, s.ConnectTimeout)
	})

	t.Run("live caching floors at two seconds", func(t *testing.T) {
		info := probe.ConnectionInfo{Latency: 50 * time.Millisecond, DownloadMbps: 60}
		s := ResolveSettings(info, ContentLive)
		// max(2000, 2000-1000)
		assert.Equal(t, 2000*time.Millisecond, s.LiveCaching)
	})

	t.Run("series inflates caching like movies", func(t *testing.T) {
		info := probe.ConnectionInfo{Latency: 50 * time.Millisecond, DownloadMbps: 12}
		s := ResolveSettings(info, ContentSeries)
		assert.Equal(t, 6500*time.Millisecond, s.NetworkCaching) // 5000 * 1.3
		assert.True(t, s.ResumePlayback)
		assert.False(t, s.SkipFramesOnLag)
	})
}

func TestQuickResolve(t *testing.T) {
	t.Run("live preset", func(t *testing.T) {
		s := QuickResolve(ContentLive)
		assert.Equal(t, 3000*time.Millisecond, s.NetworkCaching)
		assert.Equal(t, 2500*time.Millisecond, s.LiveCaching)
		assert.True(t, s.SkipFramesOnLag)
		assert.True(t, s.AutoReconnect)
		assert.True(t, s.AdaptiveQuality)
	})

	t.Run("movie preset", func(t *testing.T) {
		s := QuickResolve(ContentMovie)
		assert.Equal(t, 5000*time.Millisecond, s.NetworkCaching)
		assert.True(t, s.ResumePlayback)
		assert.False(t, s.SkipFramesOnLag)
	})

	t.Run("unknown preset", func(t *testing.T) {
		s := QuickResolve(ContentUnknown)
		assert.Equal(t, 4000*time.Millisecond, s.NetworkCaching)
		assert.Equal(t, 3, s.ReconnectAttempts)
	})
}

func TestParseContentType(t *testing.T) {
	tests := []struct {
		in   string
		want ContentType
	}{
		{in: "live", want: ContentLive},
		{in: "LIVE", want: ContentLive},
		{in: "tv", want: ContentLive},
		{in: "movie", want: ContentMovie},
		{in: "vod", want: ContentMovie},
		{in: "series", want: ContentSeries},
		{in: " episode ", want: ContentSeries},
		{in: "banana", want: ContentUnknown},
		{in: "", want: ContentUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseContentType(tt.in), "input=%q", tt.in)
	}
}

func TestPlayerSettings_Summary(t *testing.T) {
	s := QuickResolve(ContentLive)
	sum := s.Summary()
	assert.Contains(t, sum, "network=3s")
	assert.Contains(t, sum, "reconnect=3x2s")
}
