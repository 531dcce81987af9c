package probe

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		mbps float64
		want SpeedCategory
	}{
		{mbps: 100, want: SpeedExcellent},
		{mbps: 50, want: SpeedExcellent},
		{mbps: 49.9, want: SpeedVeryGood},
		{mbps: 20, want: SpeedVeryGood},
		{mbps: 15, want: SpeedGood},
		{mbps: 10, want: SpeedGood},
		{mbps: 7, want: SpeedAverage},
		{mbps: 5, want: SpeedAverage},
		{mbps: 3, want: SpeedLow},
		{mbps: 2, want: SpeedLow},
		{mbps: 1, want: SpeedVeryLow},
		{mbps: 0, want: SpeedVeryLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.mbps), "mbps=%v", tt.mbps)
	}
}

func TestDefaultInfo(t *testing.T) {
	info := DefaultInfo()
	assert.Equal(t, 500*time.Millisecond, info.Latency)
	assert.Equal(t, 5.0, info.DownloadMbps)
	assert.Equal(t, SpeedAverage, info.SpeedCategory)
	assert.False(t, info.IsStable)
}

func TestProber_Probe(t *testing.T) {
	t.Run("measures a healthy upstream", func(t *testing.T) {
		payload := bytes.Repeat([]byte("x"), 256*1024)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write(payload)
		}))
		defer server.Close()

		p := New(Config{Timeout: 5 * time.Second, SampleSize: 256 * 1024})
		info := p.Probe(context.Background(), server.URL)

		// Loopback: fast and stable.
		assert.Greater(t, info.DownloadMbps, float64(stableMinMbps))
		assert.Less(t, info.Latency, stableMaxLatency)
		assert.True(t, info.IsStable)
		assert.NotEqual(t, SpeedUnknown, info.SpeedCategory)
	})

	t.Run("caps the body sample", func(t *testing.T) {
		served := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chunk := bytes.Repeat([]byte("y"), 64*1024)
			for i := 0; i < 64; i++ { // 4MiB available
				n, err := w.Write(chunk)
				served += n
				if err != nil {
					return
				}
			}
		}))
		defer server.Close()

		p := New(Config{SampleSize: 128 * 1024})
		info := p.Probe(context.Background(), server.URL)
		assert.Greater(t, info.DownloadMbps, 0.0)
	})

	t.Run("unreachable host returns conservative default", func(t *testing.T) {
		p := New(Config{Timeout: time.Second})
		info := p.Probe(context.Background(), "http://127.0.0.1:1/stream.ts")
		assert.Equal(t, DefaultInfo(), info)
	})

	t.Run("error status returns conservative default", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		p := New(Config{})
		info := p.Probe(context.Background(), server.URL)
		assert.Equal(t, DefaultInfo(), info)
	})

	t.Run("empty body keeps measured latency", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		p := New(Config{})
		info := p.Probe(context.Background(), server.URL)
		assert.Less(t, info.Latency, stableMaxLatency)
		assert.Equal(t, DefaultInfo().DownloadMbps, info.DownloadMbps)
	})

	t.Run("reports outcome and duration through the observe hook", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(bytes.Repeat([]byte("z"), 4096))
		}))
		defer server.Close()

		var outcomes []string
		observe := func(outcome string, elapsed time.Duration) {
			outcomes = append(outcomes, outcome)
			assert.Greater(t, elapsed, time.Duration(0))
		}

		p := New(Config{SampleSize: 4096, Observe: observe})
		p.Probe(context.Background(), server.URL)
		p.Probe(context.Background(), "http://127.0.0.1:1/stream.ts")

		require.Equal(t, []string{"success", "failure"}, outcomes)
	})

	t.Run("cancelled context returns conservative default", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(time.Second)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := New(Config{})
		info := p.Probe(ctx, server.URL)
		assert.Equal(t, DefaultInfo(), info)
	})
}

func TestSpeedCategory_String(t *testing.T) {
	assert.Equal(t, "excellent", SpeedExcellent.String())
	assert.Equal(t, "very_good", SpeedVeryGood.String())
	assert.Equal(t, "unknown", SpeedUnknown.String())
	assert.Equal(t, "very_low", SpeedVeryLow.String())
}
