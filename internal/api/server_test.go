package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsetv/pulsetv/internal/config"
	"github.com/pulsetv/pulsetv/internal/device"
	"github.com/pulsetv/pulsetv/internal/metrics"
	"github.com/pulsetv/pulsetv/internal/playback"
)

// stubPlayer satisfies the player interface without doing anything.
type stubPlayer struct{}

func (stubPlayer) Play(context.Context, string, playback.PlayerSettings) error { return nil }
func (stubPlayer) Stop(context.Context) error                                  { return nil }
func (stubPlayer) IsPlaying() bool                                             { return true }
func (stubPlayer) Subscribe(playback.PlayerEvents) func()                      { return func() {} }

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled:         true,
		Host:            "127.0.0.1",
		Port:            0,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}
}

func newTestServer(t *testing.T) (*Server, *playback.Manager) {
	t.Helper()
	manager := playback.NewManager(nil)
	srv := NewServer(testAPIConfig(), Options{
		Sessions: manager,
		Devices:  device.NewCollector(),
		Metrics:  metrics.NewRecorder().Handler(),
	})
	return srv, manager
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestServer_Sessions(t *testing.T) {
	srv, manager := newTestServer(t)
	ctx := context.Background()

	rec := get(t, srv, "/api/v1/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	session := manager.Create(stubPlayer{}, playback.SessionOptions{})
	require.NoError(t, session.Start(ctx, "http://example.com/live.ts", playback.ContentLive))
	defer func() { _ = session.Stop(ctx) }()

	rec = get(t, srv, "/api/v1/sessions")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []playback.SessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, session.ID(), list[0].ID)
	assert.True(t, list[0].Active)

	rec = get(t, srv, "/api/v1/sessions/"+session.ID())
	require.Equal(t, http.StatusOK, rec.Code)

	var snap playback.SessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotNil(t, snap.Controller)
	assert.Equal(t, "live", snap.Controller.ContentType)
}

func TestServer_SessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/v1/sessions/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "session not found")
}

func TestServer_Device(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/v1/device")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "device")
	assert.Contains(t, body, "hardware_acceleration")
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pulsetv_sessions_active")
}

func TestServer_RunShutsDownOnCancel(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	// Give the listener a moment, then cancel.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestMiddleware_RecoveryReturns500(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Router().Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	})

	rec := get(t, srv, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
