// Package netplayer implements a headless network stream player. It pulls
// the stream over HTTP into a bounded in-memory buffer that drains at the
// nominal playback bitrate, and reports cache fill levels, errors, and
// end-of-stream through the playback telemetry callbacks. It exists so the
// adaptation loop can run against real streams without a rendering frontend.
package netplayer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pulsetv/pulsetv/internal/config"
	"github.com/pulsetv/pulsetv/internal/httpclient"
	"github.com/pulsetv/pulsetv/internal/observability"
	"github.com/pulsetv/pulsetv/internal/playback"
	"github.com/pulsetv/pulsetv/internal/version"
)

const (
	readChunkSize  = 32 * 1024
	drainInterval  = 100 * time.Millisecond
	sampleInterval = 500 * time.Millisecond

	// backpressurePause is how long the reader waits when the buffer is full.
	backpressurePause = 50 * time.Millisecond
)

// Player pulls a stream over HTTP and models playback consumption. It
// implements the playback player interface.
type Player struct {
	logger     *slog.Logger
	bufferSize int64
	drainBps   float64 // bytes per second

	mu       sync.Mutex
	playing  bool
	buffered int64
	target   int64
	cancel   context.CancelFunc
	wg       *sync.WaitGroup

	subsMu sync.Mutex
	subs   map[int]playback.PlayerEvents
	nextID int
}

// New creates a Player from the player configuration.
func New(cfg config.PlayerConfig, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		logger:     observability.WithComponent(logger, "netplayer"),
		bufferSize: int64(cfg.BufferSize),
		drainBps:   cfg.DrainMbps * 1e6 / 8,
		subs:       make(map[int]playback.PlayerEvents),
	}
}

// Play connects to url and starts pulling the stream. The connection is made
// synchronously so startup failures surface to the caller; an already active
// stream is torn down first. The buffer target is derived from the settings'
// network caching duration.
func (p *Player) Play(ctx context.Context, url string, settings playback.PlayerSettings) error {
	p.stop(false)

	connectTimeout := settings.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}

	// Reconnecting on failure is the adaptation loop's job; the transport
	// itself must not retry, compress, or time out mid-stream.
	clientCfg := httpclient.DefaultConfig()
	clientCfg.RetryAttempts = 0
	clientCfg.UserAgent = version.UserAgent()
	clientCfg.Logger = p.logger
	clientCfg.EnableDecompression = false
	clientCfg.BaseClient = &http.Client{
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
			ResponseHeaderTimeout: connectTimeout,
		},
	}
	client := httpclient.New(clientCfg)

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("building stream request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("connecting to stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	target := int64(settings.NetworkCaching.Seconds() * p.drainBps)
	if target <= 0 || target > p.bufferSize {
		target = p.bufferSize
	}

	wg := &sync.WaitGroup{}

	p.mu.Lock()
	p.playing = true
	p.buffered = 0
	p.target = target
	p.cancel = cancel
	p.wg = wg
	p.mu.Unlock()

	p.logger.Info("stream started",
		slog.String("url", observability.SanitizeURL(url)),
		slog.Int64("buffer_target", target),
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		p.readLoop(streamCtx, resp.Body)
	}()
	go func() {
		defer wg.Done()
		p.drainLoop(streamCtx)
	}()

	return nil
}

// readLoop pulls stream bytes into the buffer until the stream ends or the
// context is cancelled.
func (p *Player) readLoop(ctx context.Context, body io.ReadCloser) {
	defer body.Close()

	chunk := make([]byte, readChunkSize)
	for {
		if ctx.Err() != nil {
			return
		}

		if p.bufferFull() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backpressurePause):
			}
			continue
		}

		n, err := body.Read(chunk)
		if n > 0 {
			p.addBuffered(int64(n))
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.setPlaying(false)
			if errors.Is(err, io.EOF) {
				p.logger.Info("stream ended")
				p.emit(func(e playback.PlayerEvents) { call(e.OnEndReached) })
			} else {
				p.logger.Warn("stream read failed", slog.String("error", err.Error()))
				p.emit(func(e playback.PlayerEvents) { call(e.OnError) })
			}
			return
		}
	}
}

// drainLoop consumes buffered bytes at the nominal playback rate and emits
// periodic cache fill samples.
func (p *Player) drainLoop(ctx context.Context) {
	drain := time.NewTicker(drainInterval)
	defer drain.Stop()
	sample := time.NewTicker(sampleInterval)
	defer sample.Stop()

	drainPerTick := int64(p.drainBps * drainInterval.Seconds())

	for {
		select {
		case <-ctx.Done():
			return
		case <-drain.C:
			p.addBuffered(-drainPerTick)
		case <-sample.C:
			pct := p.fillPercent()
			p.emit(func(e playback.PlayerEvents) {
				if e.OnBufferSample != nil {
					e.OnBufferSample(pct)
				}
			})
		}
	}
}

// Stop tears down the stream and waits for the loops to exit.
func (p *Player) Stop(ctx context.Context) error {
	p.stop(true)
	return nil
}

func (p *Player) stop(notify bool) {
	p.mu.Lock()
	cancel := p.cancel
	wg := p.wg
	wasPlaying := p.playing
	p.cancel = nil
	p.wg = nil
	p.playing = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wg != nil {
		wg.Wait()
	}
	if notify && wasPlaying {
		p.logger.Info("stream stopped")
		p.emit(func(e playback.PlayerEvents) { call(e.OnStopped) })
	}
}

// IsPlaying reports whether the stream is connected and being consumed.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Subscribe registers telemetry callbacks and returns an unsubscribe func.
func (p *Player) Subscribe(events playback.PlayerEvents) func() {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	id := p.nextID
	p.nextID++
	p.subs[id] = events
	return func() {
		p.subsMu.Lock()
		defer p.subsMu.Unlock()
		delete(p.subs, id)
	}
}

// BufferedBytes returns the current buffer occupancy.
func (p *Player) BufferedBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffered
}

func (p *Player) setPlaying(playing bool) {
	p.mu.Lock()
	p.playing = playing
	p.mu.Unlock()
}

func (p *Player) bufferFull() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffered >= p.bufferSize
}

func (p *Player) addBuffered(delta int64) {
	p.mu.Lock()
	p.buffered += delta
	if p.buffered < 0 {
		p.buffered = 0
	}
	if p.buffered > p.bufferSize {
		p.buffered = p.bufferSize
	}
	p.mu.Unlock()
}

// fillPercent reports buffer occupancy relative to the target, capped at 100.
func (p *Player) fillPercent() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.target <= 0 {
		return 0
	}
	pct := float64(p.buffered) / float64(p.target) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

func (p *Player) emit(fn func(playback.PlayerEvents)) {
	p.subsMu.Lock()
	subs := make([]playback.PlayerEvents, 0, len(p.subs))
	for _, e := range p.subs {
		subs = append(subs, e)
	}
	p.subsMu.Unlock()

	for _, e := range subs {
		fn(e)
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
