package playback

import (
	"context"
	"sync"
)

// fakePlayer is the mocked external player used across the package tests.
type fakePlayer struct {
	mu       sync.Mutex
	playing  bool
	playErr  error
	playURLs []string
	stops    int

	// playingAfter makes IsPlaying true once Play has been called at
	// least this many times. Zero means playing right after any Play.
	playingAfter int

	subs   map[int]PlayerEvents
	nextID int
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{subs: make(map[int]PlayerEvents)}
}

func (p *fakePlayer) Play(_ context.Context, url string, _ PlayerSettings) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return p.playErr
	}
	p.playURLs = append(p.playURLs, url)
	p.playing = len(p.playURLs) >= p.playingAfter
	return nil
}

func (p *fakePlayer) Stop(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	p.playing = false
	return nil
}

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) Subscribe(events PlayerEvents) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subs[id] = events
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

func (p *fakePlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.playURLs)
}

func (p *fakePlayer) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

func (p *fakePlayer) subscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// emitBuffer delivers a buffer sample to every subscriber, the way a real
// player would from its own goroutine.
func (p *fakePlayer) emitBuffer(pct float64) {
	for _, events := range p.snapshotSubs() {
		if events.OnBufferSample != nil {
			events.OnBufferSample(pct)
		}
	}
}

func (p *fakePlayer) emitError() {
	for _, events := range p.snapshotSubs() {
		if events.OnError != nil {
			events.OnError()
		}
	}
}

func (p *fakePlayer) snapshotSubs() []PlayerEvents {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayerEvents, 0, len(p.subs))
	for _, events := range p.subs {
		out = append(out, events)
	}
	return out
}
