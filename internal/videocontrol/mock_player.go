package videocontrol

import (
	"sync"
	"time"
)

// MockPlayer is an in-memory Player.
type MockPlayer struct {
	mu       sync.Mutex
	ready    bool
	position time.Duration
	duration time.Duration
	state    PlayerState
	seeks    []time.Duration
	err      error
}

// NewMockPlayer creates a ready, paused player of the given duration.
func NewMockPlayer(duration time.Duration) *MockPlayer {
	return &MockPlayer{ready: true, duration: duration, state: StatePaused}
}

// SetReady sets the ready flag.
func (p *MockPlayer) SetReady(ready bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = ready
}

// SetPosition sets the playback position.
func (p *MockPlayer) SetPosition(t time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = t
}

// SetError makes player calls fail with err.
func (p *MockPlayer) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *MockPlayer) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *MockPlayer) CurrentTime() (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, p.err
}

func (p *MockPlayer) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *MockPlayer) SeekTo(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.seeks = append(p.seeks, t)
	p.position = t
	return nil
}

func (p *MockPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.state = StatePlaying
	return nil
}

func (p *MockPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.state = StatePaused
	return nil
}

func (p *MockPlayer) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Seeks returns every position passed to SeekTo.
func (p *MockPlayer) Seeks() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.seeks...)
}
