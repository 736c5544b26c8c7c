// Package videocontrol maps recognized gestures to video player actions.
package videocontrol

import (
	"errors"
	"time"
)

// ErrPlayerNotReady is returned by players that have not loaded yet.
var ErrPlayerNotReady = errors.New("player not ready")

// PlayerState mirrors the embedded player's state codes.
type PlayerState int

const (
	StateUnstarted PlayerState = -1
	StateEnded     PlayerState = 0
	StatePlaying   PlayerState = 1
	StatePaused    PlayerState = 2
	StateBuffering PlayerState = 3
	StateCued      PlayerState = 5
)

func (s PlayerState) String() string {
	switch s {
	case StateEnded:
		return "ended"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateCued:
		return "cued"
	default:
		return "unstarted"
	}
}

// Player is an externally owned video player. The mapper only calls it.
type Player interface {
	Ready() bool
	CurrentTime() (time.Duration, error)
	Duration() time.Duration
	SeekTo(t time.Duration) error
	Play() error
	Pause() error
	State() PlayerState
}
