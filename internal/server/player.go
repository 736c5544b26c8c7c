package server

import (
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/videocontrol"
)

// Broadcaster sends a message to the connected pages.
type Broadcaster interface {
	Broadcast(msgType string, data any)
}

// PlayerReport is the player state a page sends in a player_state message.
// Times are in seconds.
type PlayerReport struct {
	Ready       bool                     `json:"ready"`
	CurrentTime float64                  `json:"current_time"`
	Duration    float64                  `json:"duration"`
	State       videocontrol.PlayerState `json:"state"`
}

// PlayerCommand is sent to pages in a player_command message.
type PlayerCommand struct {
	Command string  `json:"command"`
	Seconds float64 `json:"seconds,omitempty"`
}

// Player commands.
const (
	CommandSeek  = "seek"
	CommandPlay  = "play"
	CommandPause = "pause"
)

// RemotePlayer is a videocontrol.Player for the video embedded in the demo
// page. It mirrors the last reported state and sends commands over the hub.
// While playing, the position is extrapolated from the last report.
type RemotePlayer struct {
	out Broadcaster
	now func() time.Time

	mu         sync.Mutex
	report     PlayerReport
	reportedAt time.Time
}

// NewRemotePlayer creates a player that is not ready until the first report.
func NewRemotePlayer(out Broadcaster) *RemotePlayer {
	return &RemotePlayer{
		out:    out,
		now:    time.Now,
		report: PlayerReport{State: videocontrol.StateUnstarted},
	}
}

// Update records a state report from the page.
func (p *RemotePlayer) Update(r PlayerReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.report = r
	p.reportedAt = p.now()
}

func (p *RemotePlayer) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.report.Ready
}

func (p *RemotePlayer) CurrentTime() (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.report.Ready {
		return 0, videocontrol.ErrPlayerNotReady
	}
	return p.positionLocked(), nil
}

func (p *RemotePlayer) positionLocked() time.Duration {
	pos := seconds(p.report.CurrentTime)
	if p.report.State == videocontrol.StatePlaying {
		pos += p.now().Sub(p.reportedAt)
	}
	if d := seconds(p.report.Duration); d > 0 && pos > d {
		pos = d
	}
	return pos
}

func (p *RemotePlayer) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return seconds(p.report.Duration)
}

func (p *RemotePlayer) State() videocontrol.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.report.State
}

// SeekTo sends a seek command and moves the mirrored position.
func (p *RemotePlayer) SeekTo(t time.Duration) error {
	p.mu.Lock()
	if !p.report.Ready {
		p.mu.Unlock()
		return videocontrol.ErrPlayerNotReady
	}
	p.report.CurrentTime = t.Seconds()
	p.reportedAt = p.now()
	p.mu.Unlock()

	p.out.Broadcast(TypePlayerCommand, PlayerCommand{Command: CommandSeek, Seconds: t.Seconds()})
	return nil
}

func (p *RemotePlayer) Play() error {
	return p.setState(CommandPlay, videocontrol.StatePlaying)
}

func (p *RemotePlayer) Pause() error {
	return p.setState(CommandPause, videocontrol.StatePaused)
}

func (p *RemotePlayer) setState(command string, state videocontrol.PlayerState) error {
	p.mu.Lock()
	if !p.report.Ready {
		p.mu.Unlock()
		return videocontrol.ErrPlayerNotReady
	}
	now := p.now()
	p.report.CurrentTime = p.positionLocked().Seconds()
	p.report.State = state
	p.reportedAt = now
	p.mu.Unlock()

	p.out.Broadcast(TypePlayerCommand, PlayerCommand{Command: command})
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
