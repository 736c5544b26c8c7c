package videocontrol

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/logging"
)

// Defaults.
const (
	DefaultSeekOffset    = 10 * time.Second
	DefaultMinConfidence = 70
	DefaultCooldown      = 2 * time.Second
	LastActionTTL        = 3 * time.Second
)

// Action is a video control action.
type Action string

const (
	ActionForward   Action = "forward"
	ActionBackward  Action = "backward"
	ActionPlayPause Action = "play_pause"
)

var actionMessages = map[Action]string{
	ActionForward:   "Video adelantado 10 segundos",
	ActionBackward:  "Video retrocedido 10 segundos",
	ActionPlayPause: "Video pausado/reproducido",
}

// Message is the user-facing description of a.
func (a Action) Message() string {
	if m, ok := actionMessages[a]; ok {
		return m
	}
	return string(a)
}

// ActionFor returns the action bound to label.
func ActionFor(label gesture.Label) (Action, bool) {
	switch label {
	case gesture.LabelThumbUp:
		return ActionForward, true
	case gesture.LabelThumbDown:
		return ActionBackward, true
	case gesture.LabelILoveYou:
		return ActionPlayPause, true
	}
	return "", false
}

// AppliedAction describes an action the mapper accepted. Applied is false
// when the player could not be reached.
type AppliedAction struct {
	Action     Action        `json:"action"`
	Message    string        `json:"message"`
	Gesture    gesture.Label `json:"gesture"`
	Confidence int           `json:"confidence"`
	At         time.Time     `json:"at"`
	Applied    bool          `json:"applied"`
	Position   time.Duration `json:"position"`
}

// Mapper applies gesture actions to a Player with a confidence threshold and
// a cooldown between applied actions.
type Mapper struct {
	player        Player
	seek          time.Duration
	minConfidence int
	limiter       *rate.Limiter
	onAction      func(AppliedAction)
	log           *logrus.Entry

	mu   sync.Mutex
	last *AppliedAction
}

// NewMapper creates a Mapper driving player. onAction, if set, is called for
// every accepted action.
func NewMapper(player Player, cfg config.VideoConfig, onAction func(AppliedAction)) *Mapper {
	if cfg.SeekOffset <= 0 {
		cfg.SeekOffset = DefaultSeekOffset
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Mapper{
		player:        player,
		seek:          cfg.SeekOffset,
		minConfidence: cfg.MinConfidence,
		limiter:       rate.NewLimiter(rate.Every(cfg.Cooldown), 1),
		onAction:      onAction,
		log:           logging.Component("videocontrol"),
	}
}

// HandleFrame feeds a published frame to the mapper.
func (m *Mapper) HandleFrame(f events.Frame) {
	if f.Cleared {
		return
	}
	m.Handle(f.Gesture, time.Now())
}

// Handle applies the action bound to r if it qualifies at time now.
func (m *Mapper) Handle(r *gesture.Result, now time.Time) (*AppliedAction, bool) {
	if r == nil {
		return nil, false
	}
	action, ok := ActionFor(r.Gesture)
	if !ok || r.Confidence <= m.minConfidence {
		return nil, false
	}
	if !m.limiter.AllowN(now, 1) {
		return nil, false
	}

	applied := AppliedAction{
		Action:     action,
		Message:    action.Message(),
		Gesture:    r.Gesture,
		Confidence: r.Confidence,
		At:         now,
	}
	applied.Applied, applied.Position = m.apply(action)

	m.mu.Lock()
	m.last = &applied
	m.mu.Unlock()

	if m.onAction != nil {
		m.onAction(applied)
	}
	return &applied, true
}

// apply performs action and returns whether the player was reached and the
// resulting position. Player errors are logged, not returned.
func (m *Mapper) apply(action Action) (bool, time.Duration) {
	if m.player == nil || !m.player.Ready() {
		return false, 0
	}

	l := m.log.WithField("action", action)

	switch action {
	case ActionForward, ActionBackward:
		cur, err := m.player.CurrentTime()
		if err != nil {
			l.WithError(err).Error("failed to read player time")
			return false, 0
		}
		target := cur - m.seek
		if action == ActionForward {
			target = cur + m.seek
			if d := m.player.Duration(); d > 0 && target > d {
				target = d
			}
		} else if target < 0 {
			target = 0
		}
		if err := m.player.SeekTo(target); err != nil {
			l.WithError(err).Error("failed to seek video")
			return false, cur
		}
		l.WithField("position", target).Info("video seeked")
		return true, target

	case ActionPlayPause:
		var err error
		if m.player.State() == StatePlaying {
			err = m.player.Pause()
		} else {
			err = m.player.Play()
		}
		if err != nil {
			l.WithError(err).Error("failed to toggle playback")
			return false, 0
		}
		pos, _ := m.player.CurrentTime()
		return true, pos
	}
	return false, 0
}

// LastAction returns the most recent action if it is younger than
// LastActionTTL at now.
func (m *Mapper) LastAction(now time.Time) *AppliedAction {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.last == nil || now.Sub(m.last.At) >= LastActionTTL {
		return nil
	}
	a := *m.last
	return &a
}
