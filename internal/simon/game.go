// Package simon implements the "Simon Says" gesture memory game.
package simon

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/logging"
)

// State is the game state.
type State string

const (
	Waiting State = "waiting"
	Showing State = "showing"
	Playing State = "playing"
	Success State = "success"
	Failure State = "failure"
)

// Defaults.
const (
	DefaultShowStep      = time.Second
	DefaultSuccessDelay  = 1500 * time.Millisecond
	DefaultMinConfidence = 70
)

// Pool is the set of gestures a sequence is drawn from.
var Pool = []gesture.Label{
	gesture.LabelClosedFist,
	gesture.LabelOpenPalm,
	gesture.LabelVictory,
	gesture.LabelThumbUp,
	gesture.LabelThumbDown,
}

func inPool(l gesture.Label) bool {
	for _, p := range Pool {
		if p == l {
			return true
		}
	}
	return false
}

// SequenceLength returns the number of gestures shown at level.
func SequenceLength(level int) int {
	return level + 2
}

// Stats are the persisted records.
type Stats struct {
	BestLevel  int `json:"best_level"`
	BestStreak int `json:"best_streak"`
}

// StatsStore persists Stats.
type StatsStore interface {
	LoadStats(ctx context.Context) (Stats, error)
	SaveStats(ctx context.Context, s Stats) error
}

// Snapshot is the observable game state.
type Snapshot struct {
	State    State           `json:"state"`
	Level    int             `json:"level"`
	Streak   int             `json:"streak"`
	Best     Stats           `json:"best"`
	Total    int             `json:"total"`
	Progress int             `json:"progress"`
	Showing  gesture.Label   `json:"showing,omitempty"`
	Step     int             `json:"step"`
	Last     gesture.Label   `json:"last,omitempty"`
	Answer   []gesture.Label `json:"answer,omitempty"`
}

// Config configures a Game. OnChange is called after every state change,
// outside the game lock.
type Config struct {
	ShowStep      time.Duration
	SuccessDelay  time.Duration
	MinConfidence int
	Store         StatsStore
	Rand          *rand.Rand
	OnChange      func(Snapshot)
}

// ConfigFrom builds a Config from application configuration.
func ConfigFrom(cfg config.GameConfig, store StatsStore) Config {
	return Config{
		ShowStep:      cfg.ShowStep,
		SuccessDelay:  cfg.SuccessDelay,
		MinConfidence: cfg.MinConfidence,
		Store:         store,
	}
}

// Game is the Simon Says state machine. Time-based transitions happen in
// Advance, which callers drive with the current time.
type Game struct {
	cfg Config
	log *logrus.Entry

	mu       sync.Mutex
	state    State
	level    int
	streak   int
	best     Stats
	sequence []gesture.Label
	step     int
	progress int
	deadline time.Time
	last     gesture.Label
	released bool
}

// New creates a game at level 1 in the Waiting state and loads the stored
// records.
func New(ctx context.Context, cfg Config) *Game {
	if cfg.ShowStep <= 0 {
		cfg.ShowStep = DefaultShowStep
	}
	if cfg.SuccessDelay < 0 {
		cfg.SuccessDelay = DefaultSuccessDelay
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}

	g := &Game{
		cfg:   cfg,
		log:   logging.Component("simon"),
		state: Waiting,
		level: 1,
	}
	if cfg.Store != nil {
		best, err := cfg.Store.LoadStats(ctx)
		if err != nil {
			g.log.WithError(err).Warn("failed to load game stats")
		} else {
			g.best = best
		}
	}
	return g
}

// Start shows a new sequence for the current level. It has no effect while a
// sequence is being shown or played.
func (g *Game) Start(now time.Time) {
	g.mu.Lock()
	if g.state == Showing || g.state == Playing {
		g.mu.Unlock()
		return
	}
	g.startLocked(now)
	snap := g.snapshotLocked()
	g.mu.Unlock()

	g.notify(snap)
}

func (g *Game) startLocked(now time.Time) {
	n := SequenceLength(g.level)
	g.sequence = make([]gesture.Label, n)
	for i := range g.sequence {
		g.sequence[i] = Pool[g.cfg.Rand.IntN(len(Pool))]
	}
	g.state = Showing
	g.step = 0
	g.progress = 0
	g.deadline = now.Add(g.cfg.ShowStep)
	g.log.WithFields(logging.Fields{"level": g.level, "length": n}).Debug("showing sequence")
}

// NewGame returns to level 1 with no streak.
func (g *Game) NewGame() {
	g.mu.Lock()
	g.state = Waiting
	g.level = 1
	g.streak = 0
	g.sequence = nil
	g.step, g.progress = 0, 0
	snap := g.snapshotLocked()
	g.mu.Unlock()

	g.notify(snap)
}

// ResetStats clears the stored records.
func (g *Game) ResetStats(ctx context.Context) error {
	g.mu.Lock()
	g.best = Stats{}
	snap := g.snapshotLocked()
	g.mu.Unlock()

	if g.cfg.Store != nil {
		if err := g.cfg.Store.SaveStats(ctx, Stats{}); err != nil {
			return err
		}
	}
	g.notify(snap)
	return nil
}

// Advance applies time-based transitions up to now.
func (g *Game) Advance(now time.Time) {
	g.mu.Lock()
	changed := false

	switch g.state {
	case Showing:
		for g.state == Showing && !now.Before(g.deadline) {
			g.step++
			changed = true
			if g.step >= len(g.sequence) {
				g.state = Playing
				g.last = ""
				g.released = true
				break
			}
			g.deadline = g.deadline.Add(g.cfg.ShowStep)
		}
	case Success:
		if !now.Before(g.deadline) {
			g.startLocked(now)
			changed = true
		}
	}

	var snap Snapshot
	if changed {
		snap = g.snapshotLocked()
	}
	g.mu.Unlock()

	if changed {
		g.notify(snap)
	}
}

// Input offers a recognized gesture. It only counts while Playing, when the
// confidence exceeds the threshold and the label differs from the previous
// accepted input or the hand was released in between.
func (g *Game) Input(r *gesture.Result, now time.Time) {
	g.mu.Lock()

	if g.state != Playing {
		g.mu.Unlock()
		return
	}
	if r == nil || !inPool(r.Gesture) {
		g.released = true
		g.mu.Unlock()
		return
	}
	if r.Confidence <= g.cfg.MinConfidence {
		g.mu.Unlock()
		return
	}
	if r.Gesture == g.last && !g.released {
		g.mu.Unlock()
		return
	}

	g.last = r.Gesture
	g.released = false

	var save *Stats
	if r.Gesture != g.sequence[g.progress] {
		g.state = Failure
		g.streak = 0
		g.log.WithFields(logging.Fields{"level": g.level, "at": g.progress}).Info("wrong gesture")
	} else {
		g.progress++
		if g.progress == len(g.sequence) {
			g.state = Success
			g.level++
			g.streak++
			g.deadline = now.Add(g.cfg.SuccessDelay)
			if g.level > g.best.BestLevel || g.streak > g.best.BestStreak {
				g.best.BestLevel = max(g.best.BestLevel, g.level)
				g.best.BestStreak = max(g.best.BestStreak, g.streak)
				s := g.best
				save = &s
			}
			g.log.WithField("level", g.level).Info("sequence completed")
		}
	}
	snap := g.snapshotLocked()
	g.mu.Unlock()

	if save != nil && g.cfg.Store != nil {
		if err := g.cfg.Store.SaveStats(context.Background(), *save); err != nil {
			g.log.WithError(err).Error("failed to save game stats")
		}
	}
	g.notify(snap)
}

// HandleFrame feeds a published recognition frame to the game.
func (g *Game) HandleFrame(f events.Frame) {
	now := time.Now()
	g.Advance(now)
	if f.Cleared {
		return
	}
	g.Input(f.Gesture, now)
}

// Snapshot returns the observable state.
func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Game) snapshotLocked() Snapshot {
	s := Snapshot{
		State:    g.state,
		Level:    g.level,
		Streak:   g.streak,
		Best:     g.best,
		Total:    len(g.sequence),
		Progress: g.progress,
		Step:     g.step,
		Last:     g.last,
	}
	switch g.state {
	case Showing:
		if g.step < len(g.sequence) {
			s.Showing = g.sequence[g.step]
		}
	case Failure:
		s.Answer = append([]gesture.Label(nil), g.sequence...)
	}
	return s
}

func (g *Game) notify(s Snapshot) {
	if g.cfg.OnChange != nil {
		g.cfg.OnChange(s)
	}
}
