package app

import (
	"context"
	"sync"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/simon"
	"github.com/ayusman/mudra/internal/videocontrol"
)

// MockLoader is a ModelLoader that hands out a fixed recognizer.
type MockLoader struct {
	mu    sync.Mutex
	rec   detector.Recognizer
	err   error
	ready bool
	calls int
}

// NewMockLoader creates a loader that succeeds with rec.
func NewMockLoader(rec detector.Recognizer) *MockLoader {
	return &MockLoader{rec: rec}
}

// SetError makes Initialize fail with err until cleared.
func (l *MockLoader) SetError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *MockLoader) Initialize(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.err != nil {
		return l.err
	}
	l.ready = true
	return nil
}

func (l *MockLoader) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

func (l *MockLoader) Recognizer() detector.Recognizer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return nil
	}
	return l.rec
}

func (l *MockLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ready = false
	return nil
}

// Calls returns how many times Initialize was invoked.
func (l *MockLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// ReadyDevice wraps a MockDevice so opened streams already have a decoded
// frame.
type ReadyDevice struct {
	*capture.MockDevice
}

func (d ReadyDevice) Open(c capture.Constraints) (capture.Stream, error) {
	s, err := d.MockDevice.Open(c)
	if err != nil {
		return nil, err
	}
	s.(*capture.MockStream).Advance(capture.DefaultReadyBackoff)
	return s, nil
}

// RecordingNotifier collects everything sent to a Notifier.
type RecordingNotifier struct {
	mu       sync.Mutex
	statuses []Status
	actions  []videocontrol.AppliedAction
	games    []simon.Snapshot
}

func (n *RecordingNotifier) StatusChanged(s Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, s)
}

func (n *RecordingNotifier) VideoAction(a videocontrol.AppliedAction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.actions = append(n.actions, a)
}

func (n *RecordingNotifier) GameChanged(s simon.Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.games = append(n.games, s)
}

// Phases returns the phases of every status received.
func (n *RecordingNotifier) Phases() []Phase {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Phase, len(n.statuses))
	for i, s := range n.statuses {
		out[i] = s.Phase
	}
	return out
}

// Actions returns the video actions received.
func (n *RecordingNotifier) Actions() []videocontrol.AppliedAction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]videocontrol.AppliedAction(nil), n.actions...)
}

// Games returns the game snapshots received.
func (n *RecordingNotifier) Games() []simon.Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]simon.Snapshot(nil), n.games...)
}
