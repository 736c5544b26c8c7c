package recognition

import (
	"sync"
	"time"
)

// Scheduler arranges for a function to run once on the next display frame.
type Scheduler interface {
	// Schedule queues fn and returns a function that cancels it. Cancelling
	// after fn has started has no effect.
	Schedule(fn func()) (cancel func())
}

// FrameScheduler fires on a fixed display-rate timer.
type FrameScheduler struct {
	interval time.Duration
}

// NewFrameScheduler creates a scheduler firing fps times per second.
func NewFrameScheduler(fps int) *FrameScheduler {
	if fps <= 0 {
		fps = 60
	}
	return &FrameScheduler{interval: time.Second / time.Duration(fps)}
}

// Interval returns the time between frames.
func (s *FrameScheduler) Interval() time.Duration {
	return s.interval
}

func (s *FrameScheduler) Schedule(fn func()) func() {
	t := time.AfterFunc(s.interval, fn)
	return func() { t.Stop() }
}

// ManualScheduler runs scheduled functions only when stepped. It makes tick
// sequences deterministic in tests.
type ManualScheduler struct {
	mu    sync.Mutex
	queue []*manualTask
}

type manualTask struct {
	fn        func()
	cancelled bool
}

// NewManualScheduler creates an empty ManualScheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) Schedule(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := &manualTask{fn: fn}
	s.queue = append(s.queue, task)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		task.cancelled = true
	}
}

// Step runs the oldest pending function and reports whether one ran.
func (s *ManualScheduler) Step() bool {
	s.mu.Lock()
	var task *manualTask
	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		if !next.cancelled {
			task = next
			break
		}
	}
	s.mu.Unlock()

	if task == nil {
		return false
	}
	task.fn()
	return true
}

// Run steps up to n times and returns how many functions ran.
func (s *ManualScheduler) Run(n int) int {
	ran := 0
	for i := 0; i < n && s.Step(); i++ {
		ran++
	}
	return ran
}

// Pending returns the number of queued, uncancelled functions.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.queue {
		if !t.cancelled {
			n++
		}
	}
	return n
}
