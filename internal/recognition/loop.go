// Package recognition runs the per-frame gesture recognition loop.
package recognition

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/overlay"
)

// ErrNotReady is returned by Start when no recognizer is loaded.
var ErrNotReady = errors.New("gesture recognizer not initialized")

// VideoSource is the frame provider the loop reads from.
type VideoSource interface {
	Dimensions() (width, height int)
	CurrentTime() time.Duration
	Frame() (*gocv.Mat, error)
}

// RecognizerSource supplies the loaded recognizer, or nil before it is ready.
type RecognizerSource interface {
	Recognizer() detector.Recognizer
}

// State is the loop state.
type State string

const (
	Idle    State = "idle"
	Running State = "running"
)

// Stats counts tick outcomes since the last Start.
type Stats struct {
	Processed int `json:"processed"`
	Frozen    int `json:"frozen"`
	NotReady  int `json:"not_ready"`
	Errors    int `json:"errors"`
}

// Snapshot is the latest published output of the loop.
type Snapshot struct {
	State       State                `json:"state"`
	Gesture     *gesture.Result      `json:"gesture"`
	Fingers     *gesture.FingerState `json:"fingers"`
	TimestampMs int64                `json:"timestamp"`
	Stats       Stats                `json:"stats"`
}

// Config holds the loop collaborators.
type Config struct {
	Recognizers RecognizerSource
	Scheduler   Scheduler
	Bus         *events.Bus
	EasterEggs  *gesture.EasterEggMatcher
	Renderer    *overlay.Renderer
	Now         func() time.Time
}

// Loop is the Idle/Running recognition state machine. It is the only caller
// of the recognizer. At most one tick runs at a time and the next tick is
// scheduled only after the current one completes.
//
// Stop waits for an in-flight tick, so it must not be called from a
// synchronous frame handler.
type Loop struct {
	recognizers RecognizerSource
	sched       Scheduler
	bus         *events.Bus
	eggs        *gesture.EasterEggMatcher
	renderer    *overlay.Renderer
	now         func() time.Time
	log         *logrus.Entry

	tickMu sync.Mutex

	mu        sync.Mutex
	state     State
	gen       uint64
	cancel    func()
	video     VideoSource
	target    overlay.Canvas
	lastTime  time.Duration
	seenFrame bool
	lastTS    int64
	current   Snapshot
}

// New creates an idle Loop.
func New(cfg Config) *Loop {
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewFrameScheduler(60)
	}
	if cfg.Renderer == nil {
		cfg.Renderer = overlay.NewRenderer()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loop{
		recognizers: cfg.Recognizers,
		sched:       cfg.Scheduler,
		bus:         cfg.Bus,
		eggs:        cfg.EasterEggs,
		renderer:    cfg.Renderer,
		now:         cfg.Now,
		log:         logging.Component("recognition"),
		state:       Idle,
		current:     Snapshot{State: Idle},
	}
}

// Start begins recognizing frames from video, drawing onto target. target may
// be nil. Calling Start while running is a no-op.
func (l *Loop) Start(video VideoSource, target overlay.Canvas) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == Running {
		return nil
	}
	if l.recognizers == nil || l.recognizers.Recognizer() == nil {
		return ErrNotReady
	}

	l.gen++
	l.state = Running
	l.video = video
	l.target = target
	l.seenFrame = false
	l.current = Snapshot{State: Running}
	l.scheduleLocked(l.gen)

	l.log.Info("recognition started")
	return nil
}

// Stop cancels the pending tick, waits for an in-flight one, clears the
// published results and returns to Idle.
func (l *Loop) Stop() {
	l.mu.Lock()
	wasRunning := l.state == Running
	l.state = Idle
	l.gen++
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.mu.Unlock()

	l.tickMu.Lock()
	l.mu.Lock()
	stats := l.current.Stats
	l.current = Snapshot{State: Idle, Stats: stats}
	l.video = nil
	target := l.target
	l.target = nil
	l.mu.Unlock()
	l.tickMu.Unlock()

	if target != nil {
		l.renderer.Clear(target)
	}
	if l.bus != nil {
		l.bus.PublishFrame(events.Frame{Cleared: true, TimestampMs: l.now().UnixMilli()})
	}
	if wasRunning {
		l.log.WithFields(logging.Fields{
			"processed": stats.Processed,
			"frozen":    stats.Frozen,
			"errors":    stats.Errors,
		}).Info("recognition stopped")
	}
}

// Running reports whether the loop is in the Running state.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == Running
}

// Snapshot returns the latest published output.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func (l *Loop) scheduleLocked(gen uint64) {
	l.cancel = l.sched.Schedule(func() { l.tick(gen) })
}

func (l *Loop) tick(gen uint64) {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()

	l.mu.Lock()
	if l.state != Running || l.gen != gen {
		l.mu.Unlock()
		return
	}
	video, target := l.video, l.target
	l.mu.Unlock()

	l.process(gen, video, target)

	l.mu.Lock()
	if l.state == Running && l.gen == gen {
		l.scheduleLocked(gen)
	}
	l.mu.Unlock()
}

// process runs one frame: recognize, redraw, extract fingers, match the
// easter egg, publish.
func (l *Loop) process(gen uint64, video VideoSource, target overlay.Canvas) {
	w, h := video.Dimensions()
	if w <= 0 || h <= 0 {
		l.count(func(s *Stats) { s.NotReady++ })
		return
	}

	t := video.CurrentTime()
	l.mu.Lock()
	frozen := l.seenFrame && t == l.lastTime
	l.lastTime, l.seenFrame = t, true
	l.mu.Unlock()
	if frozen {
		l.count(func(s *Stats) { s.Frozen++ })
		return
	}

	frame, err := video.Frame()
	if err != nil {
		l.frameError(err)
		return
	}
	defer frame.Close()

	rec := l.recognizers.Recognizer()
	if rec == nil {
		l.frameError(ErrNotReady)
		return
	}

	ts := l.nextTimestamp()
	result, err := rec.RecognizeForVideo(frame, ts)
	if err != nil {
		l.frameError(err)
		return
	}

	if target != nil {
		if tw, th := target.Size(); tw != w || th != h {
			target.SetSize(w, h)
		}
		l.renderer.Render(target, result.Landmarks)
	}

	fingers := gesture.ExtractFingers(result.Landmarks)
	gr := gesture.FromDetection(result)

	l.mu.Lock()
	if l.gen != gen {
		l.mu.Unlock()
		return
	}
	l.current.Gesture = gr
	l.current.Fingers = fingers
	l.current.TimestampMs = ts
	l.current.Stats.Processed++
	l.mu.Unlock()

	// Only frames that are published can trigger the easter egg.
	if fingers != nil && l.eggs != nil {
		l.eggs.Observe(fingers, l.now())
	}

	if l.bus != nil {
		l.bus.PublishFrame(events.Frame{
			Gesture:     gr,
			Fingers:     fingers,
			Hands:       result.Landmarks,
			TimestampMs: ts,
		})
	}
}

// nextTimestamp returns a millisecond timestamp strictly greater than the
// previous one.
func (l *Loop) nextTimestamp() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now().UnixMilli()
	if ts <= l.lastTS {
		ts = l.lastTS + 1
	}
	l.lastTS = ts
	return ts
}

func (l *Loop) frameError(err error) {
	if logging.IsBenign(err.Error()) {
		return
	}
	l.count(func(s *Stats) { s.Errors++ })
	l.log.WithError(err).Warn("error processing frame")
}

func (l *Loop) count(fn func(*Stats)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.current.Stats)
}
