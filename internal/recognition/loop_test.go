package recognition

import (
	"errors"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/overlay"
)

type fakeVideo struct {
	mu     sync.Mutex
	width  int
	height int
	t      time.Duration
}

func (v *fakeVideo) Dimensions() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.width, v.height
}

func (v *fakeVideo) CurrentTime() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.t
}

func (v *fakeVideo) Frame() (*gocv.Mat, error) {
	m := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	return &m, nil
}

func (v *fakeVideo) advance() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.t += 16 * time.Millisecond
}

type staticSource struct {
	rec detector.Recognizer
}

func (s staticSource) Recognizer() detector.Recognizer { return s.rec }

type harness struct {
	loop   *Loop
	sched  *ManualScheduler
	rec    *detector.MockRecognizer
	video  *fakeVideo
	canvas *overlay.RecordingCanvas

	mu     sync.Mutex
	frames []events.Frame
	eggs   []events.EasterEgg
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sched:  NewManualScheduler(),
		rec:    detector.NewMockRecognizer(),
		video:  &fakeVideo{width: 640, height: 480},
		canvas: overlay.NewRecordingCanvas(0, 0),
	}

	bus := events.New()
	bus.OnFrame(func(f events.Frame) {
		h.mu.Lock()
		h.frames = append(h.frames, f)
		h.mu.Unlock()
	})
	bus.OnEasterEgg(func(e events.EasterEgg) {
		h.mu.Lock()
		h.eggs = append(h.eggs, e)
		h.mu.Unlock()
	})

	clock := time.Unix(1700000000, 0)
	eggs := gesture.NewEasterEggMatcher(gesture.EasterEggCooldown, func(fs gesture.FingerState, at time.Time) {
		bus.PublishEasterEgg(events.EasterEgg{Fingers: fs, At: at, DisplayFor: gesture.EasterEggDisplay})
	})

	h.loop = New(Config{
		Recognizers: staticSource{rec: h.rec},
		Scheduler:   h.sched,
		Bus:         bus,
		EasterEggs:  eggs,
		Now:         func() time.Time { return clock },
	})
	return h
}

func (h *harness) published() []events.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.Frame(nil), h.frames...)
}

func (h *harness) step(t *testing.T) {
	t.Helper()
	h.video.advance()
	if !h.sched.Step() {
		t.Fatal("expected a pending tick")
	}
}

func TestLoop_StartPublishesPair(t *testing.T) {
	h := newHarness(t)
	h.rec.SetResult(detector.GestureResult(detector.OpenPalmLandmarks(), "Open_Palm", 0.91, "Right"))

	if err := h.loop.Start(h.video, h.canvas); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !h.loop.Running() {
		t.Fatal("expected Running")
	}

	h.step(t)

	frames := h.published()
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	f := frames[0]
	if f.Gesture == nil || f.Gesture.Gesture != gesture.LabelOpenPalm || f.Gesture.Confidence != 91 {
		t.Errorf("unexpected gesture %+v", f.Gesture)
	}
	if f.Fingers == nil || *f.Fingers != (gesture.FingerState{Thumb: 1, Index: 1, Middle: 1, Ring: 1, Pinky: 1}) {
		t.Errorf("unexpected fingers %+v", f.Fingers)
	}

	snap := h.loop.Snapshot()
	if snap.Gesture != f.Gesture || snap.Fingers != f.Fingers {
		t.Error("snapshot should hold the published pair")
	}
	if h.sched.Pending() != 1 {
		t.Errorf("expected next tick scheduled, pending = %d", h.sched.Pending())
	}
}

func TestLoop_NoHandPublishesNil(t *testing.T) {
	h := newHarness(t)
	h.loop.Start(h.video, h.canvas)
	h.step(t)

	f := h.published()[0]
	if f.Gesture != nil || f.Fingers != nil {
		t.Errorf("expected nil results, got %+v", f)
	}
}

func TestLoop_FrozenFrameSkipped(t *testing.T) {
	h := newHarness(t)
	h.rec.SetResult(detector.GestureResult(detector.ThumbsUpLandmarks(), "Thumb_Up", 0.8, "Left"))
	h.loop.Start(h.video, h.canvas)

	h.step(t)
	opsAfterFirst := len(h.canvas.Ops())

	// currentTime does not advance
	if !h.sched.Step() {
		t.Fatal("expected a pending tick")
	}

	if h.rec.Calls() != 1 {
		t.Errorf("expected 1 model call, got %d", h.rec.Calls())
	}
	if len(h.canvas.Ops()) != opsAfterFirst {
		t.Error("overlay should not be redrawn on a frozen frame")
	}
	if len(h.published()) != 1 {
		t.Errorf("expected no publication for frozen frame, got %d", len(h.published()))
	}
	if h.loop.Snapshot().Stats.Frozen != 1 {
		t.Errorf("Frozen = %d, want 1", h.loop.Snapshot().Stats.Frozen)
	}
	if h.sched.Pending() != 1 {
		t.Error("loop should reschedule after a frozen frame")
	}
}

func TestLoop_WaitsForDimensions(t *testing.T) {
	h := newHarness(t)
	h.video.width, h.video.height = 0, 0
	h.loop.Start(h.video, h.canvas)

	h.step(t)
	h.step(t)

	if h.rec.Calls() != 0 {
		t.Errorf("expected no model calls without dimensions, got %d", h.rec.Calls())
	}
	if h.sched.Pending() != 1 {
		t.Error("loop should keep rescheduling")
	}

	h.video.mu.Lock()
	h.video.width, h.video.height = 320, 240
	h.video.mu.Unlock()
	h.step(t)

	if h.rec.Calls() != 1 {
		t.Errorf("expected model call once ready, got %d", h.rec.Calls())
	}
	if w, hh := h.canvas.Size(); w != 320 || hh != 240 {
		t.Errorf("canvas = %dx%d, want 320x240", w, hh)
	}
}

func TestLoop_MonotonicTimestamps(t *testing.T) {
	h := newHarness(t)
	h.loop.Start(h.video, h.canvas)

	// The clock is frozen; timestamps must still increase.
	for i := 0; i < 5; i++ {
		h.step(t)
	}

	ts := h.rec.Timestamps()
	for i := 1; i < len(ts); i++ {
		if ts[i] <= ts[i-1] {
			t.Fatalf("timestamps not increasing: %v", ts)
		}
	}
}

func TestLoop_FrameErrorsDoNotStop(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantErrors int
	}{
		{"real error", errors.New("inference failed"), 1},
		{"benign noise", errors.New("The message channel closed before a response was received"), 0},
		{"extension noise", errors.New("Extension context invalidated."), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.rec.SetError(tt.err)
			h.loop.Start(h.video, h.canvas)

			h.step(t)

			if !h.loop.Running() || h.sched.Pending() != 1 {
				t.Error("loop should continue after a frame error")
			}
			if got := h.loop.Snapshot().Stats.Errors; got != tt.wantErrors {
				t.Errorf("Errors = %d, want %d", got, tt.wantErrors)
			}
			if len(h.published()) != 0 {
				t.Error("failed frame should not publish")
			}
		})
	}
}

func TestLoop_StopClearsResults(t *testing.T) {
	h := newHarness(t)
	h.rec.SetResult(detector.GestureResult(detector.OpenPalmLandmarks(), "Open_Palm", 0.9, "Right"))
	h.loop.Start(h.video, h.canvas)
	h.step(t)

	h.loop.Stop()

	snap := h.loop.Snapshot()
	if snap.Gesture != nil || snap.Fingers != nil {
		t.Errorf("expected cleared results, got %+v", snap)
	}
	if snap.State != Idle || h.loop.Running() {
		t.Error("expected Idle after Stop")
	}

	frames := h.published()
	if last := frames[len(frames)-1]; !last.Cleared || last.Gesture != nil || last.Fingers != nil {
		t.Errorf("expected a cleared frame last, got %+v", last)
	}
	if h.sched.Pending() != 0 {
		t.Error("pending tick should be cancelled")
	}
	if lines, circles := h.canvas.Drawn(); lines != 0 || circles != 0 {
		t.Error("overlay should be cleared on stop")
	}
}

func TestLoop_StopWhenIdle(t *testing.T) {
	h := newHarness(t)
	h.loop.Stop()

	snap := h.loop.Snapshot()
	if snap.Gesture != nil || snap.Fingers != nil || snap.State != Idle {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

// ignoringScheduler never cancels, so stale ticks still fire.
type ignoringScheduler struct {
	*ManualScheduler
}

func (s ignoringScheduler) Schedule(fn func()) func() {
	s.ManualScheduler.Schedule(fn)
	return func() {}
}

func TestLoop_StaleTickNeverPublishes(t *testing.T) {
	h := newHarness(t)
	sched := ignoringScheduler{NewManualScheduler()}
	h.loop.sched = sched
	h.rec.SetResult(detector.GestureResult(detector.OpenPalmLandmarks(), "Open_Palm", 0.9, "Right"))

	h.loop.Start(h.video, h.canvas)
	h.loop.Stop()
	before := len(h.published())

	h.video.advance()
	if !sched.Step() {
		t.Fatal("expected the stale tick to run")
	}

	if h.rec.Calls() != 0 {
		t.Error("stale tick should not invoke the model")
	}
	if len(h.published()) != before {
		t.Error("stale tick should not publish")
	}
}

func TestLoop_StartIsReentrant(t *testing.T) {
	h := newHarness(t)
	h.loop.Start(h.video, h.canvas)
	h.loop.Start(h.video, h.canvas)

	if h.sched.Pending() != 1 {
		t.Errorf("expected a single pending tick, got %d", h.sched.Pending())
	}
}

func TestLoop_StartWithoutRecognizer(t *testing.T) {
	l := New(Config{Recognizers: staticSource{}, Scheduler: NewManualScheduler()})
	if err := l.Start(&fakeVideo{width: 1, height: 1}, nil); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestLoop_EasterEggRateLimited(t *testing.T) {
	h := newHarness(t)
	h.rec.SetResult(&detector.Result{Landmarks: []detector.HandLandmarks{detector.MiddleFingerLandmarks()}})
	h.loop.Start(h.video, h.canvas)

	for i := 0; i < 10; i++ {
		h.step(t)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.eggs) != 1 {
		t.Fatalf("expected 1 easter egg within cooldown, got %d", len(h.eggs))
	}
	if h.eggs[0].Fingers != (gesture.FingerState{Middle: 1}) {
		t.Errorf("unexpected fingers %+v", h.eggs[0].Fingers)
	}
	// Fingers are published even though no gesture was classified.
	last := h.frames[len(h.frames)-1]
	if last.Gesture != nil || last.Fingers == nil {
		t.Errorf("expected fingers without gesture, got %+v", last)
	}
}

// blockingRecognizer holds each call until release is closed.
type blockingRecognizer struct {
	*detector.MockRecognizer
	entered chan struct{}
	release chan struct{}
}

func (r *blockingRecognizer) RecognizeForVideo(frame *gocv.Mat, ts int64) (*detector.Result, error) {
	r.entered <- struct{}{}
	<-r.release
	return r.MockRecognizer.RecognizeForVideo(frame, ts)
}

func TestLoop_StopDiscardsEasterEggOfInFlightTick(t *testing.T) {
	h := newHarness(t)
	rec := &blockingRecognizer{
		MockRecognizer: h.rec,
		entered:        make(chan struct{}, 1),
		release:        make(chan struct{}),
	}
	h.loop.recognizers = staticSource{rec: rec}
	h.rec.SetResult(&detector.Result{Landmarks: []detector.HandLandmarks{detector.MiddleFingerLandmarks()}})

	h.loop.Start(h.video, h.canvas)

	tickDone := make(chan struct{})
	go func() {
		h.video.advance()
		h.sched.Step()
		close(tickDone)
	}()
	<-rec.entered

	stopDone := make(chan struct{})
	go func() {
		h.loop.Stop()
		close(stopDone)
	}()
	for h.loop.Running() {
		time.Sleep(time.Millisecond)
	}

	close(rec.release)
	<-tickDone
	<-stopDone

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.eggs) != 0 {
		t.Errorf("expected no easter egg from a discarded frame, got %d", len(h.eggs))
	}
}

func TestLoop_OneTickInFlight(t *testing.T) {
	h := newHarness(t)
	h.loop.Start(h.video, h.canvas)

	for i := 0; i < 20; i++ {
		if p := h.sched.Pending(); p != 1 {
			t.Fatalf("tick %d: pending = %d, want 1", i, p)
		}
		h.step(t)
	}
}

func TestFrameScheduler(t *testing.T) {
	s := NewFrameScheduler(100)
	if s.Interval() != 10*time.Millisecond {
		t.Errorf("Interval() = %v", s.Interval())
	}

	fired := make(chan struct{}, 1)
	s.Schedule(func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduled function did not fire")
	}

	cancel := s.Schedule(func() { fired <- struct{}{} })
	cancel()
	select {
	case <-fired:
		t.Error("cancelled function fired")
	case <-time.After(50 * time.Millisecond):
	}
}
