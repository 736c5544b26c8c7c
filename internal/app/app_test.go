package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/recognition"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/videocontrol"
)

type harness struct {
	app      *App
	rec      *detector.MockRecognizer
	loader   *MockLoader
	device   *capture.MockDevice
	sched    *recognition.ManualScheduler
	player   *videocontrol.MockPlayer
	notifier *RecordingNotifier
	store    *store.Store
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })

	st, err := store.New(t.TempDir() + "/mudra.db")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := &harness{
		rec:      detector.NewMockRecognizer(),
		device:   capture.NewMockDevice([]*gocv.Mat{&frame}, 640, 480),
		sched:    recognition.NewManualScheduler(),
		player:   videocontrol.NewMockPlayer(5 * time.Minute),
		notifier: &RecordingNotifier{},
		store:    st,
	}
	h.loader = NewMockLoader(h.rec)

	settings := config.Default()
	settings.DataDir = t.TempDir()
	settings.Camera.ReadyBackoff = time.Millisecond
	settings.Camera.RestartDelay = time.Millisecond

	cfg := Config{
		Settings:  settings,
		Store:     st,
		Device:    ReadyDevice{h.device},
		Loader:    h.loader,
		Scheduler: h.sched,
		Player:    h.player,
		Notifier:  h.notifier,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h.app, err = New(cfg)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	t.Cleanup(func() { h.app.Close() })
	return h
}

// step runs one recognition tick after advancing the stream clock, then waits
// for the consumers.
func (h *harness) step(t *testing.T) {
	t.Helper()
	if s, ok := h.app.camera.Stream().(*capture.MockStream); ok {
		s.Advance(33 * time.Millisecond)
	}
	if !h.sched.Step() {
		t.Fatal("expected a scheduled tick")
	}
	h.app.Bus().Wait()
}

func TestActivate(t *testing.T) {
	h := newHarness(t)

	if err := h.app.Activate(context.Background(), ModeGesture); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	st := h.app.Status()
	if st.Phase != PhaseActive || st.Mode != ModeGesture {
		t.Errorf("expected active gesture mode, got %s/%s", st.Phase, st.Mode)
	}
	if !st.ModelReady {
		t.Error("expected model ready")
	}
	if !st.Camera.Active || st.Camera.Width != 640 {
		t.Errorf("unexpected camera info %+v", st.Camera)
	}
	if !h.app.Loop().Running() {
		t.Error("expected recognition loop running")
	}
	if h.device.LiveTracks() != 1 {
		t.Errorf("expected 1 live track, got %d", h.device.LiveTracks())
	}

	phases := h.notifier.Phases()
	if len(phases) < 2 || phases[0] != PhaseLoading || phases[len(phases)-1] != PhaseActive {
		t.Errorf("expected loading then active, got %v", phases)
	}

	if got := h.app.LastMode(); got != ModeGesture {
		t.Errorf("expected last mode gesture, got %s", got)
	}
	if v, err := h.store.Settings().Get(context.Background(), store.SettingDemoMode); err != nil || v != "gesture" {
		t.Errorf("expected stored mode gesture, got %q (%v)", v, err)
	}
}

func TestActivate_SameModeIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.app.Activate(ctx, ModeGesture)
	if err := h.app.Activate(ctx, ModeGesture); err != nil {
		t.Fatalf("second Activate failed: %v", err)
	}

	if n := len(h.device.Opened()); n != 1 {
		t.Errorf("expected 1 stream opened, got %d", n)
	}
	if h.loader.Calls() != 1 {
		t.Errorf("expected 1 model initialization, got %d", h.loader.Calls())
	}
}

func TestActivate_SwitchMode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.app.Activate(ctx, ModeGesture)
	if err := h.app.Activate(ctx, ModeVideo); err != nil {
		t.Fatalf("Activate video failed: %v", err)
	}

	if h.app.Mode() != ModeVideo {
		t.Errorf("expected video mode, got %s", h.app.Mode())
	}
	if h.device.LiveTracks() != 1 {
		t.Errorf("expected previous stream released, got %d live tracks", h.device.LiveTracks())
	}
	c := h.device.LastConstraints()
	if c.IdealWidth != 640 || c.MaxWidth != 1280 || c.IdealHeight != 480 || c.MaxHeight != 720 {
		t.Errorf("unexpected video constraints %+v", c)
	}
}

func TestActivate_InvalidMode(t *testing.T) {
	h := newHarness(t)
	if err := h.app.Activate(context.Background(), Mode("dance")); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
}

func TestActivate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(h *harness)
		wantKind string
	}{
		{
			name: "model timeout",
			setup: func(h *harness) {
				h.loader.SetError(&model.ModelLoadError{Kind: model.Timeout, Err: context.DeadlineExceeded})
			},
			wantKind: "model_timeout",
		},
		{
			name: "model failure",
			setup: func(h *harness) {
				h.loader.SetError(&model.ModelLoadError{Kind: model.LoadFailure, Err: errors.New("bad model")})
			},
			wantKind: "model_load_failure",
		},
		{
			name:     "camera permission",
			setup:    func(h *harness) { h.device.SetError(errors.New("permission denied")) },
			wantKind: "camera_permission_denied",
		},
		{
			name:     "camera unavailable",
			setup:    func(h *harness) { h.device.SetError(errors.New("device busy")) },
			wantKind: "camera_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			if err := h.app.Activate(context.Background(), ModeGesture); err == nil {
				t.Fatal("expected activation error")
			}

			st := h.app.Status()
			if st.Phase != PhaseError {
				t.Errorf("expected error phase, got %s", st.Phase)
			}
			if st.Error == nil || st.Error.Kind != tt.wantKind {
				t.Fatalf("expected error kind %s, got %+v", tt.wantKind, st.Error)
			}
			if !st.Error.Retry || st.Error.Message == "" {
				t.Errorf("expected retryable error with message, got %+v", st.Error)
			}
			if h.app.Loop().Running() {
				t.Error("loop should not run after failure")
			}
			if h.device.LiveTracks() != 0 {
				t.Errorf("expected no live tracks, got %d", h.device.LiveTracks())
			}

			n, err := h.store.Activity().Count(context.Background(), store.ActivityError)
			if err != nil || n != 1 {
				t.Errorf("expected 1 error activity, got %d (%v)", n, err)
			}
		})
	}
}

func TestRetry(t *testing.T) {
	t.Run("after model failure", func(t *testing.T) {
		h := newHarness(t)
		h.loader.SetError(&model.ModelLoadError{Kind: model.LoadFailure, Err: errors.New("offline")})
		h.app.Activate(context.Background(), ModeSimon)

		h.loader.SetError(nil)
		if err := h.app.Retry(context.Background()); err != nil {
			t.Fatalf("Retry failed: %v", err)
		}
		if st := h.app.Status(); st.Phase != PhaseActive || st.Mode != ModeSimon || st.Error != nil {
			t.Errorf("expected active simon mode without error, got %+v", st)
		}
	})

	t.Run("after camera failure", func(t *testing.T) {
		h := newHarness(t)
		h.device.SetError(errors.New("device busy"))
		h.app.Activate(context.Background(), ModeGesture)

		h.device.SetError(nil)
		if err := h.app.Retry(context.Background()); err != nil {
			t.Fatalf("Retry failed: %v", err)
		}
		if h.app.Status().Phase != PhaseActive {
			t.Errorf("expected active, got %s", h.app.Status().Phase)
		}
	})

	t.Run("before activation", func(t *testing.T) {
		h := newHarness(t)
		if err := h.app.Retry(context.Background()); !errors.Is(err, ErrNotActive) {
			t.Errorf("expected ErrNotActive, got %v", err)
		}
	})
}

func TestDeactivate(t *testing.T) {
	h := newHarness(t)
	h.app.Activate(context.Background(), ModeGesture)

	h.app.Deactivate()

	st := h.app.Status()
	if st.Phase != PhaseInactive || st.Mode != "" {
		t.Errorf("expected inactive, got %s/%s", st.Phase, st.Mode)
	}
	if st.Camera.Active {
		t.Error("expected camera released")
	}
	if h.app.Loop().Running() {
		t.Error("expected loop stopped")
	}
	if h.device.LiveTracks() != 0 {
		t.Errorf("expected no live tracks, got %d", h.device.LiveTracks())
	}
	if h.sched.Pending() != 0 {
		t.Errorf("expected no pending ticks, got %d", h.sched.Pending())
	}

	// Deactivating again is a no-op.
	h.app.Deactivate()
}

// stalledCamera opens streams that never decode a frame.
func stalledCamera(c *Config) {
	c.Device = c.Device.(ReadyDevice).MockDevice
}

func waitOpened(t *testing.T, d *capture.MockDevice) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for len(d.Opened()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("camera was never opened")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDeactivate_CancelsPendingActivation(t *testing.T) {
	h := newHarness(t, stalledCamera)

	h.app.ActivateAsync(ModeGesture)
	waitOpened(t, h.device)

	done := make(chan struct{})
	go func() {
		h.app.Deactivate()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deactivate blocked on pending activation")
	}

	st := h.app.Status()
	if st.Phase != PhaseInactive || st.Mode != "" {
		t.Errorf("expected inactive, got %s/%s", st.Phase, st.Mode)
	}
	if st.Error != nil {
		t.Errorf("expected no error after cancellation, got %+v", st.Error)
	}
	if h.device.LiveTracks() != 0 {
		t.Errorf("expected camera released, got %d live tracks", h.device.LiveTracks())
	}
	if h.app.Loop().Running() {
		t.Error("expected loop stopped")
	}
}

func TestActivate_CancelledByDeactivate(t *testing.T) {
	h := newHarness(t, stalledCamera)

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.app.Activate(context.Background(), ModeVideo)
	}()
	waitOpened(t, h.device)

	h.app.Deactivate()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Activate did not return after Deactivate")
	}

	if st := h.app.Status(); st.Phase != PhaseInactive || st.Error != nil {
		t.Errorf("expected inactive without error, got %s/%+v", st.Phase, st.Error)
	}
	if h.device.LiveTracks() != 0 {
		t.Errorf("expected camera released, got %d live tracks", h.device.LiveTracks())
	}
}

func TestRestart(t *testing.T) {
	h := newHarness(t)
	h.app.Activate(context.Background(), ModeGesture)
	first := h.app.Status().Camera.StreamID

	if err := h.app.Restart(context.Background()); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}

	st := h.app.Status()
	if st.Phase != PhaseActive {
		t.Errorf("expected active after restart, got %s", st.Phase)
	}
	if st.Camera.StreamID == first {
		t.Error("expected a new stream after restart")
	}
	if h.device.LiveTracks() != 1 {
		t.Errorf("expected 1 live track after restart, got %d", h.device.LiveTracks())
	}
	if !h.app.Loop().Running() {
		t.Error("expected loop running after restart")
	}
}

func TestRestart_NotActive(t *testing.T) {
	h := newHarness(t)
	if err := h.app.Restart(context.Background()); !errors.Is(err, ErrNotActive) {
		t.Errorf("expected ErrNotActive, got %v", err)
	}
}

func TestVideoMode_AppliesActions(t *testing.T) {
	h := newHarness(t)
	h.player.SetPosition(time.Minute)
	h.rec.SetResult(detector.GestureResult(detector.ThumbsUpLandmarks(), "Thumb_Up", 0.9, "Right"))

	if err := h.app.Activate(context.Background(), ModeVideo); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	h.step(t)

	seeks := h.player.Seeks()
	if len(seeks) != 1 || seeks[0] != 70*time.Second {
		t.Errorf("expected seek to 70s, got %v", seeks)
	}
	actions := h.notifier.Actions()
	if len(actions) != 1 || actions[0].Action != videocontrol.ActionForward {
		t.Fatalf("expected one forward action, got %+v", actions)
	}
	if st := h.app.Status(); st.VideoAction == nil || st.VideoAction.Action != videocontrol.ActionForward {
		t.Errorf("expected last video action in status, got %+v", st.VideoAction)
	}

	n, _ := h.store.Activity().Count(context.Background(), store.ActivityVideoAction)
	if n != 1 {
		t.Errorf("expected 1 video action recorded, got %d", n)
	}
}

func TestGestureMode_IgnoresVideoActions(t *testing.T) {
	h := newHarness(t)
	h.rec.SetResult(detector.GestureResult(detector.ThumbsUpLandmarks(), "Thumb_Up", 0.9, "Right"))

	h.app.Activate(context.Background(), ModeGesture)
	h.step(t)

	if seeks := h.player.Seeks(); len(seeks) != 0 {
		t.Errorf("expected no seeks outside video mode, got %v", seeks)
	}
	if snap := h.app.Status().Recognition; snap.Gesture == nil || snap.Gesture.Confidence != 90 {
		t.Errorf("expected recognized gesture in status, got %+v", snap.Gesture)
	}
}

func TestEasterEgg_Recorded(t *testing.T) {
	h := newHarness(t)
	h.rec.SetResult(detector.GestureResult(detector.MiddleFingerLandmarks(), "None", 0.6, "Right"))

	h.app.Activate(context.Background(), ModeGesture)
	h.step(t)
	h.step(t)

	if st := h.app.Status(); st.EasterEgg == nil {
		t.Error("expected active easter egg in status")
	}
	n, err := h.store.Activity().Count(context.Background(), store.ActivityEasterEgg)
	if err != nil || n != 1 {
		t.Errorf("expected 1 easter egg within the cooldown, got %d (%v)", n, err)
	}
}

func TestSimonMode_ReceivesInput(t *testing.T) {
	h := newHarness(t)
	h.app.Activate(context.Background(), ModeSimon)

	h.app.Game().Start(time.Now())
	if len(h.notifier.Games()) == 0 {
		t.Error("expected game change notifications")
	}
	h.app.Deactivate()
	if h.app.Mode() != "" {
		t.Errorf("expected inactive after deactivate, got %s", h.app.Mode())
	}
}

func TestPreview(t *testing.T) {
	h := newHarness(t)
	if _, err := h.app.Preview(); !errors.Is(err, capture.ErrCameraNotOpen) {
		t.Errorf("expected ErrCameraNotOpen before activation, got %v", err)
	}

	h.app.Activate(context.Background(), ModeGesture)
	frame, err := h.app.Preview()
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	defer frame.Close()
	if frame.Cols() != 640 || frame.Rows() != 480 {
		t.Errorf("unexpected preview size %dx%d", frame.Cols(), frame.Rows())
	}
}
