package app

import (
	"errors"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/recognition"
	"github.com/ayusman/mudra/internal/videocontrol"
)

var (
	// ErrInvalidMode is returned for an unknown demo mode.
	ErrInvalidMode = errors.New("invalid demo mode")
	// ErrNotActive is returned by Restart and Retry before any activation.
	ErrNotActive = errors.New("demo has not been activated")
	// ErrCancelled is returned by setup that a Deactivate abandoned.
	ErrCancelled = errors.New("demo setup cancelled")
)

// Mode selects the consumer of recognized gestures.
type Mode string

const (
	ModeGesture Mode = "gesture"
	ModeVideo   Mode = "video"
	ModeSimon   Mode = "simon"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeGesture, ModeVideo, ModeSimon:
		return true
	}
	return false
}

// Phase is the activation phase of the demo.
type Phase string

const (
	PhaseInactive Phase = "inactive"
	PhaseLoading  Phase = "loading"
	PhaseActive   Phase = "active"
	PhaseError    Phase = "error"
)

// ErrorInfo is the user-visible form of an activation failure.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

// CameraInfo describes the live stream.
type CameraInfo struct {
	Active   bool   `json:"active"`
	StreamID string `json:"stream_id,omitempty"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Status is the demo state published to the display surface.
type Status struct {
	Mode        Mode                        `json:"mode,omitempty"`
	Phase       Phase                       `json:"phase"`
	ModelReady  bool                        `json:"model_ready"`
	Camera      CameraInfo                  `json:"camera"`
	Error       *ErrorInfo                  `json:"error,omitempty"`
	Recognition recognition.Snapshot        `json:"recognition"`
	VideoAction *videocontrol.AppliedAction `json:"video_action,omitempty"`
	EasterEgg   *events.EasterEgg           `json:"easter_egg,omitempty"`
}

// Status returns the current demo state. The easter egg is reported only
// within its display window.
func (a *App) Status() Status {
	now := time.Now()

	a.mu.RLock()
	st := Status{
		Mode:       a.mode,
		Phase:      a.phase,
		ModelReady: a.loader.Ready(),
	}
	if a.lastErr != nil {
		info := errorInfo(a.lastErr)
		st.Error = &info
	}
	if e := a.lastEgg; e != nil && now.Before(e.At.Add(e.DisplayFor)) {
		egg := *e
		st.EasterEgg = &egg
	}
	a.mu.RUnlock()

	if s := a.camera.Stream(); s != nil {
		w, h := s.Dimensions()
		st.Camera = CameraInfo{Active: true, StreamID: s.ID(), Width: w, Height: h}
	}
	st.Recognition = a.loop.Snapshot()
	if st.Mode == ModeVideo {
		st.VideoAction = a.mapper.LastAction(now)
	}
	return st
}

func (a *App) notifyStatus() {
	if a.notifier != nil {
		a.notifier.StatusChanged(a.Status())
	}
}

// errorInfo maps an activation error to its user-visible form.
func errorInfo(err error) ErrorInfo {
	var modelErr *model.ModelLoadError
	if errors.As(err, &modelErr) {
		return ErrorInfo{Kind: "model_" + modelErr.Kind.String(), Message: modelErr.UserMessage(), Retry: true}
	}
	var camErr *capture.CameraError
	if errors.As(err, &camErr) {
		return ErrorInfo{Kind: "camera_" + camErr.Kind.String(), Message: camErr.UserMessage(), Retry: true}
	}
	if errors.Is(err, recognition.ErrNotReady) {
		return ErrorInfo{Kind: "model_not_ready", Message: "The gesture model is not loaded yet.", Retry: true}
	}
	return ErrorInfo{Kind: "unknown", Message: err.Error(), Retry: true}
}

// constraintsFor returns the stream constraints used by mode. Video control
// runs next to an embedded player, so it asks for a smaller stream.
func constraintsFor(mode Mode, cfg config.CameraConfig) capture.Constraints {
	c := capture.ConstraintsFromConfig(cfg)
	if mode == ModeVideo {
		c.IdealWidth, c.MaxWidth = 640, 1280
		c.IdealHeight, c.MaxHeight = 480, 720
	}
	return c
}
