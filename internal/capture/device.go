// Package capture acquires the camera stream that feeds the recognition loop.
package capture

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/config"
)

// ErrCameraNotOpen is returned when reading from a camera without a stream.
var ErrCameraNotOpen = errors.New("camera is not open")

// Constraints are the stream parameters requested from a device.
type Constraints struct {
	DeviceID    int
	IdealWidth  int
	MaxWidth    int
	IdealHeight int
	MaxHeight   int
	FacingMode  string
	FPS         int
}

// ConstraintsFromConfig converts camera configuration into stream constraints.
func ConstraintsFromConfig(cfg config.CameraConfig) Constraints {
	return Constraints{
		DeviceID:    cfg.DeviceID,
		IdealWidth:  cfg.IdealWidth,
		MaxWidth:    cfg.MaxWidth,
		IdealHeight: cfg.IdealHeight,
		MaxHeight:   cfg.MaxHeight,
		FacingMode:  cfg.FacingMode,
		FPS:         cfg.FPS,
	}
}

// Device opens camera streams.
type Device interface {
	Open(c Constraints) (Stream, error)
}

// Stream is an open camera stream.
type Stream interface {
	// ID identifies the stream for logs and status.
	ID() string
	// TrackCount returns the number of live tracks.
	TrackCount() int
	// Dimensions returns the decoded frame size, zero until the first frame.
	Dimensions() (width, height int)
	// CurrentTime returns the playback time of the newest decoded frame.
	CurrentTime() time.Duration
	// Frame returns a copy of the newest frame. The caller closes it.
	Frame() (*gocv.Mat, error)
	// Stop ends every track. It is safe to call more than once.
	Stop()
}

// ErrorKind classifies camera failures.
type ErrorKind int

const (
	// Unavailable means the device is missing, busy or failed to start.
	Unavailable ErrorKind = iota
	// PermissionDenied means access to the device was refused.
	PermissionDenied
)

func (k ErrorKind) String() string {
	if k == PermissionDenied {
		return "permission_denied"
	}
	return "unavailable"
}

// CameraError is returned when a stream cannot be started.
type CameraError struct {
	Kind ErrorKind
	Err  error
}

func (e *CameraError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Kind, e.Err)
}

func (e *CameraError) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown next to the retry action.
func (e *CameraError) UserMessage() string {
	if e.Kind == PermissionDenied {
		return "Camera access was denied. Allow camera access and try again."
	}
	return "The camera could not be started. Make sure it is connected and not in use, then try again."
}

// classifyOpenError wraps a device error as a CameraError.
func classifyOpenError(err error) *CameraError {
	var camErr *CameraError
	if errors.As(err, &camErr) {
		return camErr
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "denied") || strings.Contains(msg, "not authorized") {
		return &CameraError{Kind: PermissionDenied, Err: err}
	}
	return &CameraError{Kind: Unavailable, Err: err}
}
