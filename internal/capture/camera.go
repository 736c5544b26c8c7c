package capture

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/logging"
)

// Default lifecycle timings.
const (
	DefaultReadyBackoff = 100 * time.Millisecond
	DefaultRestartDelay = 500 * time.Millisecond
)

// Camera owns at most one stream at a time. It also serves as the video
// source of the recognition loop by delegating to the attached stream.
type Camera struct {
	device       Device
	constraints  Constraints
	readyBackoff time.Duration
	restartDelay time.Duration
	log          *logrus.Entry

	mu     sync.Mutex
	stream Stream
}

// NewCamera creates a Camera that opens streams from device.
func NewCamera(device Device, cfg config.CameraConfig) *Camera {
	c := &Camera{
		device:       device,
		constraints:  ConstraintsFromConfig(cfg),
		readyBackoff: cfg.ReadyBackoff,
		restartDelay: cfg.RestartDelay,
		log:          logging.Component("camera"),
	}
	if c.readyBackoff <= 0 {
		c.readyBackoff = DefaultReadyBackoff
	}
	if c.restartDelay < 0 {
		c.restartDelay = DefaultRestartDelay
	}
	return c
}

// SetConstraints changes the constraints used by the next Start.
func (c *Camera) SetConstraints(cons Constraints) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.constraints = cons
}

// Constraints returns the constraints used by Start.
func (c *Camera) Constraints() Constraints {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.constraints
}

// Start opens a stream. If a stream is already attached it is returned and no
// second stream is opened. Failures are returned as *CameraError.
func (c *Camera) Start(ctx context.Context) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return c.stream, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s, err := c.device.Open(c.constraints)
	if err != nil {
		camErr := classifyOpenError(err)
		c.log.WithError(err).WithField("kind", camErr.Kind).Error("failed to start camera")
		return nil, camErr
	}

	c.stream = s
	c.log.WithFields(logging.Fields{
		"stream": s.ID(),
		"device": c.constraints.DeviceID,
		"facing": c.constraints.FacingMode,
	}).Info("camera stream started")
	return s, nil
}

// WaitReady polls until the attached stream reports non-zero decoded
// dimensions or ctx is done.
func (c *Camera) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(c.readyBackoff)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		s := c.stream
		c.mu.Unlock()

		if s == nil {
			return ErrCameraNotOpen
		}
		if w, h := s.Dimensions(); w > 0 && h > 0 {
			c.log.WithFields(logging.Fields{"width": w, "height": h}).Debug("camera ready")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop ends every track of the attached stream and detaches it. It is a
// no-op without a stream.
func (c *Camera) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return
	}
	id := c.stream.ID()
	c.stream.Stop()
	c.stream = nil
	c.log.WithField("stream", id).Info("camera stream stopped")
}

// Restart stops the stream, waits the restart delay and starts a new one.
func (c *Camera) Restart(ctx context.Context) (Stream, error) {
	c.Stop()

	if c.restartDelay > 0 {
		timer := time.NewTimer(c.restartDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return c.Start(ctx)
}

// Stream returns the attached stream or nil.
func (c *Camera) Stream() Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

// Active reports whether a stream is attached.
func (c *Camera) Active() bool {
	return c.Stream() != nil
}

// Dimensions returns the decoded size of the attached stream.
func (c *Camera) Dimensions() (int, int) {
	if s := c.Stream(); s != nil {
		return s.Dimensions()
	}
	return 0, 0
}

// CurrentTime returns the playback time of the attached stream.
func (c *Camera) CurrentTime() time.Duration {
	if s := c.Stream(); s != nil {
		return s.CurrentTime()
	}
	return 0
}

// Frame returns a copy of the newest frame of the attached stream.
func (c *Camera) Frame() (*gocv.Mat, error) {
	if s := c.Stream(); s != nil {
		return s.Frame()
	}
	return nil, ErrCameraNotOpen
}
