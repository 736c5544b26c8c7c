package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// GoCVDevice opens streams through OpenCV's VideoCapture.
type GoCVDevice struct{}

// NewGoCVDevice creates a device backed by gocv.
func NewGoCVDevice() *GoCVDevice {
	return &GoCVDevice{}
}

// Open opens the camera and starts a reader goroutine that keeps the newest
// decoded frame. The ideal resolution is requested and clamped to the maximum.
func (d *GoCVDevice) Open(c Constraints) (Stream, error) {
	capture, err := gocv.OpenVideoCapture(c.DeviceID)
	if err != nil {
		return nil, classifyOpenError(err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, &CameraError{Kind: Unavailable, Err: fmt.Errorf("device %d did not open", c.DeviceID)}
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.IdealWidth))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.IdealHeight))
	if c.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(c.FPS))
	}
	if c.MaxWidth > 0 && int(capture.Get(gocv.VideoCaptureFrameWidth)) > c.MaxWidth {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.MaxWidth))
	}
	if c.MaxHeight > 0 && int(capture.Get(gocv.VideoCaptureFrameHeight)) > c.MaxHeight {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.MaxHeight))
	}

	s := &gocvStream{
		id:      uuid.NewString(),
		capture: capture,
		latest:  gocv.NewMat(),
		started: time.Now(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		live:    true,
	}
	go s.readLoop()
	return s, nil
}

type gocvStream struct {
	id      string
	capture *gocv.VideoCapture
	started time.Time

	mu      sync.Mutex
	latest  gocv.Mat
	elapsed time.Duration
	width   int
	height  int
	live    bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func (s *gocvStream) readLoop() {
	defer close(s.doneCh)

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if ok := s.capture.Read(&mat); !ok || mat.Empty() {
			select {
			case <-s.stopCh:
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		s.mu.Lock()
		mat.CopyTo(&s.latest)
		s.elapsed = time.Since(s.started)
		s.width, s.height = mat.Cols(), mat.Rows()
		s.mu.Unlock()
	}
}

func (s *gocvStream) ID() string { return s.id }

func (s *gocvStream) TrackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live {
		return 1
	}
	return 0
}

func (s *gocvStream) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *gocvStream) CurrentTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

func (s *gocvStream) Frame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.live {
		return nil, ErrCameraNotOpen
	}
	if s.latest.Empty() {
		return nil, errors.New("no frame decoded yet")
	}
	frame := s.latest.Clone()
	return &frame, nil
}

// Stop joins the reader goroutine and releases the device.
func (s *gocvStream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh

		s.mu.Lock()
		defer s.mu.Unlock()
		s.live = false
		s.width, s.height = 0, 0
		s.capture.Close()
		s.latest.Close()
	})
}
