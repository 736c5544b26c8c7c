package capture

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockDevice opens MockStreams that play back pre-recorded frames.
type MockDevice struct {
	mu      sync.Mutex
	frames  []*gocv.Mat
	width   int
	height  int
	tracks  int
	err     error
	opened  []*MockStream
	lastReq Constraints
}

// NewMockDevice creates a device whose streams report the given decoded size
// once their first frame is advanced.
func NewMockDevice(frames []*gocv.Mat, width, height int) *MockDevice {
	return &MockDevice{frames: frames, width: width, height: height, tracks: 1}
}

// SetError makes subsequent Open calls fail with err.
func (d *MockDevice) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// SetTracks sets the track count of newly opened streams.
func (d *MockDevice) SetTracks(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tracks = n
}

// Open returns a new MockStream or the configured error.
func (d *MockDevice) Open(c Constraints) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastReq = c
	if d.err != nil {
		return nil, d.err
	}

	s := &MockStream{
		id:     fmt.Sprintf("mock-%d", len(d.opened)+1),
		frames: d.frames,
		width:  d.width,
		height: d.height,
		tracks: d.tracks,
		index:  -1,
	}
	d.opened = append(d.opened, s)
	return s, nil
}

// Opened returns every stream opened so far.
func (d *MockDevice) Opened() []*MockStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockStream(nil), d.opened...)
}

// LiveTracks returns the number of live tracks across all opened streams.
func (d *MockDevice) LiveTracks() int {
	n := 0
	for _, s := range d.Opened() {
		n += s.TrackCount()
	}
	return n
}

// LastConstraints returns the constraints of the most recent Open.
func (d *MockDevice) LastConstraints() Constraints {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastReq
}

// MockStream is a Stream whose playback is advanced by hand.
type MockStream struct {
	mu      sync.Mutex
	id      string
	frames  []*gocv.Mat
	index   int
	width   int
	height  int
	tracks  int
	elapsed time.Duration
	stopped bool
}

// Advance moves to the next frame (looping) and advances playback time by d.
// Dimensions become non-zero on the first Advance.
func (s *MockStream) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.index++
	if len(s.frames) > 0 {
		s.index %= len(s.frames)
	}
	s.elapsed += d
}

func (s *MockStream) ID() string { return s.id }

func (s *MockStream) TrackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0
	}
	return s.tracks
}

func (s *MockStream) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.index < 0 {
		return 0, 0
	}
	return s.width, s.height
}

func (s *MockStream) CurrentTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Frame clones the current frame so the original isn't modified.
func (s *MockStream) Frame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrCameraNotOpen
	}
	if len(s.frames) == 0 || s.index < 0 {
		return nil, fmt.Errorf("no frames available")
	}
	frame := s.frames[s.index].Clone()
	return &frame, nil
}

func (s *MockStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// Stopped reports whether Stop was called.
func (s *MockStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
