package overlay

import (
	"fmt"
	"image/color"
	"sync"
)

// RecordingCanvas is a Canvas that records drawing calls instead of drawing.
type RecordingCanvas struct {
	mu      sync.Mutex
	width   int
	height  int
	stroke  stroke
	stack   []stroke
	ops     []string
	lines   int
	circles int
}

// NewRecordingCanvas creates a RecordingCanvas of the given size.
func NewRecordingCanvas(width, height int) *RecordingCanvas {
	return &RecordingCanvas{width: width, height: height, stroke: stroke{width: 1}}
}

func (r *RecordingCanvas) record(op string) {
	r.ops = append(r.ops, op)
}

func (r *RecordingCanvas) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

func (r *RecordingCanvas) SetSize(w, h int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.width, r.height = w, h
	r.record(fmt.Sprintf("size %dx%d", w, h))
}

func (r *RecordingCanvas) Save() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stack = append(r.stack, r.stroke)
	r.record("save")
}

func (r *RecordingCanvas) Restore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.stack); n > 0 {
		r.stroke = r.stack[n-1]
		r.stack = r.stack[:n-1]
	}
	r.record("restore")
}

func (r *RecordingCanvas) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines, r.circles = 0, 0
	r.record("clear")
}

func (r *RecordingCanvas) SetStroke(c color.RGBA, width int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stroke = stroke{color: c, width: width}
	r.record(fmt.Sprintf("stroke #%02x%02x%02x/%d", c.R, c.G, c.B, width))
}

func (r *RecordingCanvas) Line(x0, y0, x1, y1 float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines++
	r.record("line")
}

func (r *RecordingCanvas) Circle(x, y, radius float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.circles++
	r.record("circle")
}

// Ops returns every recorded call in order.
func (r *RecordingCanvas) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

// Drawn returns the lines and circles drawn since the last Clear.
func (r *RecordingCanvas) Drawn() (lines, circles int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines, r.circles
}

// Depth returns the number of saved stroke states.
func (r *RecordingCanvas) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stack)
}

// Stroke returns the current stroke.
func (r *RecordingCanvas) Stroke() (color.RGBA, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stroke.color, r.stroke.width
}

// Reset forgets recorded calls.
func (r *RecordingCanvas) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
}
