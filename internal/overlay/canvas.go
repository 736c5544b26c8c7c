package overlay

import (
	"image"
	"image/color"
	"math"
	"sync"

	"gocv.io/x/gocv"
)

type stroke struct {
	color color.RGBA
	width int
}

// MatCanvas is a transparent BGRA canvas backed by a gocv.Mat.
type MatCanvas struct {
	mu     sync.Mutex
	mat    gocv.Mat
	stroke stroke
	stack  []stroke
}

// NewMatCanvas creates a transparent canvas of the given size.
func NewMatCanvas(width, height int) *MatCanvas {
	c := &MatCanvas{stroke: stroke{color: color.RGBA{A: 255}, width: 1}}
	c.mat = newTransparent(width, height)
	return c
}

func newTransparent(width, height int) gocv.Mat {
	if width <= 0 || height <= 0 {
		return gocv.NewMat()
	}
	m := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC4)
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return m
}

func (c *MatCanvas) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mat.Cols(), c.mat.Rows()
}

// SetSize reallocates the canvas when the size differs. Contents are lost.
func (c *MatCanvas) SetSize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mat.Cols() == width && c.mat.Rows() == height {
		return
	}
	c.mat.Close()
	c.mat = newTransparent(width, height)
}

func (c *MatCanvas) Save() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stack = append(c.stack, c.stroke)
}

func (c *MatCanvas) Restore() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.stack); n > 0 {
		c.stroke = c.stack[n-1]
		c.stack = c.stack[:n-1]
	}
}

func (c *MatCanvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mat.Empty() {
		c.mat.SetTo(gocv.NewScalar(0, 0, 0, 0))
	}
}

func (c *MatCanvas) SetStroke(col color.RGBA, width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stroke = stroke{color: col, width: width}
}

func (c *MatCanvas) Line(x0, y0, x1, y1 float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mat.Empty() {
		return
	}
	gocv.Line(&c.mat, pt(x0, y0), pt(x1, y1), c.stroke.color, c.stroke.width)
}

func (c *MatCanvas) Circle(x, y, radius float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mat.Empty() {
		return
	}
	gocv.Circle(&c.mat, pt(x, y), int(math.Round(radius)), c.stroke.color, c.stroke.width)
}

// StrokeDepth returns the number of saved stroke states.
func (c *MatCanvas) StrokeDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stack)
}

// CompositeOnto draws the canvas over frame, a BGR image, using the canvas
// alpha channel as the mask. The canvas is scaled to the frame if needed.
func (c *MatCanvas) CompositeOnto(frame *gocv.Mat) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mat.Empty() || frame == nil || frame.Empty() {
		return
	}

	src := c.mat
	if src.Cols() != frame.Cols() || src.Rows() != frame.Rows() {
		scaled := gocv.NewMat()
		defer scaled.Close()
		gocv.Resize(c.mat, &scaled, image.Pt(frame.Cols(), frame.Rows()), 0, 0, gocv.InterpolationNearestNeighbor)
		src = scaled
	}

	channels := gocv.Split(src)
	defer func() {
		for i := range channels {
			channels[i].Close()
		}
	}()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(src, &bgr, gocv.ColorBGRAToBGR)

	bgr.CopyToWithMask(frame, channels[3])
}

// Close releases the backing Mat.
func (c *MatCanvas) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mat.Close()
}

func pt(x, y float64) image.Point {
	return image.Pt(int(math.Round(x)), int(math.Round(y)))
}
