// Package overlay draws detected hand landmarks onto a transparent canvas
// aligned to the video frame.
package overlay

import (
	"image/color"

	"github.com/ayusman/mudra/internal/detector"
)

// Drawing styles.
var (
	ConnectorColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	LandmarkColor  = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

const (
	ConnectorWidth = 3
	LandmarkWidth  = 2
	LandmarkRadius = 4
)

// Canvas is a 2D drawing surface with save/restore of stroke state.
// Coordinates are in pixels.
type Canvas interface {
	Size() (width, height int)
	SetSize(width, height int)
	Save()
	Restore()
	Clear()
	SetStroke(c color.RGBA, width int)
	Line(x0, y0, x1, y1 float64)
	Circle(x, y, radius float64)
}

// Renderer draws the hand topology.
type Renderer struct {
	connections []detector.Connection
}

// NewRenderer creates a Renderer using the standard 21-point hand topology.
func NewRenderer() *Renderer {
	return &Renderer{connections: detector.HandConnections}
}

// Render clears canvas and draws connectors and points for every hand.
// Stroke state is restored before returning.
func (r *Renderer) Render(canvas Canvas, hands []detector.HandLandmarks) {
	canvas.Save()
	defer canvas.Restore()

	canvas.Clear()

	w, h := canvas.Size()
	fw, fh := float64(w), float64(h)

	for i := range hands {
		pts := &hands[i].Points

		canvas.SetStroke(ConnectorColor, ConnectorWidth)
		for _, c := range r.connections {
			a, b := pts[c.Start], pts[c.End]
			canvas.Line(a.X*fw, a.Y*fh, b.X*fw, b.Y*fh)
		}

		canvas.SetStroke(LandmarkColor, LandmarkWidth)
		for _, p := range pts {
			canvas.Circle(p.X*fw, p.Y*fh, LandmarkRadius)
		}
	}
}

// Clear wipes canvas without drawing.
func (r *Renderer) Clear(canvas Canvas) {
	canvas.Save()
	defer canvas.Restore()
	canvas.Clear()
}
