// Package gesture turns raw recognizer output into the gesture and finger
// state the demo consumers work with.
package gesture

import (
	"math"

	"github.com/ayusman/mudra/internal/detector"
)

// Label is a gesture classification label.
type Label string

const (
	LabelNone       Label = "None"
	LabelClosedFist Label = "Closed_Fist"
	LabelOpenPalm   Label = "Open_Palm"
	LabelPointingUp Label = "Pointing_Up"
	LabelThumbDown  Label = "Thumb_Down"
	LabelThumbUp    Label = "Thumb_Up"
	LabelVictory    Label = "Victory"
	LabelILoveYou   Label = "ILoveYou"
)

// Labels lists every label the model can produce.
var Labels = []Label{
	LabelNone,
	LabelClosedFist,
	LabelOpenPalm,
	LabelPointingUp,
	LabelThumbDown,
	LabelThumbUp,
	LabelVictory,
	LabelILoveYou,
}

var displayNames = map[Label]string{
	LabelNone:       "Ninguno",
	LabelClosedFist: "Puño Cerrado",
	LabelOpenPalm:   "Palma Abierta",
	LabelPointingUp: "Apuntando Arriba",
	LabelThumbDown:  "Pulgar Abajo",
	LabelThumbUp:    "Pulgar Arriba",
	LabelVictory:    "Victoria",
	LabelILoveYou:   "Te Amo",
}

// ParseLabel maps a model category name to a Label.
func ParseLabel(s string) (Label, bool) {
	l := Label(s)
	_, ok := displayNames[l]
	return l, ok
}

// DisplayName returns the label as shown on the demo page. Unknown labels are
// shown verbatim.
func (l Label) DisplayName() string {
	if name, ok := displayNames[l]; ok {
		return name
	}
	return string(l)
}

// Handedness is the side of the detected hand.
type Handedness string

const (
	Left  Handedness = "Left"
	Right Handedness = "Right"
)

// DisplayName returns the handedness as shown on the demo page.
func (h Handedness) DisplayName() string {
	if h == Left {
		return "Izquierda"
	}
	return "Derecha"
}

// Result is the gesture classified in one frame.
type Result struct {
	Gesture    Label      `json:"gesture"`
	Confidence int        `json:"confidence"` // percent, 0-100
	Handedness Handedness `json:"handedness"`
}

// FromDetection derives the frame's Result from recognizer output. It returns
// nil unless the model produced at least one gesture and one handedness.
func FromDetection(r *detector.Result) *Result {
	if r == nil || len(r.Gestures) == 0 || len(r.Gestures[0]) == 0 ||
		len(r.Handedness) == 0 || len(r.Handedness[0]) == 0 {
		return nil
	}

	g := r.Gestures[0][0]
	h := r.Handedness[0][0]

	side := Right
	name := h.DisplayName
	if name == "" {
		name = h.CategoryName
	}
	if name == string(Left) {
		side = Left
	}

	return &Result{
		Gesture:    Label(g.CategoryName),
		Confidence: Confidence(g.Score),
		Handedness: side,
	}
}

// Confidence converts a model score in [0,1] to a rounded percentage.
func Confidence(score float64) int {
	pct := int(math.Round(score * 100))
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}
