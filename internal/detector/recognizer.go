package detector

import (
	"errors"

	"gocv.io/x/gocv"
)

// GestureCategories are the category names the gesture model classifies,
// in model output order.
var GestureCategories = []string{
	"None",
	"Closed_Fist",
	"Open_Palm",
	"Pointing_Up",
	"Thumb_Down",
	"Thumb_Up",
	"Victory",
	"ILoveYou",
}

// ErrNonMonotonic is returned when a video-mode timestamp does not increase.
var ErrNonMonotonic = errors.New("timestamp must increase monotonically")

// ErrClosed is returned when a recognizer is used after Close.
var ErrClosed = errors.New("recognizer is closed")

// RunningMode selects between single-image and streaming inference.
type RunningMode string

const (
	RunningModeImage RunningMode = "IMAGE"
	RunningModeVideo RunningMode = "VIDEO"
)

// Options configures recognizer construction.
type Options struct {
	ModelAssetPath string
	Delegate       string // "CPU" or "GPU"
	RunningMode    RunningMode
	NumHands       int
	MinConfidence  float64
}

// DefaultOptions returns streaming options for a single hand on the CPU.
func DefaultOptions(modelPath string) Options {
	return Options{
		ModelAssetPath: modelPath,
		Delegate:       "CPU",
		RunningMode:    RunningModeVideo,
		NumHands:       1,
		MinConfidence:  0.5,
	}
}

// Category is one scored classification.
type Category struct {
	Index        int     `json:"index"`
	Score        float64 `json:"score"`
	CategoryName string  `json:"category"`
	DisplayName  string  `json:"display_name,omitempty"`
}

// Result is the output of one recognizer invocation. Each slice has one entry
// per detected hand; Gestures and Handedness hold that hand's categories
// ordered by descending score.
type Result struct {
	Landmarks  []HandLandmarks `json:"landmarks"`
	Gestures   [][]Category    `json:"gestures"`
	Handedness [][]Category    `json:"handedness"`
}

// Empty reports whether no hand was detected.
func (r *Result) Empty() bool {
	return r == nil || len(r.Landmarks) == 0
}

// Recognizer runs the gesture model over video frames.
type Recognizer interface {
	// RecognizeForVideo analyzes frame at timestampMs. Timestamps must strictly
	// increase across calls.
	RecognizeForVideo(frame *gocv.Mat, timestampMs int64) (*Result, error)

	// Close releases any resources held by the recognizer.
	Close() error
}
