package detector

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

// ONNX model tensor layout.
const (
	ONNXInputSize = 224

	onnxInputName      = "image"
	onnxLandmarksName  = "landmarks"
	onnxGesturesName   = "gestures"
	onnxHandednessName = "handedness"
	onnxPresenceName   = "presence"
)

var ortInit sync.Mutex

// InitONNXRuntime points onnxruntime at libPath and initializes the shared
// environment. Calling it again after success is a no-op.
func InitONNXRuntime(libPath string) error {
	ortInit.Lock()
	defer ortInit.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

// ONNXRecognizer implements Recognizer with a single-hand ONNX gesture model.
//
// The model takes a [1,3,224,224] RGB tensor scaled to [0,1] and produces
// landmarks [1,21,3] in normalized frame coordinates, gesture probabilities
// [1,8] in GestureCategories order, the probability that the hand is a right
// hand [1,1], and a hand presence score [1,1].
type ONNXRecognizer struct {
	opts       Options
	session    *ort.AdvancedSession
	input      *ort.Tensor[float32]
	landmarks  *ort.Tensor[float32]
	gestures   *ort.Tensor[float32]
	handedness *ort.Tensor[float32]
	presence   *ort.Tensor[float32]
	mu         sync.Mutex
	lastTS     int64
	closed     bool
}

// NewONNXRecognizer loads the model at opts.ModelAssetPath. InitONNXRuntime
// must have succeeded first.
func NewONNXRecognizer(opts Options) (*ONNXRecognizer, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	// CPU is the default execution provider; a single intra-op thread keeps
	// per-frame latency predictable next to the capture goroutine.
	if err := options.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("set intra op threads: %w", err)
	}

	r := &ONNXRecognizer{opts: opts, lastTS: -1}

	if r.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, ONNXInputSize, ONNXInputSize)); err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	if r.landmarks, err = ort.NewEmptyTensor[float32](ort.NewShape(1, NumLandmarks, 3)); err != nil {
		r.destroy()
		return nil, fmt.Errorf("create landmarks tensor: %w", err)
	}
	if r.gestures, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(GestureCategories)))); err != nil {
		r.destroy()
		return nil, fmt.Errorf("create gestures tensor: %w", err)
	}
	if r.handedness, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		r.destroy()
		return nil, fmt.Errorf("create handedness tensor: %w", err)
	}
	if r.presence, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		r.destroy()
		return nil, fmt.Errorf("create presence tensor: %w", err)
	}

	r.session, err = ort.NewAdvancedSession(
		opts.ModelAssetPath,
		[]string{onnxInputName},
		[]string{onnxLandmarksName, onnxGesturesName, onnxHandednessName, onnxPresenceName},
		[]ort.ArbitraryTensor{r.input},
		[]ort.ArbitraryTensor{r.landmarks, r.gestures, r.handedness, r.presence},
		options,
	)
	if err != nil {
		r.destroy()
		return nil, fmt.Errorf("create session for %s: %w", opts.ModelAssetPath, err)
	}

	return r, nil
}

// RecognizeForVideo runs the model over frame.
func (r *ONNXRecognizer) RecognizeForVideo(frame *gocv.Mat, timestampMs int64) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if timestampMs <= r.lastTS {
		return nil, fmt.Errorf("%w: %d after %d", ErrNonMonotonic, timestampMs, r.lastTS)
	}
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	r.lastTS = timestampMs

	img, err := frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	fillInput(r.input.GetData(), img)

	if err := r.session.Run(); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}

	return decodeONNXOutputs(
		r.landmarks.GetData(),
		r.gestures.GetData(),
		r.handedness.GetData()[0],
		r.presence.GetData()[0],
		r.opts.MinConfidence,
	), nil
}

// Close destroys the session and its tensors.
func (r *ONNXRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.destroy()
	return nil
}

func (r *ONNXRecognizer) destroy() {
	if r.session != nil {
		r.session.Destroy()
	}
	for _, t := range []*ort.Tensor[float32]{r.input, r.landmarks, r.gestures, r.handedness, r.presence} {
		if t != nil {
			t.Destroy()
		}
	}
}

// fillInput resizes img to the model input and writes it as planar RGB.
func fillInput(dst []float32, img image.Image) {
	resized := imaging.Resize(img, ONNXInputSize, ONNXInputSize, imaging.Linear)

	plane := ONNXInputSize * ONNXInputSize
	for y := 0; y < ONNXInputSize; y++ {
		for x := 0; x < ONNXInputSize; x++ {
			off := resized.PixOffset(x, y)
			i := y*ONNXInputSize + x
			dst[i] = float32(resized.Pix[off]) / 255
			dst[plane+i] = float32(resized.Pix[off+1]) / 255
			dst[2*plane+i] = float32(resized.Pix[off+2]) / 255
		}
	}
}

// decodeONNXOutputs converts raw model outputs into a Result. A presence score
// below minPresence means no hand.
func decodeONNXOutputs(landmarks, gestures []float32, rightProb, presence float32, minPresence float64) *Result {
	if float64(presence) < minPresence {
		return &Result{}
	}

	hand := HandLandmarks{Score: float64(presence)}
	for i := 0; i < NumLandmarks; i++ {
		hand.Points[i] = Point3D{
			X: float64(landmarks[i*3]),
			Y: float64(landmarks[i*3+1]),
			Z: float64(landmarks[i*3+2]),
		}
	}

	best, bestScore := 0, float32(math.Inf(-1))
	for i, s := range gestures {
		if i >= len(GestureCategories) {
			break
		}
		if s > bestScore {
			best, bestScore = i, s
		}
	}

	side, sideScore := "Right", rightProb
	if rightProb < 0.5 {
		side, sideScore = "Left", 1-rightProb
	}
	hand.Handedness = side

	return &Result{
		Landmarks: []HandLandmarks{hand},
		Gestures: [][]Category{{{
			Index:        best,
			Score:        float64(bestScore),
			CategoryName: GestureCategories[best],
		}}},
		Handedness: [][]Category{{{
			Index:        boolIndex(side == "Right"),
			Score:        float64(sideScore),
			CategoryName: side,
			DisplayName:  side,
		}}},
	}
}

func boolIndex(b bool) int {
	if b {
		return 1
	}
	return 0
}
