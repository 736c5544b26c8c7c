package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MediaPipeRuntime locates the Python interpreter and gesture service script
// that make up the MediaPipe runtime bundle.
type MediaPipeRuntime struct {
	Python string
	Script string
}

// ResolveMediaPipeRuntime finds the gesture service script, searching dir first
// when it is not empty.
func ResolveMediaPipeRuntime(dir string) (MediaPipeRuntime, error) {
	script := findGestureScript(dir)
	if script == "" {
		return MediaPipeRuntime{}, fmt.Errorf("gesture_service.py not found")
	}

	python := findVenvPython()
	if python == "" {
		python = "python3"
	}
	return MediaPipeRuntime{Python: python, Script: script}, nil
}

// MediaPipeRecognizer implements Recognizer using a Python MediaPipe subprocess.
//
// Wire protocol: each request is a 4-byte big-endian payload length, an 8-byte
// big-endian timestamp in milliseconds and a JPEG payload. Each response is a
// single JSON line. The service prints {"ready":true} once the model is loaded.
type MediaPipeRecognizer struct {
	opts   Options
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *io.PipeWriter
	mu     sync.Mutex
	lastTS int64
	closed bool
}

// NewMediaPipeRecognizer starts the gesture service and blocks until it reports
// the model loaded, it fails, or ctx is done.
func NewMediaPipeRecognizer(ctx context.Context, rt MediaPipeRuntime, opts Options, log *logrus.Entry) (*MediaPipeRecognizer, error) {
	if opts.RunningMode == "" {
		opts.RunningMode = RunningModeVideo
	}

	cmd := exec.Command(rt.Python, rt.Script,
		"--model", opts.ModelAssetPath,
		"--num-hands", strconv.Itoa(opts.NumHands),
		"--delegate", opts.Delegate,
		"--running-mode", string(opts.RunningMode),
		"--min-confidence", strconv.FormatFloat(opts.MinConfidence, 'f', 2, 64),
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	// Service diagnostics go through the process logger so its noise filter applies.
	var stderr *io.PipeWriter
	if log != nil {
		stderr = log.WriterLevel(logrus.WarnLevel)
		cmd.Stderr = stderr
	} else {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		if stderr != nil {
			stderr.Close()
		}
		return nil, fmt.Errorf("start gesture service: %w", err)
	}

	r := &MediaPipeRecognizer{
		opts:   opts,
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		stderr: stderr,
		lastTS: -1,
	}

	ready := make(chan error, 1)
	go func() {
		ready <- r.awaitReady()
	}()

	select {
	case err := <-ready:
		if err != nil {
			r.Close()
			return nil, err
		}
	case <-ctx.Done():
		r.cmd.Process.Kill()
		r.Close()
		return nil, ctx.Err()
	}

	return r, nil
}

func (r *MediaPipeRecognizer) awaitReady() error {
	line, err := r.stdout.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}

	var hs struct {
		Ready bool   `json:"ready"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(line, &hs); err != nil {
		return fmt.Errorf("parse handshake: %w", err)
	}
	if !hs.Ready {
		return fmt.Errorf("load model %s: %s", r.opts.ModelAssetPath, hs.Error)
	}
	return nil
}

// RecognizeForVideo sends frame to the service and returns its classification.
func (r *MediaPipeRecognizer) RecognizeForVideo(frame *gocv.Mat, timestampMs int64) (*Result, error) {
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

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	header := make([]byte, 12)
	binary.BigEndian.PutUint32(header[:4], uint32(len(data)))
	binary.BigEndian.PutUint64(header[4:], uint64(timestampMs))

	if _, err := r.stdin.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if _, err := r.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}
	r.lastTS = timestampMs

	line, err := r.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return parseServiceResponse(line)
}

// Close shuts down the Python process.
func (r *MediaPipeRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.stdin != nil {
		r.stdin.Close()
	}
	err := r.cmd.Wait()
	if r.stderr != nil {
		r.stderr.Close()
	}
	return err
}

// serviceResponse is the JSON structure produced by the Python service.
type serviceResponse struct {
	Hands      []jsonHand   `json:"hands"`
	Gestures   [][]Category `json:"gestures"`
	Handedness [][]Category `json:"handedness"`
	Error      string       `json:"error"`
}

type jsonHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

func parseServiceResponse(line []byte) (*Result, error) {
	var resp serviceResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("gesture service: %s", resp.Error)
	}

	result := &Result{
		Landmarks:  make([]HandLandmarks, len(resp.Hands)),
		Gestures:   resp.Gestures,
		Handedness: resp.Handedness,
	}
	for i, h := range resp.Hands {
		result.Landmarks[i] = h.toHandLandmarks()
	}
	return result, nil
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}
	for i := 0; i < NumLandmarks && i < len(h.Points); i++ {
		lm.Points[i] = h.Points[i]
	}
	return lm
}

func findGestureScript(dir string) string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	var candidates []string
	if dir != "" {
		candidates = append(candidates, filepath.Join(dir, "gesture_service.py"))
	}
	candidates = append(candidates,
		"scripts/gesture_service.py",
		"../scripts/gesture_service.py",
		filepath.Join(execDir, "scripts/gesture_service.py"),
		filepath.Join(os.Getenv("HOME"), ".mudra/scripts/gesture_service.py"),
	)

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".mudra/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
