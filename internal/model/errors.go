package model

import "fmt"

// ErrorKind classifies a model load failure.
type ErrorKind int

const (
	// LoadFailure means every model asset was tried and none loaded.
	LoadFailure ErrorKind = iota
	// Timeout means the load sequence exceeded its deadline.
	Timeout
)

func (k ErrorKind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	default:
		return "load_failure"
	}
}

// ModelLoadError is returned by Loader.Initialize.
type ModelLoadError struct {
	Kind ErrorKind
	Err  error
}

func (e *ModelLoadError) Error() string {
	if e.Kind == Timeout {
		return fmt.Sprintf("gesture model load timed out: %v", e.Err)
	}
	return fmt.Sprintf("gesture model load failed: %v", e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown next to the retry action.
func (e *ModelLoadError) UserMessage() string {
	if e.Kind == Timeout {
		return "Loading the gesture recognizer took too long. Try reloading the page."
	}
	return "Could not load the gesture recognizer. Try again."
}
