package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingEngineArtifact means the bundled engine binary was not found.
	ErrMissingEngineArtifact = errors.New("engine artifact not found")
	// ErrBusy is returned when a run is requested while another is in flight.
	ErrBusy = errors.New("engine run already in progress")
	// ErrNoResult means the engine exited cleanly without a success message.
	ErrNoResult = errors.New("engine exited without a result")
	// ErrInvalidRequest means the job request is missing required fields.
	ErrInvalidRequest = errors.New("invalid job request")
)

// StageError reports a failure while preparing the staged engine binary.
type StageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("stage engine: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// EngineError is a failure the engine reported through its own protocol.
type EngineError struct {
	Message string
}

func (e *EngineError) Error() string {
	if e == nil {
		return ""
	}
	return "engine error: " + e.Message
}

// ExitError is an abnormal exit with no structured error beforehand.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("engine exited with code %d", e.Code)
}
