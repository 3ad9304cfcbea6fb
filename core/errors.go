package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by Config.Validate failures.
	ErrInvalidConfig = errors.New("invalid run config")
	// ErrUnknownStage is returned when the engine is asked to dispatch a stage
	// it has no implementation for.
	ErrUnknownStage = errors.New("unknown stage")
	// ErrRunNotFound is returned by run registries for unknown run ids.
	ErrRunNotFound = errors.New("run not found")
)

// ExtractionError reports that a structured value could not be recovered from
// model output. Raw carries the offending text for diagnostics.
type ExtractionError struct {
	Raw   string
	Cause error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction failed: %v", e.Cause)
	}
	return "extraction failed"
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// ModelErrorKind classifies gateway failures.
type ModelErrorKind string

const (
	// ModelErrorTransport covers network and provider side failures.
	ModelErrorTransport ModelErrorKind = "transport"
	// ModelErrorTimeout is a deadline exceeded while waiting on the model.
	ModelErrorTimeout ModelErrorKind = "timeout"
	// ModelErrorRefusal is an empty or refused completion.
	ModelErrorRefusal ModelErrorKind = "refusal"
)

// ModelError reports a failed gateway call.
type ModelError struct {
	Kind     ModelErrorKind
	Provider string
	Cause    error
}

func (e *ModelError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("model %s error (%s): %v", e.Provider, e.Kind, e.Cause)
	}
	return fmt.Sprintf("model error (%s): %v", e.Kind, e.Cause)
}

func (e *ModelError) Unwrap() error { return e.Cause }

// SearchError reports a failed persona index query.
type SearchError struct {
	Query string
	Cause error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("persona search %q failed: %v", e.Query, e.Cause)
}

func (e *SearchError) Unwrap() error { return e.Cause }

// PersistenceError reports a failed artifact save. It is logged, never fatal.
type PersistenceError struct {
	RunID    string
	Filename string
	Cause    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s/%s: %v", e.RunID, e.Filename, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// FatalStageError halts a run. State holds the last consistent state.
type FatalStageError struct {
	Stage StageID
	State GraphState
	Cause error
}

func (e *FatalStageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Cause)
}

func (e *FatalStageError) Unwrap() error { return e.Cause }

// IsRecoverable reports whether err is one of the error kinds a stage is
// expected to absorb with a fallback.
func IsRecoverable(err error) bool {
	var ee *ExtractionError
	var me *ModelError
	return errors.As(err, &ee) || errors.As(err, &me)
}
