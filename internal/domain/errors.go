package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures at operation boundaries.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindAnalysis            ErrorKind = "analysis"
	KindInteractionDegraded ErrorKind = "interaction_degraded"
	KindSimulationFault     ErrorKind = "simulation_fault"
)

// Error is a classified failure. Message is what the UI shows.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of a classified error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Guard results. They reject an operation without changing state.
var (
	ErrBusy         = errors.New("operation already in progress")
	ErrInvalidPhase = errors.New("operation not available in current phase")
	ErrNoPlan       = errors.New("no execution plan")
	ErrNotExecuted  = errors.New("application is not running")
	ErrEmptyMessage = errors.New("message is empty")
	ErrStaleSession = errors.New("session was reset")
	ErrClosed       = errors.New("session is closed")
)
