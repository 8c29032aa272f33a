package engine

import (
	"errors"
	"fmt"

	"signalexecutor/src/model"
)

var (
	// ErrDuplicateSignal is returned when a source id was already ingested.
	ErrDuplicateSignal = errors.New("signal already ingested")
	// ErrInvalidTransition is returned when an operator asks for a transition
	// the signal status does not allow.
	ErrInvalidTransition = errors.New("invalid signal transition")
	ErrSignalNotFound    = errors.New("signal not found")
	// ErrOrdersOpen is returned by ForceClose while orders are still live.
	ErrOrdersOpen = errors.New("signal has open orders")
)

// ValidationError rejects a malformed signal at creation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid signal %s: %s", e.Field, e.Reason)
}

// InsufficientCapitalError means the allocation for a signal does not clear
// the pair minimums. The signal stays NEW and is retried on the next tick.
type InsufficientCapitalError struct {
	SignalID uint
	Err      error
}

func (e *InsufficientCapitalError) Error() string {
	return fmt.Sprintf("signal %d: insufficient capital: %v", e.SignalID, e.Err)
}

func (e *InsufficientCapitalError) Unwrap() error { return e.Err }

// TransitionError names the rejected transition. It matches ErrInvalidTransition.
type TransitionError struct {
	SignalID uint
	From     model.SignalStatus
	To       model.SignalStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("signal %d: %s -> %s: %v", e.SignalID, e.From, e.To, ErrInvalidTransition)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
