package entity

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an entity operation needs a connected
	// client and there is none. It is not retried automatically.
	ErrNotConnected = errors.New("client not connected")

	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports a payload or configuration value outside the
// declared bounds, options or length of an entity.
type ValidationError struct {
	Entity string
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("entity %s: invalid %s: %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("entity %s: invalid %s %q: %s", e.Entity, e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// HandlerError wraps a failure (or panic) raised by application code behind
// a CommandHandler.
type HandlerError struct {
	Entity string
	Op     string
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("entity %s: %s: %v", e.Entity, e.Op, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// ConnectionError is a transport level failure. The dispatcher reacts to it
// by moving to the reconnecting state.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mqtt %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying once the link is back.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return true
	}
	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, context.DeadlineExceeded)
}

func invalid(entity, field, value, reason string) *ValidationError {
	return &ValidationError{Entity: entity, Field: field, Value: value, Reason: reason}
}
