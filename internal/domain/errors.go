package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicatePosition is returned by Add when an equivalent open
	// position already exists in the portfolio.
	ErrDuplicatePosition = errors.New("duplicate position")

	// ErrPositionNotFound is returned by Close/Remove for an unknown id.
	ErrPositionNotFound = errors.New("position not found")

	// ErrPositionClosed is returned when a close is attempted on a
	// position that is not open.
	ErrPositionClosed = errors.New("position already closed")
)

// ValidationError reports a rejected input parameter. No state is
// mutated when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
