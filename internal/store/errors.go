package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an item or source file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrLocked is returned when the editability predicate blocks an edit.
	ErrLocked = errors.New("item is locked for edits")
	// ErrInvalidState is returned when the operation is not valid for the
	// item's current status.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrConcurrencyConflict is returned when a generation job is requested
	// while another one is running.
	ErrConcurrencyConflict = errors.New("another generation job is running")
	// ErrOutOfScope is returned when a department creator acts on an item
	// that targets departments or categories outside their scope.
	ErrOutOfScope = errors.New("item is outside the creator scope")
)

// ConflictError reports which item holds the single generation slot.
type ConflictError struct {
	RunningID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: %v: %s", ErrConcurrencyConflict, e.RunningID)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrencyConflict }

func notFound(id string) error {
	return fmt.Errorf("store: %w: %s", ErrNotFound, id)
}
