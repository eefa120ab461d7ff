package wallet

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	// ErrInsufficientFunds is returned when a negative balance delta would
	// drive an account balance below zero. No state change occurs.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNoChannelAvailable is returned when no payment channel is
	// provisioned at all (distinct from "none currently eligible", which
	// triggers a global reset instead).
	ErrNoChannelAvailable = errors.New("no payment channel configured")
)

// ValidationError reports a caller-supplied input that failed validation
// before any mutation began.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown entity id.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// ConflictError reports an operation that conflicts with current state:
// re-transitioning a terminal journal row, or re-processing an already
// reviewed withdrawal. No state change occurs.
type ConflictError struct {
	Entity string
	ID     int64
	From   Status
	To     Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %d: invalid transition %s -> %s", e.Entity, e.ID, e.From, e.To)
}

// StoreError wraps an underlying persistence failure. It is the only error
// class that can surface mid-mutation; the enclosing atomic unit rolls back
// entirely when it does.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
