package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkItemNotFound is returned when a work item cannot be found
	ErrWorkItemNotFound = errors.New("work item not found")

	// ErrAssignmentNotFound is returned when an assignment cannot be found
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrNoActiveAssignment is returned when a contractor has no assignment
	// in a non-terminal state
	ErrNoActiveAssignment = errors.New("no active assignment for contractor")

	// ErrContractorNotFound is returned when an inbound phone number does not
	// resolve to a known contractor
	ErrContractorNotFound = errors.New("contractor not found")

	// ErrDuplicateMessage is returned when a provider message id has already
	// been processed within the idempotency window
	ErrDuplicateMessage = errors.New("provider message already processed")

	// ErrStateConflict is returned when a compare-and-swap state update loses
	// to a concurrent transition on the same assignment
	ErrStateConflict = errors.New("assignment state changed concurrently")
)

// ConflictError is returned when creating an assignment for a work item that
// already has an assignment in a non-terminal state. The caller must wait for
// the active assignment to be declined or expired before dispatching again.
type ConflictError struct {
	WorkItemID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("work item %s already has an active assignment", e.WorkItemID)
}

// TransportError wraps a failed outbound send. The assignment stays in its
// pre-send state and the escalation sweep retries on its next pass.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport send failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err as a retryable transport failure.
func NewTransportError(err error) error {
	return &TransportError{Err: err}
}
