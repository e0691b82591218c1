package dispatch

import (
	"context"
	"time"

	"github.com/renomarket/dispatch-be/internal/domain"
)

// StateChange is one atomic mutation of the ledger: a compare-and-swap on the
// assignment state, an optional work-item status update, and an optional note
// append, all applied in a single transaction together with the idempotency
// marker for the inbound message that caused it.
type StateChange struct {
	AssignmentID string
	FromState    string
	ToState      string

	// Note is appended to the assignment's contractor notes when non-empty.
	Note string

	// WorkItemID and WorkItemStatus update the underlying work item when
	// WorkItemStatus is non-empty.
	WorkItemID     string
	WorkItemStatus string

	RespondedAt *time.Time
	CompletedAt *time.Time
}

// Ledger is the persistent record of assignments and work items. The dispatch
// engine owns it exclusively; every state mutation goes through conditional
// updates so concurrent webhook handlers and escalation sweeps cannot race
// each other into double transitions.
type Ledger interface {
	CreateWorkItem(ctx context.Context, item *domain.WorkItem) error
	GetWorkItem(ctx context.Context, workItemID string) (*domain.WorkItem, error)

	// CreateAssignment inserts a new PENDING assignment. It returns
	// *domain.ConflictError when the work item already has an assignment in a
	// non-terminal state.
	CreateAssignment(ctx context.Context, a *domain.Assignment) error

	GetAssignment(ctx context.Context, assignmentID string) (*domain.Assignment, error)

	// ActiveByContractor returns the contractor's single most recent
	// non-terminal assignment, ties broken by created_at descending. Returns
	// domain.ErrNoActiveAssignment when there is none.
	ActiveByContractor(ctx context.Context, contractorID string) (*domain.Assignment, error)

	// MarkNotified moves an assignment PENDING → NOTIFIED after a successful
	// send, records the provider message id, and marks the work item notified.
	MarkNotified(ctx context.Context, assignmentID, providerMessageID string) error

	// RecordInbound writes the idempotency marker for a message that causes no
	// state transition. Returns domain.ErrDuplicateMessage when the provider
	// message id was already recorded within the idempotency window.
	RecordInbound(ctx context.Context, msg *domain.InboundMessage) error

	// ApplyInbound records the idempotency marker and applies the state change
	// in one transaction. Returns domain.ErrDuplicateMessage for a replayed
	// provider message id and domain.ErrStateConflict when the
	// compare-and-swap loses to a concurrent transition; in both cases nothing
	// is written.
	ApplyInbound(ctx context.Context, msg *domain.InboundMessage, change *StateChange) error

	// UpdateDeliveryStatus records a carrier delivery-status callback against
	// the assignment that owns the outbound message id.
	UpdateDeliveryStatus(ctx context.Context, providerMessageID, status string) error

	// ClaimReminders atomically flips reminder_sent on every awaiting-response
	// assignment created before cutoff and returns the claimed rows. Claiming
	// before sending is what makes overlapping sweeps safe.
	ClaimReminders(ctx context.Context, cutoff time.Time) ([]domain.Assignment, error)

	// OverdueForExpiry lists awaiting-response assignments created before cutoff.
	OverdueForExpiry(ctx context.Context, cutoff time.Time) ([]domain.Assignment, error)

	// ExpireAssignment moves an awaiting-response assignment to EXPIRED and
	// flips its work item back to re-assignable, in one transaction. Returns
	// false when a concurrent transition got there first.
	ExpireAssignment(ctx context.Context, assignmentID string) (bool, error)

	// StalePending lists assignments whose initial notification never went out
	// and which were created before cutoff, for transport retry.
	StalePending(ctx context.Context, cutoff time.Time) ([]domain.Assignment, error)

	// PurgeDedupeLog deletes idempotency markers past their retention window.
	PurgeDedupeLog(ctx context.Context, now time.Time) (int64, error)
}

// Directory resolves contractor identity. Contractors are owned by the
// surrounding marketplace application; the dispatch core only reads them.
type Directory interface {
	// ContractorByPhone looks a contractor up by normalized national number.
	// Returns domain.ErrContractorNotFound when the phone is not recognized.
	ContractorByPhone(ctx context.Context, nationalNumber string) (*domain.Contractor, error)

	ContractorByID(ctx context.Context, contractorID string) (*domain.Contractor, error)

	// ConfirmCode checks a six-digit phone verification code for the number.
	ConfirmCode(ctx context.Context, nationalNumber, code string) (bool, error)
}
