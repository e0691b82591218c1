package domain

import "time"

// Assignment state constants. DECLINED, COMPLETED and EXPIRED are terminal;
// an assignment that reaches one of them is archived, never mutated again.
const (
	AssignmentStatePending    = "PENDING"
	AssignmentStateNotified   = "NOTIFIED"
	AssignmentStateAccepted   = "ACCEPTED"
	AssignmentStateInProgress = "IN_PROGRESS"
	AssignmentStateDeclined   = "DECLINED"
	AssignmentStateCompleted  = "COMPLETED"
	AssignmentStateExpired    = "EXPIRED"
)

// Assignment binds one work item to one contractor at one point in time.
// At most one assignment per work item may be in a non-terminal state.
type Assignment struct {
	AssignmentID      string     `db:"assignment_id"`
	WorkItemID        string     `db:"work_item_id"`
	ContractorID      string     `db:"contractor_id"`
	ProjectID         string     `db:"project_id"`
	State             string     `db:"state"`
	Urgent            bool       `db:"urgent"`
	Notes             string     `db:"notes"`
	OutboundMessageID string     `db:"outbound_message_id"`
	DeliveryStatus    string     `db:"delivery_status"`
	ReminderSent      bool       `db:"reminder_sent"`
	CreatedAt         time.Time  `db:"created_at"`
	NotifiedAt        *time.Time `db:"notified_at"`
	RespondedAt       *time.Time `db:"responded_at"`
	CompletedAt       *time.Time `db:"completed_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// TerminalState reports whether state is one an assignment never leaves.
func TerminalState(state string) bool {
	switch state {
	case AssignmentStateDeclined, AssignmentStateCompleted, AssignmentStateExpired:
		return true
	}
	return false
}

// Active reports whether the assignment is still in a non-terminal state.
func (a *Assignment) Active() bool {
	return !TerminalState(a.State)
}

// AwaitingResponse reports whether the assignment is still waiting for the
// contractor's first reply, which is the window the escalation sweep acts on.
func (a *Assignment) AwaitingResponse() bool {
	return a.State == AssignmentStatePending || a.State == AssignmentStateNotified
}
