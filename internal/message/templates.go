// Package message renders assignment lifecycle events into channel-appropriate
// text. Every renderer is a pure function of its input data, which keeps the
// templates unit-testable with no I/O.
package message

import (
	"fmt"
	"strings"

	"github.com/renomarket/dispatch-be/internal/domain"
)

// Data carries the denormalized fields a template needs: the assignment plus
// the contractor, project, and work-item attributes it references.
type Data struct {
	ContractorName string
	ProjectName    string
	Description    string
	Area           string
	Trade          string
	Priority       string
	EstimatedHours float64
	Urgent         bool

	// AdminContact is the escalation contact shown on urgent assignments.
	AdminContact string
}

// urgentVariant reports whether the urgent template variant applies. Urgent
// items ask for an ETA in the reply and name the admin escalation contact.
func (d Data) urgentVariant() bool {
	return d.Urgent || d.Priority == domain.PriorityHigh
}

// NewAssignment renders the initial notification for a fresh assignment.
func NewAssignment(d Data) string {
	if d.urgentVariant() {
		return fmt.Sprintf(
			"🚨 URGENT: %s\n%s\n%s%s\nReply YES with your ETA, or NO if you can't take it. Questions? Contact %s.",
			d.ProjectName, d.Description, locationLine(d), estimateLine(d), d.AdminContact,
		)
	}
	return fmt.Sprintf(
		"New punch-list item for %s:\n%s\n%s%s\nReply YES to accept or NO to pass.",
		d.ProjectName, d.Description, locationLine(d), estimateLine(d),
	)
}

// Reminder renders the follow-up sent when an assignment has gone unanswered
// past the response deadline.
func Reminder(d Data) string {
	if d.urgentVariant() {
		return fmt.Sprintf(
			"🚨 Reminder: urgent item still waiting for you at %s: %s. Reply YES with your ETA or NO so we can reassign. Escalations: %s.",
			d.ProjectName, d.Description, d.AdminContact,
		)
	}
	return fmt.Sprintf(
		"Reminder: \"%s\" at %s is still waiting on you. Reply YES to accept or NO to pass.",
		d.Description, d.ProjectName,
	)
}

// AcceptConfirmation acknowledges an accepted assignment.
func AcceptConfirmation(d Data) string {
	return fmt.Sprintf(
		"You're on it, %s! \"%s\" at %s is yours. Text STARTED when you begin and DONE when you finish.",
		d.ContractorName, d.Description, d.ProjectName,
	)
}

// DeclineAck acknowledges a declined assignment.
func DeclineAck(d Data) string {
	return fmt.Sprintf(
		"No problem, %s. We'll offer \"%s\" to someone else.",
		d.ContractorName, d.Description,
	)
}

// StartedAck acknowledges that work has begun.
func StartedAck(d Data) string {
	return fmt.Sprintf("Got it, you've started \"%s\". Text DONE when it's finished.", d.Description)
}

// CompletionConfirmation acknowledges a completed work item.
func CompletionConfirmation(d Data) string {
	return fmt.Sprintf(
		"✅ \"%s\" at %s marked complete. Thanks, %s!",
		d.Description, d.ProjectName, d.ContractorName,
	)
}

// InfoReply answers a materials/details request with what we know about the item.
func InfoReply(d Data) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Details for \"%s\" at %s:\n", d.Description, d.ProjectName)
	if d.Area != "" {
		fmt.Fprintf(&b, "Location: %s\n", d.Area)
	}
	if d.Trade != "" {
		fmt.Fprintf(&b, "Trade: %s\n", d.Trade)
	}
	if d.EstimatedHours > 0 {
		fmt.Fprintf(&b, "Estimate: %.1f hrs\n", d.EstimatedHours)
	}
	b.WriteString("Reply YES to accept or NO to pass.")
	return b.String()
}

// ReassignedNotice is the courtesy message to a contractor whose unanswered
// assignment expired and went back into the pool.
func ReassignedNotice(d Data) string {
	return fmt.Sprintf(
		"We didn't hear back about \"%s\" at %s, so it's been reassigned. No action needed.",
		d.Description, d.ProjectName,
	)
}

// Help lists the replies the dispatcher understands. Sent whenever a reply
// can't be classified; an unrecognized message is always answered.
func Help() string {
	return "Sorry, I didn't catch that. Reply YES to accept, NO to pass, STARTED when you begin, DONE when you finish, or ask a question about the job."
}

// NoPendingWork is sent when a reply arrives from a contractor with no
// assignment awaiting a response.
func NoPendingWork() string {
	return "You have no pending punch-list items right now. We'll text you when the next one comes up."
}

// VerificationReceived confirms a successful phone verification code.
func VerificationReceived() string {
	return "✅ Phone verified. You'll receive punch-list assignments at this number."
}

// VerificationInvalid rejects a verification code that didn't match.
func VerificationInvalid() string {
	return "That code didn't match. Please re-check the code from your dashboard and try again."
}

func locationLine(d Data) string {
	if d.Area == "" {
		return ""
	}
	return fmt.Sprintf("Location: %s\n", d.Area)
}

func estimateLine(d Data) string {
	if d.EstimatedHours <= 0 {
		return ""
	}
	return fmt.Sprintf("Est: %.1f hrs\n", d.EstimatedHours)
}
