package dispatch

import (
	"github.com/renomarket/dispatch-be/internal/domain"
	"github.com/renomarket/dispatch-be/internal/intent"
)

type transitionKey struct {
	state  string
	intent intent.Intent
}

// transitions is the state machine as data. A (state, intent) pair absent from
// this table leaves the assignment unchanged and earns the contractor a help
// message; a terminal state is never mutated regardless of intent.
var transitions = map[transitionKey]string{
	{domain.AssignmentStateNotified, intent.IntentAccept}:       domain.AssignmentStateAccepted,
	{domain.AssignmentStateNotified, intent.IntentDecline}:      domain.AssignmentStateDeclined,
	{domain.AssignmentStateNotified, intent.IntentInfoRequest}:  domain.AssignmentStateNotified,
	{domain.AssignmentStateAccepted, intent.IntentStarted}:      domain.AssignmentStateInProgress,
	{domain.AssignmentStateInProgress, intent.IntentCompleted}:  domain.AssignmentStateCompleted,
}

// Next returns the state an assignment moves to for the given intent, and
// whether the pair is in the transition table at all. When ok is false the
// state is returned unchanged.
func Next(state string, in intent.Intent) (string, bool) {
	if domain.TerminalState(state) {
		return state, false
	}
	to, ok := transitions[transitionKey{state: state, intent: in}]
	if !ok {
		return state, false
	}
	return to, true
}
