package dispatch_test

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/renomarket/dispatch-be/internal/dispatch"
	"github.com/renomarket/dispatch-be/internal/dispatch/dispatchtest"
	"github.com/renomarket/dispatch-be/internal/domain"
	"github.com/renomarket/dispatch-be/internal/intent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPhoneKey   = "5125550142"
	testPhoneRaw   = "+15125550142"
	testAdmin      = "(512) 555-0100"
	testContractor = "contractor-1"
)

type fixture struct {
	engine *dispatch.Engine
	ledger *dispatchtest.MemLedger
	sender *dispatchtest.RecordingSender
	dir    *dispatchtest.FakeDirectory
	item   domain.WorkItem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ledger := dispatchtest.NewMemLedger()
	sender := dispatchtest.NewRecordingSender()
	dir := dispatchtest.NewFakeDirectory()

	dir.Add(domain.Contractor{
		ContractorID: testContractor,
		BusinessName: "Rivera Plumbing",
		Phone:        testPhoneRaw,
	}, testPhoneKey)

	engine := dispatch.NewEngine(
		&dispatch.Config{AdminContact: testAdmin},
		ledger, dir, sender,
		slog.Default(),
	)

	item := domain.WorkItem{
		ProjectID:      "proj-1",
		ProjectName:    "Oak Street Duplex",
		Description:    "Replace kitchen faucet",
		Area:           "Kitchen",
		Trade:          domain.TradePlumbing,
		Priority:       domain.PriorityMedium,
		EstimatedHours: 1.5,
	}
	created, err := engine.CreateWorkItems(context.Background(), []domain.WorkItem{item})
	require.NoError(t, err)

	return &fixture{
		engine: engine,
		ledger: ledger,
		sender: sender,
		dir:    dir,
		item:   created[0],
	}
}

func (f *fixture) inbound(t *testing.T, body, providerID string) {
	t.Helper()
	err := f.engine.HandleInbound(context.Background(), &domain.InboundMessage{
		ProviderMessageID: providerID,
		FromPhone:         testPhoneRaw,
		Body:              body,
		ReceivedAt:        time.Now(),
	})
	require.NoError(t, err)
}

func TestCreateAssignment(t *testing.T) {
	f := newFixture(t)

	a, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err)

	assert.Equal(t, domain.AssignmentStateNotified, a.State)
	assert.NotEmpty(t, a.OutboundMessageID)
	assert.Equal(t, domain.WorkItemStatusNotified, f.ledger.WorkItem(f.item.WorkItemID).Status)

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, testPhoneRaw, sent[0].To)
	assert.Contains(t, sent[0].Body, "Replace kitchen faucet")
	assert.NotContains(t, sent[0].Body, "URGENT")
}

func TestCreateAssignment_UrgentUsesUrgentTemplate(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, true)
	require.NoError(t, err)

	body := f.sender.LastSent().Body
	assert.Contains(t, body, "URGENT")
	assert.Contains(t, body, testAdmin)
	assert.Contains(t, body, "ETA")
}

func TestCreateAssignment_ConflictOnActiveAssignment(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err)

	_, err = f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.Error(t, err)

	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, f.item.WorkItemID, conflict.WorkItemID)
}

func TestCreateAssignment_TransportFailureStaysPending(t *testing.T) {
	f := newFixture(t)
	f.sender.FailNext = 1

	a, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err, "transport failure must not surface to the caller")

	assert.Equal(t, domain.AssignmentStatePending, a.State)
	assert.Equal(t, domain.AssignmentStatePending, f.ledger.Assignment(a.AssignmentID).State)
	assert.Empty(t, f.sender.Sent())
}

func TestHandleInbound_AcceptFlow(t *testing.T) {
	f := newFixture(t)
	a, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err)

	f.inbound(t, "Yes I'll take it", "MM1")

	got := f.ledger.Assignment(a.AssignmentID)
	assert.Equal(t, domain.AssignmentStateAccepted, got.State)
	assert.NotNil(t, got.RespondedAt)
	assert.Contains(t, got.Notes, "Yes I'll take it")

	reply := f.sender.LastSent().Body
	assert.Contains(t, reply, "Replace kitchen faucet")
}

func TestHandleInbound_DeclineReleasesWorkItem(t *testing.T) {
	f := newFixture(t)
	a, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err)

	f.inbound(t, "no thanks", "MM1")

	assert.Equal(t, domain.AssignmentStateDeclined, f.ledger.Assignment(a.AssignmentID).State)
	assert.Equal(t, domain.WorkItemStatusExtracted, f.ledger.WorkItem(f.item.WorkItemID).Status)

	// The work item is re-eligible: a second dispatch now succeeds.
	b, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err)
	assert.NotEqual(t, a.AssignmentID, b.AssignmentID)
}

func TestHandleInbound_FullLifecycle(t *testing.T) {
	f := newFixture(t)
	a, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err)

	f.inbound(t, "accept", "MM1")
	assert.Equal(t, domain.AssignmentStateAccepted, f.ledger.Assignment(a.AssignmentID).State)

	f.inbound(t, "started this morning", "MM2")
	got := f.ledger.Assignment(a.AssignmentID)
	assert.Equal(t, domain.AssignmentStateInProgress, got.State)
	assert.Contains(t, got.Notes, "started this morning")

	f.inbound(t, "all done", "MM3")
	got = f.ledger.Assignment(a.AssignmentID)
	assert.Equal(t, domain.AssignmentStateCompleted, got.State)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, domain.WorkItemStatusCompleted, f.ledger.WorkItem(f.item.WorkItemID).Status)
}

func TestHandleInbound_Idempotent(t *testing.T) {
	f := newFixture(t)
	a, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err)

	f.inbound(t, "accept", "MM1")
	stateAfterFirst := f.ledger.Assignment(a.AssignmentID)
	sendsAfterFirst := len(f.sender.Sent())

	// Carrier redelivers the same message.
	f.inbound(t, "accept", "MM1")

	assert.Equal(t, stateAfterFirst.State, f.ledger.Assignment(a.AssignmentID).State)
	assert.Equal(t, stateAfterFirst.Notes, f.ledger.Assignment(a.AssignmentID).Notes)
	assert.Equal(t, sendsAfterFirst, len(f.sender.Sent()), "replay must not send again")
}

func TestHandleInbound_UnknownSendsHelp(t *testing.T) {
	f := newFixture(t)
	a, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err)

	f.inbound(t, "zzz gibberish zzz", "MM1")

	assert.Equal(t, domain.AssignmentStateNotified, f.ledger.Assignment(a.AssignmentID).State)
	assert.Contains(t, f.sender.LastSent().Body, "didn't catch that")
}

func TestHandleInbound_InfoRequestKeepsState(t *testing.T) {
	f := newFixture(t)
	a, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err)

	f.inbound(t, "what materials do I need", "MM1")

	assert.Equal(t, domain.AssignmentStateNotified, f.ledger.Assignment(a.AssignmentID).State)
	reply := f.sender.LastSent().Body
	assert.Contains(t, reply, "Kitchen")
	assert.Contains(t, reply, domain.TradePlumbing)
}

func TestHandleInbound_UnresolvedContractor(t *testing.T) {
	f := newFixture(t)

	err := f.engine.HandleInbound(context.Background(), &domain.InboundMessage{
		ProviderMessageID: "MM1",
		FromPhone:         "+15125559999",
		Body:              "accept",
		ReceivedAt:        time.Now(),
	})
	require.NoError(t, err, "unrecognized phone must not error")

	assert.Contains(t, f.sender.LastSent().Body, "didn't catch that")
}

func TestHandleInbound_NoActiveAssignment(t *testing.T) {
	f := newFixture(t)

	f.inbound(t, "accept", "MM1")

	assert.Contains(t, f.sender.LastSent().Body, "no pending")
}

func TestHandleInbound_VerificationCode(t *testing.T) {
	f := newFixture(t)
	f.dir.SetCode(testPhoneKey, "482913")

	// The code path bypasses assignment lookup even with an active assignment.
	a, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err)

	f.inbound(t, "482913", "MM1")
	assert.Contains(t, f.sender.LastSent().Body, "verified")
	assert.Equal(t, domain.AssignmentStateNotified, f.ledger.Assignment(a.AssignmentID).State)

	f.inbound(t, "000000", "MM2")
	assert.Contains(t, f.sender.LastSent().Body, "didn't match")

	// Replay of a code message is suppressed like any other inbound.
	sends := len(f.sender.Sent())
	f.inbound(t, "482913", "MM1")
	assert.Equal(t, sends, len(f.sender.Sent()))
}

func TestHandleDeliveryStatus(t *testing.T) {
	f := newFixture(t)
	a, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err)

	require.NoError(t, f.engine.HandleDeliveryStatus(context.Background(), a.OutboundMessageID, "delivered"))
	assert.Equal(t, "delivered", f.ledger.Assignment(a.AssignmentID).DeliveryStatus)
}

// TestTransitionMatrix drives every (state, intent) pair through the engine.
// Pairs in the transition table move; everything else leaves the assignment
// untouched and answers with the help menu, and terminal states answer with
// the no-pending-work message.
func TestTransitionMatrix(t *testing.T) {
	states := []string{
		domain.AssignmentStatePending,
		domain.AssignmentStateNotified,
		domain.AssignmentStateAccepted,
		domain.AssignmentStateInProgress,
		domain.AssignmentStateDeclined,
		domain.AssignmentStateCompleted,
	}
	intents := []struct {
		in   intent.Intent
		body string
	}{
		{intent.IntentAccept, "accept"},
		{intent.IntentDecline, "decline"},
		{intent.IntentInfoRequest, "what materials"},
		{intent.IntentStarted, "started"},
		{intent.IntentCompleted, "all done"},
		{intent.IntentUnknown, "zzz"},
	}

	for _, state := range states {
		for _, tc := range intents {
			t.Run(fmt.Sprintf("%s_%s", state, tc.in), func(t *testing.T) {
				f := newFixture(t)
				a, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
				require.NoError(t, err)
				f.ledger.SetState(a.AssignmentID, state)

				f.inbound(t, tc.body, "MM-matrix")

				wantState, inTable := dispatch.Next(state, tc.in)
				got := f.ledger.Assignment(a.AssignmentID)
				assert.Equal(t, wantState, got.State)

				reply := f.sender.LastSent().Body
				if domain.TerminalState(state) {
					// Terminal assignments are invisible to the inbound
					// path: the contractor is told nothing is pending.
					assert.Equal(t, state, got.State)
					assert.Contains(t, reply, "no pending")
				} else if !inTable {
					assert.Contains(t, reply, "didn't catch that")
				}
			})
		}
	}
}

func TestNext_TerminalStatesNeverMove(t *testing.T) {
	for _, state := range []string{
		domain.AssignmentStateDeclined,
		domain.AssignmentStateCompleted,
		domain.AssignmentStateExpired,
	} {
		for _, in := range []intent.Intent{
			intent.IntentAccept, intent.IntentDecline, intent.IntentInfoRequest,
			intent.IntentStarted, intent.IntentCompleted, intent.IntentUnknown,
		} {
			got, ok := dispatch.Next(state, in)
			assert.Equal(t, state, got)
			assert.False(t, ok)
		}
	}
}

// TestSingleActiveAssignmentInvariant runs randomized create/respond sequences
// and checks that a work item never has more than one active assignment.
func TestSingleActiveAssignmentInvariant(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(42))
	bodies := []string{"accept", "decline", "started", "all done", "what?", "zzz"}

	msgSeq := 0
	for round := 0; round < 50; round++ {
		_, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
		if err != nil {
			var conflict *domain.ConflictError
			require.ErrorAs(t, err, &conflict)
		}

		for i := 0; i < 4; i++ {
			msgSeq++
			f.inbound(t, bodies[rng.Intn(len(bodies))], fmt.Sprintf("MM-%d", msgSeq))
			assert.LessOrEqual(t, f.ledger.ActiveCount(f.item.WorkItemID), 1,
				"work item must never have two active assignments")
		}
	}
}
