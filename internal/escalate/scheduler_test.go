package escalate

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/renomarket/dispatch-be/internal/dispatch"
	"github.com/renomarket/dispatch-be/internal/dispatch/dispatchtest"
	"github.com/renomarket/dispatch-be/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPhoneKey   = "5125550142"
	testPhoneRaw   = "+15125550142"
	testContractor = "contractor-1"
)

type fixture struct {
	scheduler *Scheduler
	engine    *dispatch.Engine
	ledger    *dispatchtest.MemLedger
	sender    *dispatchtest.RecordingSender
	item      domain.WorkItem
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
		&dispatch.Config{AdminContact: "(512) 555-0100"},
		ledger, dir, sender,
		slog.Default(),
	)

	scheduler := NewScheduler(&Config{
		SweepInterval: time.Minute,
		ReminderAfter: time.Hour,
		ExpireAfter:   4 * time.Hour,
		RetryAfter:    5 * time.Minute,
	}, engine, ledger, slog.Default())

	items, err := engine.CreateWorkItems(context.Background(), []domain.WorkItem{{
		ProjectID:   "proj-1",
		ProjectName: "Oak Street Duplex",
		Description: "Replace kitchen faucet",
		Area:        "Kitchen",
		Trade:       domain.TradePlumbing,
		Priority:    domain.PriorityMedium,
	}})
	require.NoError(t, err)

	return &fixture{
		scheduler: scheduler,
		engine:    engine,
		ledger:    ledger,
		sender:    sender,
		item:      items[0],
	}
}

func (f *fixture) notifiedAssignment(t *testing.T, age time.Duration) *domain.Assignment {
	t.Helper()
	a, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err)
	f.ledger.SetCreatedAt(a.AssignmentID, time.Now().Add(-age))
	return a
}

func TestSweep_FreshAssignmentUntouched(t *testing.T) {
	f := newFixture(t)
	a := f.notifiedAssignment(t, 10*time.Minute)
	before := len(f.sender.Sent())

	stats := f.scheduler.Sweep(context.Background())

	assert.Zero(t, stats.Reminders)
	assert.Zero(t, stats.Expired)
	assert.Equal(t, before, len(f.sender.Sent()))
	assert.False(t, f.ledger.Assignment(a.AssignmentID).ReminderSent)
}

func TestSweep_SendsReminderOnce(t *testing.T) {
	f := newFixture(t)
	a := f.notifiedAssignment(t, 2*time.Hour)
	before := len(f.sender.Sent())

	stats := f.scheduler.Sweep(context.Background())
	assert.Equal(t, 1, stats.Reminders)
	assert.True(t, f.ledger.Assignment(a.AssignmentID).ReminderSent)
	assert.Contains(t, f.sender.LastSent().Body, "Reminder")
	assert.Contains(t, f.sender.LastSent().Body, "Replace kitchen faucet")

	// Second sweep: flag already set, nothing new goes out.
	stats = f.scheduler.Sweep(context.Background())
	assert.Zero(t, stats.Reminders)
	assert.Equal(t, before+1, len(f.sender.Sent()))
}

func TestSweep_ConcurrentSweepsSendOneReminder(t *testing.T) {
	f := newFixture(t)
	f.notifiedAssignment(t, 2*time.Hour)
	before := len(f.sender.Sent())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.scheduler.Sweep(context.Background())
		}()
	}
	wg.Wait()

	reminders := 0
	for _, m := range f.sender.Sent()[before:] {
		if strings.Contains(m.Body, "Reminder") {
			reminders++
		}
	}
	assert.Equal(t, 1, reminders, "overlapping sweeps must not double-send")
}

func TestSweep_ExpiresAndReleasesWorkItem(t *testing.T) {
	f := newFixture(t)
	a := f.notifiedAssignment(t, 6*time.Hour)

	stats := f.scheduler.Sweep(context.Background())
	assert.Equal(t, 1, stats.Expired)

	assert.Equal(t, domain.AssignmentStateExpired, f.ledger.Assignment(a.AssignmentID).State)
	assert.Equal(t, domain.WorkItemStatusExtracted, f.ledger.WorkItem(f.item.WorkItemID).Status)
	assert.Contains(t, f.sender.LastSent().Body, "reassigned")

	// The work item is re-assignable again.
	_, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err)
}

func TestSweep_ExpiryWinsOverReminder(t *testing.T) {
	f := newFixture(t)
	a := f.notifiedAssignment(t, 6*time.Hour)

	stats := f.scheduler.Sweep(context.Background())

	// Past both deadlines the assignment is expired, not reminded.
	assert.Equal(t, 1, stats.Expired)
	assert.Zero(t, stats.Reminders)
	assert.Equal(t, domain.AssignmentStateExpired, f.ledger.Assignment(a.AssignmentID).State)
}

func TestSweep_RetriesFailedNotification(t *testing.T) {
	f := newFixture(t)
	f.sender.FailNext = 1

	a, err := f.engine.CreateAssignment(context.Background(), f.item.WorkItemID, testContractor, false)
	require.NoError(t, err)
	require.Equal(t, domain.AssignmentStatePending, a.State)
	f.ledger.SetCreatedAt(a.AssignmentID, time.Now().Add(-10*time.Minute))

	stats := f.scheduler.Sweep(context.Background())
	assert.Equal(t, 1, stats.Retried)

	got := f.ledger.Assignment(a.AssignmentID)
	assert.Equal(t, domain.AssignmentStateNotified, got.State)
	assert.NotEmpty(t, got.OutboundMessageID)
	assert.Contains(t, f.sender.LastSent().Body, "Replace kitchen faucet")
}

// staleOverdueLedger returns a fixed overdue snapshot regardless of current
// state, standing in for a webhook reply that lands between the expiry query
// and the conditional update.
type staleOverdueLedger struct {
	*dispatchtest.MemLedger
	stale []domain.Assignment
}

func (l *staleOverdueLedger) OverdueForExpiry(context.Context, time.Time) ([]domain.Assignment, error) {
	return l.stale, nil
}

func TestSweep_LostExpiryClaimNotCounted(t *testing.T) {
	f := newFixture(t)
	a := f.notifiedAssignment(t, 6*time.Hour)

	// Contractor accepted after the sweep queried its overdue candidates.
	require.NoError(t, f.engine.HandleInbound(context.Background(), &domain.InboundMessage{
		ProviderMessageID: "MM1",
		FromPhone:         testPhoneRaw,
		Body:              "accept",
		ReceivedAt:        time.Now(),
	}))

	ledger := &staleOverdueLedger{MemLedger: f.ledger, stale: []domain.Assignment{*a}}
	engine := dispatch.NewEngine(
		&dispatch.Config{AdminContact: "(512) 555-0100"},
		ledger, dispatchtest.NewFakeDirectory(), f.sender,
		slog.Default(),
	)
	scheduler := NewScheduler(&Config{
		SweepInterval: time.Minute,
		ReminderAfter: time.Hour,
		ExpireAfter:   4 * time.Hour,
		RetryAfter:    5 * time.Minute,
	}, engine, ledger, slog.Default())
	before := len(f.sender.Sent())

	stats := scheduler.Sweep(context.Background())

	assert.Zero(t, stats.Expired, "lost conditional updates must not be counted")
	assert.Equal(t, domain.AssignmentStateAccepted, f.ledger.Assignment(a.AssignmentID).State)
	assert.Equal(t, before, len(f.sender.Sent()))
}

func TestSweep_RespondedAssignmentNotEscalated(t *testing.T) {
	f := newFixture(t)
	a := f.notifiedAssignment(t, 6*time.Hour)

	// Contractor accepted just before the sweep.
	require.NoError(t, f.engine.HandleInbound(context.Background(), &domain.InboundMessage{
		ProviderMessageID: "MM1",
		FromPhone:         testPhoneRaw,
		Body:              "accept",
		ReceivedAt:        time.Now(),
	}))

	stats := f.scheduler.Sweep(context.Background())
	assert.Zero(t, stats.Expired)
	assert.Zero(t, stats.Reminders)
	assert.Equal(t, domain.AssignmentStateAccepted, f.ledger.Assignment(a.AssignmentID).State)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- f.scheduler.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}
