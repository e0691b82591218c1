// Package dispatchtest provides in-memory doubles for the dispatch engine's
// collaborators. MemLedger mirrors the Postgres ledger's conditional-update
// semantics closely enough to exercise the concurrency guards in tests.
package dispatchtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/renomarket/dispatch-be/internal/dispatch"
	"github.com/renomarket/dispatch-be/internal/domain"
)

// MemLedger is an in-memory dispatch.Ledger. All operations take one lock, so
// claims and compare-and-swap updates are atomic exactly like their SQL
// counterparts.
type MemLedger struct {
	mu          sync.Mutex
	workItems   map[string]*domain.WorkItem
	assignments map[string]*domain.Assignment
	dedupe      map[string]time.Time

	// DedupeTTL bounds the idempotency window. Zero means entries never expire.
	DedupeTTL time.Duration
}

// NewMemLedger creates an empty in-memory ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{
		workItems:   make(map[string]*domain.WorkItem),
		assignments: make(map[string]*domain.Assignment),
		dedupe:      make(map[string]time.Time),
	}
}

func (m *MemLedger) CreateWorkItem(_ context.Context, item *domain.WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *item
	m.workItems[item.WorkItemID] = &cp
	return nil
}

func (m *MemLedger) GetWorkItem(_ context.Context, workItemID string) (*domain.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.workItems[workItemID]
	if !ok {
		return nil, domain.ErrWorkItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *MemLedger) CreateAssignment(_ context.Context, a *domain.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.assignments {
		if existing.WorkItemID == a.WorkItemID && existing.Active() {
			return &domain.ConflictError{WorkItemID: a.WorkItemID}
		}
	}
	cp := *a
	m.assignments[a.AssignmentID] = &cp
	return nil
}

func (m *MemLedger) GetAssignment(_ context.Context, assignmentID string) (*domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[assignmentID]
	if !ok {
		return nil, domain.ErrAssignmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemLedger) ActiveByContractor(_ context.Context, contractorID string) (*domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active []*domain.Assignment
	for _, a := range m.assignments {
		if a.ContractorID == contractorID && a.Active() {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		return nil, domain.ErrNoActiveAssignment
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	cp := *active[0]
	return &cp, nil
}

func (m *MemLedger) MarkNotified(_ context.Context, assignmentID, providerMessageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assignments[assignmentID]
	if !ok {
		return domain.ErrAssignmentNotFound
	}
	if a.State != domain.AssignmentStatePending {
		return domain.ErrStateConflict
	}

	now := time.Now()
	a.State = domain.AssignmentStateNotified
	a.OutboundMessageID = providerMessageID
	a.NotifiedAt = &now
	a.UpdatedAt = now

	if item, ok := m.workItems[a.WorkItemID]; ok {
		item.Status = domain.WorkItemStatusNotified
		item.UpdatedAt = now
	}
	return nil
}

func (m *MemLedger) RecordInbound(_ context.Context, msg *domain.InboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordLocked(msg)
}

func (m *MemLedger) recordLocked(msg *domain.InboundMessage) error {
	if _, seen := m.dedupe[msg.ProviderMessageID]; seen {
		return domain.ErrDuplicateMessage
	}
	expires := time.Time{}
	if m.DedupeTTL > 0 {
		expires = time.Now().Add(m.DedupeTTL)
	}
	m.dedupe[msg.ProviderMessageID] = expires
	return nil
}

func (m *MemLedger) ApplyInbound(_ context.Context, msg *domain.InboundMessage, change *dispatch.StateChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assignments[change.AssignmentID]
	if !ok {
		return domain.ErrAssignmentNotFound
	}
	if err := m.recordLocked(msg); err != nil {
		return err
	}
	if a.State != change.FromState {
		delete(m.dedupe, msg.ProviderMessageID)
		return domain.ErrStateConflict
	}

	now := time.Now()
	a.State = change.ToState
	a.UpdatedAt = now
	if change.Note != "" {
		if a.Notes != "" {
			a.Notes += "\n"
		}
		a.Notes += change.Note
	}
	if change.RespondedAt != nil {
		a.RespondedAt = change.RespondedAt
	}
	if change.CompletedAt != nil {
		a.CompletedAt = change.CompletedAt
	}

	if change.WorkItemStatus != "" {
		if item, ok := m.workItems[change.WorkItemID]; ok {
			item.Status = change.WorkItemStatus
			item.UpdatedAt = now
		}
	}
	return nil
}

func (m *MemLedger) UpdateDeliveryStatus(_ context.Context, providerMessageID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.OutboundMessageID == providerMessageID {
			a.DeliveryStatus = status
			a.UpdatedAt = time.Now()
			return nil
		}
	}
	return domain.ErrAssignmentNotFound
}

func (m *MemLedger) ClaimReminders(_ context.Context, cutoff time.Time) ([]domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var claimed []domain.Assignment
	for _, a := range m.assignments {
		if a.AwaitingResponse() && !a.ReminderSent && a.CreatedAt.Before(cutoff) {
			a.ReminderSent = true
			a.UpdatedAt = time.Now()
			claimed = append(claimed, *a)
		}
	}
	return claimed, nil
}

func (m *MemLedger) OverdueForExpiry(_ context.Context, cutoff time.Time) ([]domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var overdue []domain.Assignment
	for _, a := range m.assignments {
		if a.AwaitingResponse() && a.CreatedAt.Before(cutoff) {
			overdue = append(overdue, *a)
		}
	}
	return overdue, nil
}

func (m *MemLedger) ExpireAssignment(_ context.Context, assignmentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assignments[assignmentID]
	if !ok {
		return false, domain.ErrAssignmentNotFound
	}
	if !a.AwaitingResponse() {
		return false, nil
	}

	now := time.Now()
	a.State = domain.AssignmentStateExpired
	a.UpdatedAt = now
	if item, ok := m.workItems[a.WorkItemID]; ok {
		item.Status = domain.WorkItemStatusExtracted
		item.UpdatedAt = now
	}
	return true, nil
}

func (m *MemLedger) StalePending(_ context.Context, cutoff time.Time) ([]domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []domain.Assignment
	for _, a := range m.assignments {
		if a.State == domain.AssignmentStatePending && a.CreatedAt.Before(cutoff) {
			stale = append(stale, *a)
		}
	}
	return stale, nil
}

func (m *MemLedger) PurgeDedupeLog(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for id, expires := range m.dedupe {
		if !expires.IsZero() && expires.Before(now) {
			delete(m.dedupe, id)
			purged++
		}
	}
	return purged, nil
}

// Assignment returns a copy of a stored assignment for assertions.
func (m *MemLedger) Assignment(assignmentID string) domain.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.assignments[assignmentID]
}

// WorkItem returns a copy of a stored work item for assertions.
func (m *MemLedger) WorkItem(workItemID string) domain.WorkItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.workItems[workItemID]
}

// SetState forces an assignment into a state so individual transitions can be
// exercised in isolation.
func (m *MemLedger) SetState(assignmentID, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[assignmentID].State = state
}

// ActiveCount reports how many assignments for the work item are in a
// non-terminal state.
func (m *MemLedger) ActiveCount(workItemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.assignments {
		if a.WorkItemID == workItemID && a.Active() {
			n++
		}
	}
	return n
}

// SetCreatedAt backdates an assignment so deadline sweeps can be tested.
func (m *MemLedger) SetCreatedAt(assignmentID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[assignmentID].CreatedAt = at
}

// SentMessage is one captured outbound send.
type SentMessage struct {
	To   string
	Body string
}

// RecordingSender is a transport.Sender that captures sends and can be
// scripted to fail.
type RecordingSender struct {
	mu   sync.Mutex
	sent []SentMessage
	next int

	// FailNext makes the next N sends fail with a transport error.
	FailNext int
}

// NewRecordingSender creates an empty recording sender.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

func (s *RecordingSender) Send(_ context.Context, to, body string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNext > 0 {
		s.FailNext--
		return "", domain.NewTransportError(fmt.Errorf("scripted failure"))
	}

	s.next++
	s.sent = append(s.sent, SentMessage{To: to, Body: body})
	return fmt.Sprintf("SM%04d", s.next), nil
}

// Sent returns a copy of all captured sends.
func (s *RecordingSender) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

// LastSent returns the most recent send, or a zero value if none happened.
func (s *RecordingSender) LastSent() SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return SentMessage{}
	}
	return s.sent[len(s.sent)-1]
}

// FakeDirectory is an in-memory dispatch.Directory keyed by normalized phone.
type FakeDirectory struct {
	mu          sync.Mutex
	byPhone     map[string]*domain.Contractor
	byID        map[string]*domain.Contractor
	validCodes  map[string]string
}

// NewFakeDirectory creates an empty directory.
func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{
		byPhone:    make(map[string]*domain.Contractor),
		byID:       make(map[string]*domain.Contractor),
		validCodes: make(map[string]string),
	}
}

// Add registers a contractor under its normalized phone key.
func (d *FakeDirectory) Add(c domain.Contractor, phoneKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := c
	d.byPhone[phoneKey] = &cp
	d.byID[c.ContractorID] = &cp
}

// SetCode registers the expected verification code for a phone key.
func (d *FakeDirectory) SetCode(phoneKey, code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.validCodes[phoneKey] = code
}

func (d *FakeDirectory) ContractorByPhone(_ context.Context, nationalNumber string) (*domain.Contractor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.byPhone[nationalNumber]
	if !ok {
		return nil, domain.ErrContractorNotFound
	}
	cp := *c
	return &cp, nil
}

func (d *FakeDirectory) ContractorByID(_ context.Context, contractorID string) (*domain.Contractor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.byID[contractorID]
	if !ok {
		return nil, domain.ErrContractorNotFound
	}
	cp := *c
	return &cp, nil
}

func (d *FakeDirectory) ConfirmCode(_ context.Context, nationalNumber, code string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.validCodes[nationalNumber] == code && code != "", nil
}
