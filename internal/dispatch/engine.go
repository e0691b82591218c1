// Package dispatch is the state machine core of the punch-list workflow. It
// creates assignments, routes classified inbound replies to state transitions,
// renders and sends the resulting messages, and applies every ledger update
// atomically per assignment.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/renomarket/dispatch-be/internal/domain"
	"github.com/renomarket/dispatch-be/internal/intent"
	"github.com/renomarket/dispatch-be/internal/message"
	"github.com/renomarket/dispatch-be/internal/phone"
	"github.com/renomarket/dispatch-be/internal/transport"
)

// Config holds dispatch engine configuration.
type Config struct {
	// AdminContact is shown in urgent template variants as the escalation contact.
	AdminContact string
}

// Engine drives the assignment lifecycle. All collaborators are injected
// interfaces, so there is no hidden process-wide state and tests run against
// in-memory doubles.
type Engine struct {
	ledger Ledger
	dir    Directory
	sender transport.Sender
	logger *slog.Logger
	admin  string
	now    func() time.Time
}

// NewEngine creates a dispatch engine.
func NewEngine(cfg *Config, ledger Ledger, dir Directory, sender transport.Sender, logger *slog.Logger) *Engine {
	return &Engine{
		ledger: ledger,
		dir:    dir,
		sender: sender,
		logger: logger,
		admin:  cfg.AdminContact,
		now:    time.Now,
	}
}

// CreateWorkItems persists a batch of extracted work items, assigning ids.
func (e *Engine) CreateWorkItems(ctx context.Context, items []domain.WorkItem) ([]domain.WorkItem, error) {
	now := e.now()
	out := make([]domain.WorkItem, 0, len(items))
	for _, item := range items {
		item.WorkItemID = uuid.New().String()
		item.Status = domain.WorkItemStatusExtracted
		item.CreatedAt = now
		item.UpdatedAt = now
		if err := e.ledger.CreateWorkItem(ctx, &item); err != nil {
			return out, fmt.Errorf("failed to create work item: %w", err)
		}
		out = append(out, item)
	}
	return out, nil
}

// CreateAssignment offers a work item to a contractor. It fails with
// *domain.ConflictError when the work item already has an active assignment.
// The assignment is created PENDING; on transport success it moves to
// NOTIFIED, on transport failure it stays PENDING and the escalation sweep
// retries the send; the caller never sees the transport error.
func (e *Engine) CreateAssignment(ctx context.Context, workItemID, contractorID string, urgent bool) (*domain.Assignment, error) {
	item, err := e.ledger.GetWorkItem(ctx, workItemID)
	if err != nil {
		return nil, err
	}

	contractor, err := e.dir.ContractorByID(ctx, contractorID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	a := &domain.Assignment{
		AssignmentID: uuid.New().String(),
		WorkItemID:   item.WorkItemID,
		ContractorID: contractor.ContractorID,
		ProjectID:    item.ProjectID,
		State:        domain.AssignmentStatePending,
		Urgent:       urgent,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := e.ledger.CreateAssignment(ctx, a); err != nil {
		return nil, err
	}

	e.logger.Info("Assignment created",
		slog.String("assignment_id", a.AssignmentID),
		slog.String("work_item_id", item.WorkItemID),
		slog.String("contractor_id", contractor.ContractorID),
		slog.Bool("urgent", urgent),
	)

	e.notify(ctx, a, item, contractor)
	return a, nil
}

// notify renders and sends the initial notification, moving the assignment to
// NOTIFIED on success. A failed send is logged and left for the sweep.
func (e *Engine) notify(ctx context.Context, a *domain.Assignment, item *domain.WorkItem, contractor *domain.Contractor) {
	body := message.NewAssignment(e.templateData(item, contractor, a.Urgent))
	sendTo := phone.Normalize(contractor.Phone).SendTo

	providerID, err := e.sender.Send(ctx, sendTo, body)
	if err != nil {
		e.logger.Warn("Notification send failed, assignment stays pending for retry",
			slog.String("assignment_id", a.AssignmentID),
			slog.Any("error", err),
		)
		return
	}

	if err := e.ledger.MarkNotified(ctx, a.AssignmentID, providerID); err != nil {
		e.logger.Error("Failed to mark assignment notified",
			slog.String("assignment_id", a.AssignmentID),
			slog.Any("error", err),
		)
		return
	}

	a.State = domain.AssignmentStateNotified
	a.OutboundMessageID = providerID
}

// HandleInbound processes one carrier webhook message end to end: normalize
// the phone, resolve the contractor, classify the body, apply the transition
// table, and send the reply. It is idempotent under provider redelivery and
// never returns an error for conditions the contractor caused; those are
// answered with a text message instead.
func (e *Engine) HandleInbound(ctx context.Context, msg *domain.InboundMessage) error {
	num := phone.Normalize(msg.FromPhone)
	cls := intent.Classify(msg.Body)

	// Verification codes bypass assignment lookup entirely.
	if cls.Intent == intent.IntentVerificationCode {
		return e.handleVerificationCode(ctx, msg, num, cls.Code)
	}

	contractor, err := e.dir.ContractorByPhone(ctx, num.Key)
	if err != nil {
		if errors.Is(err, domain.ErrContractorNotFound) {
			e.logger.Info("Inbound from unrecognized phone",
				slog.String("phone_key", num.Key),
				slog.String("provider_message_id", msg.ProviderMessageID),
			)
			return e.respondWithoutTransition(ctx, msg, num.SendTo, message.Help())
		}
		return fmt.Errorf("failed to resolve contractor: %w", err)
	}

	a, err := e.ledger.ActiveByContractor(ctx, contractor.ContractorID)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveAssignment) {
			return e.respondWithoutTransition(ctx, msg, num.SendTo, message.NoPendingWork())
		}
		return fmt.Errorf("failed to find active assignment: %w", err)
	}

	item, err := e.ledger.GetWorkItem(ctx, a.WorkItemID)
	if err != nil {
		return fmt.Errorf("failed to load work item: %w", err)
	}

	change, reply := e.plan(a, item, contractor, cls.Intent, msg.Body)

	if err := e.ledger.ApplyInbound(ctx, msg, change); err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateMessage):
			// Redelivered webhook: the first delivery already did the work.
			e.logger.Info("Duplicate inbound message suppressed",
				slog.String("provider_message_id", msg.ProviderMessageID),
			)
			return nil
		case errors.Is(err, domain.ErrStateConflict):
			// A concurrent message or sweep transitioned the assignment
			// between our read and write; that path sent its own reply.
			e.logger.Warn("Inbound lost state race, skipping",
				slog.String("assignment_id", a.AssignmentID),
				slog.String("provider_message_id", msg.ProviderMessageID),
			)
			return nil
		default:
			return fmt.Errorf("failed to apply inbound transition: %w", err)
		}
	}

	e.logger.Info("Inbound response applied",
		slog.String("assignment_id", a.AssignmentID),
		slog.String("intent", string(cls.Intent)),
		slog.String("from_state", change.FromState),
		slog.String("to_state", change.ToState),
	)

	e.send(ctx, num.SendTo, reply, a.AssignmentID)
	return nil
}

// plan maps a classified intent onto the transition table and picks the reply
// template. Pairs outside the table leave the state untouched and answer with
// the help menu.
func (e *Engine) plan(a *domain.Assignment, item *domain.WorkItem, contractor *domain.Contractor, in intent.Intent, body string) (*StateChange, string) {
	data := e.templateData(item, contractor, a.Urgent)
	now := e.now()

	change := &StateChange{
		AssignmentID: a.AssignmentID,
		FromState:    a.State,
		ToState:      a.State,
		WorkItemID:   a.WorkItemID,
		Note:         body,
	}

	next, ok := Next(a.State, in)
	if !ok {
		// Off-table replies still get the idempotency marker, but the body
		// is not worth keeping as a note.
		change.Note = ""
		return change, message.Help()
	}
	change.ToState = next

	switch {
	case next == domain.AssignmentStateAccepted:
		change.RespondedAt = &now
		return change, message.AcceptConfirmation(data)

	case next == domain.AssignmentStateDeclined:
		change.RespondedAt = &now
		// Declining releases the work item for a new assignment.
		change.WorkItemStatus = domain.WorkItemStatusExtracted
		return change, message.DeclineAck(data)

	case next == domain.AssignmentStateInProgress:
		return change, message.StartedAck(data)

	case next == domain.AssignmentStateCompleted:
		change.CompletedAt = &now
		change.WorkItemStatus = domain.WorkItemStatusCompleted
		return change, message.CompletionConfirmation(data)

	default:
		// In-table pair that keeps its state: the info request.
		return change, message.InfoReply(data)
	}
}

func (e *Engine) handleVerificationCode(ctx context.Context, msg *domain.InboundMessage, num phone.Number, code string) error {
	reply := message.VerificationInvalid()
	ok, err := e.dir.ConfirmCode(ctx, num.Key, code)
	if err != nil {
		e.logger.Error("Verification code check failed",
			slog.String("phone_key", num.Key),
			slog.Any("error", err),
		)
	} else if ok {
		reply = message.VerificationReceived()
	}
	return e.respondWithoutTransition(ctx, msg, num.SendTo, reply)
}

// respondWithoutTransition records the idempotency marker and answers with a
// fixed message for inbound traffic that matches no assignment. A duplicate
// delivery is dropped without a second send.
func (e *Engine) respondWithoutTransition(ctx context.Context, msg *domain.InboundMessage, sendTo, reply string) error {
	if err := e.ledger.RecordInbound(ctx, msg); err != nil {
		if errors.Is(err, domain.ErrDuplicateMessage) {
			return nil
		}
		return fmt.Errorf("failed to record inbound message: %w", err)
	}
	e.send(ctx, sendTo, reply, "")
	return nil
}

// HandleDeliveryStatus records a carrier status callback against the
// assignment whose notification it refers to.
func (e *Engine) HandleDeliveryStatus(ctx context.Context, providerMessageID, status string) error {
	if err := e.ledger.UpdateDeliveryStatus(ctx, providerMessageID, status); err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}
	e.logger.Debug("Delivery status recorded",
		slog.String("provider_message_id", providerMessageID),
		slog.String("status", status),
	)
	return nil
}

// SendReminder sends the reminder for an assignment the sweep has already
// claimed (reminder_sent flipped). The claim happens before the send so two
// overlapping sweeps cannot both send.
func (e *Engine) SendReminder(ctx context.Context, a *domain.Assignment) {
	item, contractor, err := e.loadContext(ctx, a)
	if err != nil {
		e.logger.Error("Failed to load reminder context",
			slog.String("assignment_id", a.AssignmentID),
			slog.Any("error", err),
		)
		return
	}

	body := message.Reminder(e.templateData(item, contractor, a.Urgent))
	e.send(ctx, phone.Normalize(contractor.Phone).SendTo, body, a.AssignmentID)
}

// Expire moves an unresponsive assignment to its terminal EXPIRED state,
// releases the work item for reassignment, and sends the courtesy notice.
// Safe to call from concurrent sweeps: only the caller that wins the
// conditional update sends the notice. Reports whether this caller won and
// actually expired the assignment.
func (e *Engine) Expire(ctx context.Context, a *domain.Assignment) bool {
	won, err := e.ledger.ExpireAssignment(ctx, a.AssignmentID)
	if err != nil {
		e.logger.Error("Failed to expire assignment",
			slog.String("assignment_id", a.AssignmentID),
			slog.Any("error", err),
		)
		return false
	}
	if !won {
		return false
	}

	e.logger.Info("Assignment expired, work item released",
		slog.String("assignment_id", a.AssignmentID),
		slog.String("work_item_id", a.WorkItemID),
	)

	item, contractor, err := e.loadContext(ctx, a)
	if err != nil {
		e.logger.Error("Failed to load expiry context",
			slog.String("assignment_id", a.AssignmentID),
			slog.Any("error", err),
		)
		return true
	}

	body := message.ReassignedNotice(e.templateData(item, contractor, a.Urgent))
	e.send(ctx, phone.Normalize(contractor.Phone).SendTo, body, a.AssignmentID)
	return true
}

// RetryNotify re-attempts the initial notification for an assignment whose
// send failed and left it PENDING.
func (e *Engine) RetryNotify(ctx context.Context, a *domain.Assignment) {
	item, contractor, err := e.loadContext(ctx, a)
	if err != nil {
		e.logger.Error("Failed to load retry context",
			slog.String("assignment_id", a.AssignmentID),
			slog.Any("error", err),
		)
		return
	}
	e.notify(ctx, a, item, contractor)
}

func (e *Engine) loadContext(ctx context.Context, a *domain.Assignment) (*domain.WorkItem, *domain.Contractor, error) {
	item, err := e.ledger.GetWorkItem(ctx, a.WorkItemID)
	if err != nil {
		return nil, nil, err
	}
	contractor, err := e.dir.ContractorByID(ctx, a.ContractorID)
	if err != nil {
		return nil, nil, err
	}
	return item, contractor, nil
}

func (e *Engine) templateData(item *domain.WorkItem, contractor *domain.Contractor, urgent bool) message.Data {
	return message.Data{
		ContractorName: contractor.BusinessName,
		ProjectName:    item.ProjectName,
		Description:    item.Description,
		Area:           item.Area,
		Trade:          item.Trade,
		Priority:       item.Priority,
		EstimatedHours: item.EstimatedHours,
		Urgent:         urgent,
		AdminContact:   e.admin,
	}
}

// send delivers a reply, logging failures. Reply sends are not retried: the
// carrier webhook will bring the contractor back, and synchronous retries
// would risk duplicate sends on top of webhook redelivery.
func (e *Engine) send(ctx context.Context, to, body, assignmentID string) {
	if _, err := e.sender.Send(ctx, to, body); err != nil {
		e.logger.Error("Reply send failed",
			slog.String("to", to),
			slog.String("assignment_id", assignmentID),
			slog.Any("error", err),
		)
	}
}
