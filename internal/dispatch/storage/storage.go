// Package storage is the PostgreSQL implementation of the dispatch ledger.
// Every state mutation is a conditional update so concurrent webhook handlers
// and escalation sweeps serialize at the database, not in process memory.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/renomarket/dispatch-be/internal/dispatch"
	"github.com/renomarket/dispatch-be/internal/domain"
	"github.com/renomarket/dispatch-be/shared/postgresql"
)

const activeStates = "('PENDING', 'NOTIFIED', 'ACCEPTED', 'IN_PROGRESS')"

const assignmentColumns = `
	assignment_id, work_item_id, contractor_id, project_id, state, urgent,
	notes, outbound_message_id, delivery_status, reminder_sent,
	created_at, notified_at, responded_at, completed_at, updated_at`

const workItemColumns = `
	work_item_id, project_id, project_name, description, area, trade,
	priority, estimated_hours, transcript_id, status, created_at, updated_at`

// Ledger is the sqlx-backed dispatch.Ledger.
type Ledger struct {
	db        *sqlx.DB
	logger    *slog.Logger
	dedupeTTL time.Duration
}

// NewLedger creates a ledger on top of the shared PostgreSQL client.
// dedupeTTL bounds the idempotency window for inbound provider message ids.
func NewLedger(pg *postgresql.Client, dedupeTTL time.Duration, logger *slog.Logger) *Ledger {
	if dedupeTTL <= 0 {
		dedupeTTL = 24 * time.Hour
	}
	return &Ledger{
		db:        pg.GetDB(),
		logger:    logger,
		dedupeTTL: dedupeTTL,
	}
}

func (l *Ledger) CreateWorkItem(ctx context.Context, item *domain.WorkItem) error {
	query := `
		INSERT INTO work_items (` + workItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := l.db.ExecContext(ctx, query,
		item.WorkItemID, item.ProjectID, item.ProjectName, item.Description,
		item.Area, item.Trade, item.Priority, item.EstimatedHours,
		item.TranscriptID, item.Status, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create work item: %w", err)
	}
	return nil
}

func (l *Ledger) GetWorkItem(ctx context.Context, workItemID string) (*domain.WorkItem, error) {
	var item domain.WorkItem
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE work_item_id = $1`

	if err := l.db.GetContext(ctx, &item, query, workItemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWorkItemNotFound
		}
		return nil, fmt.Errorf("failed to get work item: %w", err)
	}
	return &item, nil
}

// CreateAssignment inserts a PENDING assignment. A partial unique index on
// work_item_id over non-terminal states enforces the single-active-assignment
// invariant; the unique violation maps to ConflictError.
func (l *Ledger) CreateAssignment(ctx context.Context, a *domain.Assignment) error {
	query := `
		INSERT INTO assignments (
			assignment_id, work_item_id, contractor_id, project_id, state,
			urgent, notes, reminder_sent, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, '', FALSE, $7, $8)
	`

	_, err := l.db.ExecContext(ctx, query,
		a.AssignmentID, a.WorkItemID, a.ContractorID, a.ProjectID,
		a.State, a.Urgent, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return &domain.ConflictError{WorkItemID: a.WorkItemID}
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}

	l.logger.Debug("Assignment row created",
		slog.String("assignment_id", a.AssignmentID),
		slog.String("work_item_id", a.WorkItemID),
	)
	return nil
}

func (l *Ledger) GetAssignment(ctx context.Context, assignmentID string) (*domain.Assignment, error) {
	var a domain.Assignment
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE assignment_id = $1`

	if err := l.db.GetContext(ctx, &a, query, assignmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

// ActiveByContractor returns the contractor's most recent non-terminal
// assignment. Most-recent-by-creation is the documented tie-break when a
// contractor has several active assignments at once.
func (l *Ledger) ActiveByContractor(ctx context.Context, contractorID string) (*domain.Assignment, error) {
	var a domain.Assignment
	query := `
		SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE contractor_id = $1 AND state IN ` + activeStates + `
		ORDER BY created_at DESC
		LIMIT 1
	`

	if err := l.db.GetContext(ctx, &a, query, contractorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoActiveAssignment
		}
		return nil, fmt.Errorf("failed to find active assignment: %w", err)
	}
	return &a, nil
}

func (l *Ledger) MarkNotified(ctx context.Context, assignmentID, providerMessageID string) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE assignments
		SET state = $1,
		    outbound_message_id = $2,
		    notified_at = NOW(),
		    updated_at = NOW()
		WHERE assignment_id = $3 AND state = $4
	`, domain.AssignmentStateNotified, providerMessageID, assignmentID, domain.AssignmentStatePending)
	if err != nil {
		return fmt.Errorf("failed to mark assignment notified: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrStateConflict
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE work_items
		SET status = $1, updated_at = NOW()
		WHERE work_item_id = (SELECT work_item_id FROM assignments WHERE assignment_id = $2)
	`, domain.WorkItemStatusNotified, assignmentID)
	if err != nil {
		return fmt.Errorf("failed to mark work item notified: %w", err)
	}

	return tx.Commit()
}

// recordInbound inserts the idempotency marker inside the given transaction.
func (l *Ledger) recordInbound(ctx context.Context, tx *sqlx.Tx, msg *domain.InboundMessage) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO inbound_messages (
			provider_message_id, from_phone, body, media_count,
			media_url, media_content_type, received_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider_message_id) DO NOTHING
	`, msg.ProviderMessageID, msg.FromPhone, msg.Body, msg.MediaCount,
		msg.MediaURL, msg.MediaContentType, msg.ReceivedAt, msg.ReceivedAt.Add(l.dedupeTTL))
	if err != nil {
		return fmt.Errorf("failed to record inbound message: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrDuplicateMessage
	}
	return nil
}

func (l *Ledger) RecordInbound(ctx context.Context, msg *domain.InboundMessage) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := l.recordInbound(ctx, tx, msg); err != nil {
		return err
	}
	return tx.Commit()
}

// ApplyInbound writes the idempotency marker and the state transition in one
// transaction. The compare-and-swap on the current state closes the race with
// concurrent messages and escalation sweeps touching the same assignment.
func (l *Ledger) ApplyInbound(ctx context.Context, msg *domain.InboundMessage, change *dispatch.StateChange) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := l.recordInbound(ctx, tx, msg); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE assignments
		SET state = $1,
		    notes = CASE
		        WHEN $2 = '' THEN notes
		        WHEN notes = '' THEN $2
		        ELSE notes || E'\n' || $2
		    END,
		    responded_at = COALESCE($3, responded_at),
		    completed_at = COALESCE($4, completed_at),
		    updated_at = NOW()
		WHERE assignment_id = $5 AND state = $6
	`, change.ToState, change.Note, change.RespondedAt, change.CompletedAt,
		change.AssignmentID, change.FromState)
	if err != nil {
		return fmt.Errorf("failed to apply state change: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrStateConflict
	}

	if change.WorkItemStatus != "" {
		_, err = tx.ExecContext(ctx, `
			UPDATE work_items SET status = $1, updated_at = NOW() WHERE work_item_id = $2
		`, change.WorkItemStatus, change.WorkItemID)
		if err != nil {
			return fmt.Errorf("failed to update work item status: %w", err)
		}
	}

	return tx.Commit()
}

func (l *Ledger) UpdateDeliveryStatus(ctx context.Context, providerMessageID, status string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE assignments
		SET delivery_status = $1, updated_at = NOW()
		WHERE outbound_message_id = $2
	`, status, providerMessageID)
	if err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrAssignmentNotFound
	}
	return nil
}

// ClaimReminders flips reminder_sent and returns the claimed rows in one
// statement, so two overlapping sweeps can never both claim the same
// assignment.
func (l *Ledger) ClaimReminders(ctx context.Context, cutoff time.Time) ([]domain.Assignment, error) {
	query := `
		UPDATE assignments
		SET reminder_sent = TRUE, updated_at = NOW()
		WHERE state IN ('PENDING', 'NOTIFIED')
		  AND reminder_sent = FALSE
		  AND created_at <= $1
		RETURNING ` + assignmentColumns

	var claimed []domain.Assignment
	if err := l.db.SelectContext(ctx, &claimed, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to claim reminders: %w", err)
	}
	return claimed, nil
}

func (l *Ledger) OverdueForExpiry(ctx context.Context, cutoff time.Time) ([]domain.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE state IN ('PENDING', 'NOTIFIED') AND created_at <= $1
	`

	var overdue []domain.Assignment
	if err := l.db.SelectContext(ctx, &overdue, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list overdue assignments: %w", err)
	}
	return overdue, nil
}

// ExpireAssignment moves an unanswered assignment to EXPIRED and releases its
// work item in one transaction. Returns false when a concurrent transition
// already moved the assignment.
func (l *Ledger) ExpireAssignment(ctx context.Context, assignmentID string) (bool, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE assignments
		SET state = $1, updated_at = NOW()
		WHERE assignment_id = $2 AND state IN ('PENDING', 'NOTIFIED')
	`, domain.AssignmentStateExpired, assignmentID)
	if err != nil {
		return false, fmt.Errorf("failed to expire assignment: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE work_items
		SET status = $1, updated_at = NOW()
		WHERE work_item_id = (SELECT work_item_id FROM assignments WHERE assignment_id = $2)
	`, domain.WorkItemStatusExtracted, assignmentID)
	if err != nil {
		return false, fmt.Errorf("failed to release work item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit expiry: %w", err)
	}
	return true, nil
}

func (l *Ledger) StalePending(ctx context.Context, cutoff time.Time) ([]domain.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE state = 'PENDING' AND outbound_message_id = '' AND created_at <= $1
	`

	var stale []domain.Assignment
	if err := l.db.SelectContext(ctx, &stale, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list stale pending assignments: %w", err)
	}
	return stale, nil
}

func (l *Ledger) PurgeDedupeLog(ctx context.Context, now time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM inbound_messages WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dedupe log: %w", err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get purged row count: %w", err)
	}
	return purged, nil
}

// AssignmentFilter selects assignments for listing.
type AssignmentFilter struct {
	ProjectID    string
	ContractorID string
	State        string
	PageSize     int
	Cursor       *AssignmentCursor
}

// AssignmentCursor is a keyset-pagination position.
type AssignmentCursor struct {
	CreatedAt    time.Time
	AssignmentID string
}

// ListAssignments returns assignments matching the filter, newest first, with
// keyset pagination. One extra row beyond PageSize signals more results.
func (l *Ledger) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.ProjectID != "" {
		query += fmt.Sprintf(" AND project_id = $%d", argIdx)
		args = append(args, filter.ProjectID)
		argIdx++
	}

	if filter.ContractorID != "" {
		query += fmt.Sprintf(" AND contractor_id = $%d", argIdx)
		args = append(args, filter.ContractorID)
		argIdx++
	}

	if filter.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, filter.State)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, assignment_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.AssignmentID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, assignment_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var assignments []domain.Assignment
	if err := l.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return assignments, nil
}
