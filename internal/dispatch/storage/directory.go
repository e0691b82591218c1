package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/renomarket/dispatch-be/internal/domain"
	"github.com/renomarket/dispatch-be/shared/postgresql"
)

// Directory is the sqlx-backed contractor lookup. Contractor records are
// owned by the marketplace onboarding flow; the dispatch path only reads them
// and confirms verification codes.
type Directory struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewDirectory creates a contractor directory on the shared PostgreSQL client.
func NewDirectory(pg *postgresql.Client, logger *slog.Logger) *Directory {
	return &Directory{db: pg.GetDB(), logger: logger}
}

// ContractorByPhone resolves a contractor by normalized phone digits. The
// phone_key column stores the same normalized form, so SMS and WhatsApp
// traffic from one number resolve to one contractor.
func (d *Directory) ContractorByPhone(ctx context.Context, phoneKey string) (*domain.Contractor, error) {
	var c domain.Contractor
	query := `
		SELECT contractor_id, business_name, phone
		FROM contractors
		WHERE phone_key = $1
	`

	if err := d.db.GetContext(ctx, &c, query, phoneKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrContractorNotFound
		}
		return nil, fmt.Errorf("failed to look up contractor by phone: %w", err)
	}
	return &c, nil
}

func (d *Directory) ContractorByID(ctx context.Context, contractorID string) (*domain.Contractor, error) {
	var c domain.Contractor
	query := `
		SELECT contractor_id, business_name, phone
		FROM contractors
		WHERE contractor_id = $1
	`

	if err := d.db.GetContext(ctx, &c, query, contractorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrContractorNotFound
		}
		return nil, fmt.Errorf("failed to look up contractor: %w", err)
	}
	return &c, nil
}

// ConfirmCode marks the contractor verified when the texted code matches the
// one issued at onboarding. A mismatch or unknown phone returns false, nil.
func (d *Directory) ConfirmCode(ctx context.Context, phoneKey, code string) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE contractors
		SET verified = TRUE, updated_at = NOW()
		WHERE phone_key = $1 AND verification_code = $2
	`, phoneKey, code)
	if err != nil {
		return false, fmt.Errorf("failed to confirm verification code: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get confirmed row count: %w", err)
	}
	if affected > 0 {
		d.logger.Info("Contractor phone verified", slog.String("phone_key", phoneKey))
	}
	return affected > 0, nil
}
