package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"nivesh/internal/domain/consent"
	"nivesh/internal/domain/portfolio"
)

type ConsentRepository struct {
	db *DB
}

func NewConsentRepository(db *DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

const consentColumns = `
	handle, COALESCE(provider_id, ''), user_id, status, fi_types, purpose,
	starts_at, expires_at, data_range_from, data_range_to,
	COALESCE(frequency, ''), COALESCE(approval_url, ''), provider_meta,
	created_at, updated_at`

func (r *ConsentRepository) Create(ctx context.Context, c *consent.Consent) error {
	fiTypes := make(pq.StringArray, len(c.FITypes))
	for i, t := range c.FITypes {
		fiTypes[i] = string(t)
	}

	query := `
		INSERT INTO consents (
			handle, provider_id, user_id, status, fi_types, purpose,
			starts_at, expires_at, data_range_from, data_range_to,
			frequency, approval_url, provider_meta
		)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), NULLIF($12, ''), $13)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		c.Handle, c.ProviderID, c.UserID, string(c.Status), fiTypes, c.Purpose,
		c.StartsAt, c.ExpiresAt, c.DataRangeFrom, c.DataRangeTo,
		c.Frequency, c.ApprovalURL, nullableJSON(c.ProviderMeta),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create consent: %w", err)
	}
	return nil
}

func (r *ConsentRepository) GetByHandle(ctx context.Context, handle string) (*consent.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE handle = $1`
	return r.getOne(ctx, query, handle)
}

func (r *ConsentRepository) GetByProviderID(ctx context.Context, providerID string) (*consent.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE provider_id = $1`
	return r.getOne(ctx, query, providerID)
}

func (r *ConsentRepository) getOne(ctx context.Context, query string, arg any) (*consent.Consent, error) {
	c, err := scanConsent(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, consent.ErrConsentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	return c, nil
}

func (r *ConsentRepository) ListByUserID(ctx context.Context, userID int64) ([]*consent.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *ConsentRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*consent.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE status = 'PENDING' AND created_at < $1 ORDER BY created_at ASC`
	return r.list(ctx, query, cutoff)
}

func (r *ConsentRepository) list(ctx context.Context, query string, arg any) ([]*consent.Consent, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	defer rows.Close()

	var consents []*consent.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		consents = append(consents, c)
	}
	return consents, rows.Err()
}

func (r *ConsentRepository) UpdateStatus(ctx context.Context, handle string, status consent.Status, providerID *string, startsAt, expiresAt *time.Time) error {
	query := `
		UPDATE consents
		SET status      = $2,
		    provider_id = COALESCE($3, provider_id),
		    starts_at   = COALESCE($4, starts_at),
		    expires_at  = COALESCE($5, expires_at),
		    updated_at  = NOW()
		WHERE handle = $1
	`
	result, err := r.db.ExecContext(ctx, query, handle, string(status), providerID, startsAt, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to update consent status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check consent update: %w", err)
	}
	if affected == 0 {
		return consent.ErrConsentNotFound
	}
	return nil
}

func scanConsent(row rowScanner) (*consent.Consent, error) {
	var c consent.Consent
	var fiTypes pq.StringArray
	var status string
	var meta []byte
	err := row.Scan(
		&c.Handle, &c.ProviderID, &c.UserID, &status, &fiTypes, &c.Purpose,
		&c.StartsAt, &c.ExpiresAt, &c.DataRangeFrom, &c.DataRangeTo,
		&c.Frequency, &c.ApprovalURL, &meta,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = consent.Status(status)
	c.FITypes = make([]portfolio.FIType, len(fiTypes))
	for i, t := range fiTypes {
		c.FITypes[i] = portfolio.FIType(t)
	}
	c.ProviderMeta = meta
	return &c, nil
}

// nullableJSON maps empty JSON to NULL so jsonb columns stay clean.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
