package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nivesh/internal/domain/portfolio"
)

type LinkedAccountRepository struct {
	db *DB
}

func NewLinkedAccountRepository(db *DB) *LinkedAccountRepository {
	return &LinkedAccountRepository{db: db}
}

const accountColumns = `
	id, user_id, COALESCE(consent_handle, ''), COALESCE(fip_id, ''), provider_account_id,
	COALESCE(masked_number, ''), fi_type, COALESCE(account_type, ''), status,
	profile, summary, last_fetched_at, created_at, updated_at`

// Upsert inserts the account or refreshes the existing row for the same
// (user, provider account id, FI type) triple. The triple is the table's
// unique key, so concurrent ingestion of the same account is race-free.
func (r *LinkedAccountRepository) Upsert(ctx context.Context, params portfolio.UpsertAccountParams) (*portfolio.LinkedAccount, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO linked_accounts (
			user_id, consent_handle, fip_id, provider_account_id,
			masked_number, fi_type, account_type, status, profile, summary, last_fetched_at
		)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9, $10, NOW())
		ON CONFLICT (user_id, provider_account_id, fi_type) DO UPDATE
		SET consent_handle  = COALESCE(EXCLUDED.consent_handle, linked_accounts.consent_handle),
		    fip_id          = COALESCE(EXCLUDED.fip_id, linked_accounts.fip_id),
		    masked_number   = COALESCE(EXCLUDED.masked_number, linked_accounts.masked_number),
		    account_type    = COALESCE(EXCLUDED.account_type, linked_accounts.account_type),
		    status          = EXCLUDED.status,
		    profile         = COALESCE(EXCLUDED.profile, linked_accounts.profile),
		    summary         = COALESCE(EXCLUDED.summary, linked_accounts.summary),
		    last_fetched_at = NOW(),
		    updated_at      = NOW()
		RETURNING ` + accountColumns

	a, err := scanAccount(r.db.QueryRowContext(ctx, query,
		params.UserID, params.ConsentHandle, params.FIPID, params.ProviderAccountID,
		params.MaskedNumber, string(params.FIType), params.AccountType, string(params.Status),
		nullableJSON(params.Profile), nullableJSON(params.Summary),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert linked account: %w", err)
	}
	return a, nil
}

func (r *LinkedAccountRepository) GetByProviderID(ctx context.Context, userID int64, providerAccountID string, fiType portfolio.FIType) (*portfolio.LinkedAccount, error) {
	query := `SELECT ` + accountColumns + `
		FROM linked_accounts
		WHERE user_id = $1 AND provider_account_id = $2 AND fi_type = $3`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, userID, providerAccountID, string(fiType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, portfolio.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked account: %w", err)
	}
	return a, nil
}

func (r *LinkedAccountRepository) GetByID(ctx context.Context, id int64) (*portfolio.LinkedAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM linked_accounts WHERE id = $1`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, portfolio.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked account: %w", err)
	}
	return a, nil
}

func (r *LinkedAccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*portfolio.LinkedAccount, error) {
	query := `SELECT ` + accountColumns + `
		FROM linked_accounts
		WHERE user_id = $1
		ORDER BY fi_type ASC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*portfolio.LinkedAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func scanAccount(row rowScanner) (*portfolio.LinkedAccount, error) {
	var a portfolio.LinkedAccount
	var fiType, status string
	var profile, summary []byte
	err := row.Scan(
		&a.ID, &a.UserID, &a.ConsentHandle, &a.FIPID, &a.ProviderAccountID,
		&a.MaskedNumber, &fiType, &a.AccountType, &status,
		&profile, &summary, &a.LastFetchedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.FIType = portfolio.FIType(fiType)
	a.Status = portfolio.AccountStatus(status)
	a.Profile = profile
	a.Summary = summary
	return &a, nil
}
