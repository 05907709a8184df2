package postgres

import (
	"context"
	"fmt"

	"nivesh/internal/domain/portfolio"
)

type HoldingRepository struct {
	db *DB
}

func NewHoldingRepository(db *DB) *HoldingRepository {
	return &HoldingRepository{db: db}
}

// InsertIfNew writes the holding unless its idempotency key already exists.
// ON CONFLICT DO NOTHING keeps the first row untouched; the returned bool
// distinguishes a fresh insert from a duplicate-suppressed no-op.
func (r *HoldingRepository) InsertIfNew(ctx context.Context, h *portfolio.Holding) (bool, error) {
	query := `
		INSERT INTO holdings (
			account_id, instrument_name, instrument_id, units, average_price,
			current_value, invested_value, details, as_of_date, idempotency_key
		)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		h.AccountID, h.InstrumentName, h.InstrumentID, h.Units, h.AveragePrice,
		h.CurrentValue, h.InvestedValue, nullableJSON(h.Details), h.AsOfDate, h.IdempotencyKey,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert holding: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check holding insert: %w", err)
	}
	return affected > 0, nil
}

func (r *HoldingRepository) ListByAccountID(ctx context.Context, accountID int64) ([]*portfolio.Holding, error) {
	query := `
		SELECT id, account_id, instrument_name, COALESCE(instrument_id, ''), units,
		       average_price, current_value, invested_value, details, as_of_date, created_at
		FROM holdings
		WHERE account_id = $1
		ORDER BY as_of_date DESC, instrument_name ASC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	defer rows.Close()

	var holdings []*portfolio.Holding
	for rows.Next() {
		var h portfolio.Holding
		var details []byte
		err := rows.Scan(
			&h.ID, &h.AccountID, &h.InstrumentName, &h.InstrumentID, &h.Units,
			&h.AveragePrice, &h.CurrentValue, &h.InvestedValue, &details, &h.AsOfDate, &h.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		h.Details = details
		holdings = append(holdings, &h)
	}
	return holdings, rows.Err()
}
