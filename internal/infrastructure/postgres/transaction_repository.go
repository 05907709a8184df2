package postgres

import (
	"context"
	"fmt"

	"nivesh/internal/domain/portfolio"
)

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// InsertIfNew writes the transaction unless its idempotency key already
// exists. Mirrors HoldingRepository.InsertIfNew.
func (r *TransactionRepository) InsertIfNew(ctx context.Context, t *portfolio.Transaction) (bool, error) {
	query := `
		INSERT INTO transactions (
			account_id, provider_txn_id, txn_type, txn_date, amount,
			narration, reference, details, idempotency_key
		)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		t.AccountID, t.ProviderTxnID, t.TxnType, t.TxnDate, t.Amount,
		t.Narration, t.Reference, nullableJSON(t.Details), t.IdempotencyKey,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check transaction insert: %w", err)
	}
	return affected > 0, nil
}

func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID int64) ([]*portfolio.Transaction, error) {
	query := `
		SELECT id, account_id, COALESCE(provider_txn_id, ''), txn_type, txn_date, amount,
		       narration, reference, details, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY txn_date DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*portfolio.Transaction
	for rows.Next() {
		var t portfolio.Transaction
		var details []byte
		err := rows.Scan(
			&t.ID, &t.AccountID, &t.ProviderTxnID, &t.TxnType, &t.TxnDate, &t.Amount,
			&t.Narration, &t.Reference, &details, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Details = details
		txns = append(txns, &t)
	}
	return txns, rows.Err()
}
