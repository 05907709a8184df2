package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"nivesh/internal/domain/batch"
)

type BatchRepository struct {
	db *DB
}

func NewBatchRepository(db *DB) *BatchRepository {
	return &BatchRepository{db: db}
}

const batchColumns = `
	id, session_id, COALESCE(consent_handle, ''), COALESCE(fi_type, ''), status,
	records_fetched, records_processed, payload, COALESCE(error_detail, ''),
	created_at, updated_at`

// UpsertBySession inserts the batch or returns the existing row for the
// session id. A redelivered notification refreshes the stored payload but
// never resets the processing counters; created_at keeps the first delivery
// time.
func (r *BatchRepository) UpsertBySession(ctx context.Context, b *batch.Batch) (*batch.Batch, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	status := b.Status
	if status == "" {
		status = batch.StatusReady
	}

	query := `
		INSERT INTO ingestion_batches (id, session_id, consent_handle, fi_type, status, payload)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
		ON CONFLICT (session_id) DO UPDATE
		SET consent_handle = COALESCE(EXCLUDED.consent_handle, ingestion_batches.consent_handle),
		    fi_type        = COALESCE(EXCLUDED.fi_type, ingestion_batches.fi_type),
		    payload        = COALESCE(EXCLUDED.payload, ingestion_batches.payload),
		    updated_at     = NOW()
		RETURNING ` + batchColumns

	stored, err := scanBatch(r.db.QueryRowContext(ctx, query,
		b.ID, b.SessionID, b.ConsentHandle, b.FIType, string(status), nullableJSON(b.Payload),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert batch: %w", err)
	}
	return stored, nil
}

func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, status batch.Status, fetched, processed int, errorDetail string) error {
	query := `
		UPDATE ingestion_batches
		SET status            = $2,
		    records_fetched   = $3,
		    records_processed = $4,
		    error_detail      = NULLIF($5, ''),
		    updated_at        = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, string(status), fetched, processed, errorDetail)
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check batch update: %w", err)
	}
	if affected == 0 {
		return batch.ErrBatchNotFound
	}
	return nil
}

func (r *BatchRepository) GetBySessionID(ctx context.Context, sessionID string) (*batch.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM ingestion_batches WHERE session_id = $1`

	b, err := scanBatch(r.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, batch.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return b, nil
}

func (r *BatchRepository) ListByStatus(ctx context.Context, status batch.Status, limit int) ([]*batch.Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + batchColumns + `
		FROM ingestion_batches
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []*batch.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func scanBatch(row rowScanner) (*batch.Batch, error) {
	var b batch.Batch
	var status string
	var payload []byte
	err := row.Scan(
		&b.ID, &b.SessionID, &b.ConsentHandle, &b.FIType, &status,
		&b.RecordsFetched, &b.RecordsProcessed, &payload, &b.ErrorDetail,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = batch.Status(status)
	b.Payload = payload
	return &b, nil
}
