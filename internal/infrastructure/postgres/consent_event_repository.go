package postgres

import (
	"context"
	"fmt"

	"nivesh/internal/domain/consent"
)

// ConsentEventRepository is the append-only consent audit trail. There is no
// update or delete path on purpose.
type ConsentEventRepository struct {
	db *DB
}

func NewConsentEventRepository(db *DB) *ConsentEventRepository {
	return &ConsentEventRepository{db: db}
}

func (r *ConsentEventRepository) Append(ctx context.Context, e *consent.Event) error {
	query := `
		INSERT INTO consent_events (id, consent_handle, previous_status, new_status, event_type, source, metadata, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.ConsentHandle, string(e.PreviousStatus), string(e.NewStatus),
		e.EventType, e.Source, nullableJSON(e.Metadata), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append consent event: %w", err)
	}
	return nil
}

func (r *ConsentEventRepository) ListByHandle(ctx context.Context, handle string) ([]*consent.Event, error) {
	query := `
		SELECT id, consent_handle, COALESCE(previous_status, ''), COALESCE(new_status, ''), event_type, source, metadata, created_at
		FROM consent_events
		WHERE consent_handle = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to list consent events: %w", err)
	}
	defer rows.Close()

	var events []*consent.Event
	for rows.Next() {
		var e consent.Event
		var previous, next string
		var meta []byte
		err := rows.Scan(&e.ID, &e.ConsentHandle, &previous, &next, &e.EventType, &e.Source, &meta, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent event: %w", err)
		}
		e.PreviousStatus = consent.Status(previous)
		e.NewStatus = consent.Status(next)
		e.Metadata = meta
		events = append(events, &e)
	}
	return events, rows.Err()
}
