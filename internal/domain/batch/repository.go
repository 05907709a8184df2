package batch

import "context"

// Repository persists ingestion batches.
type Repository interface {
	// UpsertBySession inserts the batch or, when the session id already
	// exists, refreshes its payload and timestamps and returns the
	// existing row. The write is atomic at the storage layer so that
	// concurrent webhook redeliveries are safe.
	UpsertBySession(ctx context.Context, b *Batch) (*Batch, error)

	// UpdateStatus records ingestion progress for a batch.
	UpdateStatus(ctx context.Context, id string, status Status, fetched, processed int, errorDetail string) error

	GetBySessionID(ctx context.Context, sessionID string) (*Batch, error)

	// ListByStatus returns batches in a given state, oldest first;
	// used by the retry job and the admin CLI.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Batch, error)
}
