package portfolio

import "context"

// AccountRepository persists linked accounts. Defined in the domain layer,
// implemented in the infrastructure layer.
type AccountRepository interface {
	// Upsert inserts the account or, when the (user, provider account id,
	// FI type) triple already exists, refreshes its mutable fields
	// (status, metadata, last-fetched timestamp).
	Upsert(ctx context.Context, params UpsertAccountParams) (*LinkedAccount, error)

	// GetByProviderID looks up an account by its uniqueness triple.
	GetByProviderID(ctx context.Context, userID int64, providerAccountID string, fiType FIType) (*LinkedAccount, error)

	// ListByUserID returns all linked accounts for a user.
	ListByUserID(ctx context.Context, userID int64) ([]*LinkedAccount, error)

	// GetByID returns one account by internal id.
	GetByID(ctx context.Context, id int64) (*LinkedAccount, error)
}

// HoldingRepository persists holding snapshots keyed by idempotency key.
type HoldingRepository interface {
	// InsertIfNew writes the holding unless its idempotency key already
	// exists. Returns false (and no error) for the duplicate-suppressed
	// no-op case; existing rows are never modified.
	InsertIfNew(ctx context.Context, h *Holding) (created bool, err error)

	// ListByAccountID returns holdings for an account, newest snapshot first.
	ListByAccountID(ctx context.Context, accountID int64) ([]*Holding, error)
}

// TransactionRepository persists transactions keyed by idempotency key.
type TransactionRepository interface {
	// InsertIfNew writes the transaction unless its idempotency key
	// already exists. Returns false for the duplicate-suppressed no-op.
	InsertIfNew(ctx context.Context, t *Transaction) (created bool, err error)

	// ListByAccountID returns transactions for an account, newest first.
	ListByAccountID(ctx context.Context, accountID int64) ([]*Transaction, error)
}
