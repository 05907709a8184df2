package consent

import (
	"context"
	"time"
)

// Repository persists consent records. Defined in the domain layer,
// implemented in the infrastructure layer.
type Repository interface {
	// Create inserts a new consent in PENDING.
	Create(ctx context.Context, c *Consent) error

	// GetByHandle returns the consent for a provider handle, or
	// ErrConsentNotFound.
	GetByHandle(ctx context.Context, handle string) (*Consent, error)

	// GetByProviderID returns the consent carrying a post-approval
	// provider id, or ErrConsentNotFound.
	GetByProviderID(ctx context.Context, providerID string) (*Consent, error)

	// ListByUserID returns all consents for a user, newest first.
	ListByUserID(ctx context.Context, userID int64) ([]*Consent, error)

	// ListPendingOlderThan returns PENDING consents created before the
	// cutoff; used by the poll job to catch missed webhooks.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*Consent, error)

	// UpdateStatus writes the new status and, when supplied, the provider
	// id and validity window. Nil pointers leave columns untouched.
	UpdateStatus(ctx context.Context, handle string, status Status, providerID *string, startsAt, expiresAt *time.Time) error
}

// EventRepository is the append-only consent audit trail. Events are created,
// never mutated or deleted.
type EventRepository interface {
	Append(ctx context.Context, e *Event) error
	ListByHandle(ctx context.Context, handle string) ([]*Event, error)
}
