package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"nivesh/internal/domain/portfolio"
	"nivesh/internal/domain/user"
)

// ProviderRequest is the normalized consent-creation request handed to the
// provider client.
type ProviderRequest struct {
	CustomerHandle string
	FITypes        []portfolio.FIType
	Purpose        string
	DataRangeFrom  time.Time
	DataRangeTo    time.Time
	Frequency      string
	StartsAt       time.Time
	ExpiresAt      time.Time
}

// ProviderConsent is the normalized result of a provider consent call.
type ProviderConsent struct {
	Handle      string
	ProviderID  string
	Status      Status
	StartsAt    time.Time
	ExpiresAt   time.Time
	ApprovalURL string
}

// ProviderClient is the pluggable adapter boundary to the AA provider.
// Implemented by the real HTTP client and the explicit mock in
// internal/infrastructure/aggregator.
type ProviderClient interface {
	CreateConsent(ctx context.Context, req ProviderRequest) (*ProviderConsent, error)
	GetConsentStatus(ctx context.Context, handle string) (*ProviderConsent, error)
	RevokeConsent(ctx context.Context, providerID string) error
}

// Messenger sends a push notification; nil-safe optional dependency.
type Messenger interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// Notice is a user-facing notification text pair.
type Notice struct {
	Title string
	Body  string
}

// Service contains the consent lifecycle business logic.
type Service struct {
	repo           Repository
	events         EventRepository
	provider       ProviderClient
	users          user.Repository
	messenger      Messenger
	approvedNotice Notice
	handleSuffix   string
	validity       time.Duration
}

// NewService creates a consent service. messenger may be nil.
func NewService(
	repo Repository,
	events EventRepository,
	provider ProviderClient,
	users user.Repository,
	messenger Messenger,
	approvedNotice Notice,
	handleSuffix string,
	validityDays int,
) *Service {
	if validityDays <= 0 {
		validityDays = 365
	}
	return &Service{
		repo:           repo,
		events:         events,
		provider:       provider,
		users:          users,
		messenger:      messenger,
		approvedNotice: approvedNotice,
		handleSuffix:   handleSuffix,
		validity:       time.Duration(validityDays) * 24 * time.Hour,
	}
}

// InitiateConsent validates the request, creates the consent at the provider
// and persists the PENDING record plus its "created" audit event.
func (s *Service) InitiateConsent(ctx context.Context, params CreateParams) (*Consent, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	u, err := s.users.GetByID(ctx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if u.Phone == "" {
		return nil, fmt.Errorf("%w: user has no registered phone number", ErrCustomerNotFound)
	}

	now := time.Now().UTC()
	req := ProviderRequest{
		CustomerHandle: u.Phone + "@" + s.handleSuffix,
		FITypes:        params.FITypes,
		Purpose:        params.Purpose,
		DataRangeFrom:  params.DataRangeFrom,
		DataRangeTo:    params.DataRangeTo,
		Frequency:      params.Frequency,
		StartsAt:       now,
		ExpiresAt:      now.Add(s.validity),
	}

	pc, err := s.provider.CreateConsent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create consent at provider: %w", err)
	}

	c := &Consent{
		Handle:        pc.Handle,
		ProviderID:    pc.ProviderID,
		UserID:        params.UserID,
		Status:        StatusPending,
		FITypes:       params.FITypes,
		Purpose:       params.Purpose,
		StartsAt:      pc.StartsAt,
		ExpiresAt:     pc.ExpiresAt,
		DataRangeFrom: params.DataRangeFrom,
		DataRangeTo:   params.DataRangeTo,
		Frequency:     params.Frequency,
		ApprovalURL:   pc.ApprovalURL,
	}
	if c.StartsAt.IsZero() {
		c.StartsAt = req.StartsAt
	}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = req.ExpiresAt
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to persist consent: %w", err)
	}

	s.appendEvent(ctx, &Event{
		ConsentHandle: c.Handle,
		NewStatus:     StatusPending,
		EventType:     EventTypeCreated,
		Source:        SourceUser,
	})

	return c, nil
}

// HandleStatusNotification applies a verified status change. An unknown
// consent is a recoverable data-lag condition: it is logged as a
// "consent not found" audit event and reported as ErrConsentNotFound, never
// as a platform failure.
func (s *Service) HandleStatusNotification(ctx context.Context, n StatusNotification) (*Consent, error) {
	if n.Handle == "" && n.ProviderID == "" {
		return nil, fmt.Errorf("%w: notification carries no consent identifier", ErrInvalidInput)
	}

	c, err := s.lookup(ctx, n.Handle, n.ProviderID)
	if errors.Is(err, ErrConsentNotFound) {
		handle := n.Handle
		if handle == "" {
			handle = n.ProviderID
		}
		s.appendEvent(ctx, &Event{
			ConsentHandle: handle,
			NewStatus:     n.Status,
			EventType:     EventTypeConsentNotFound,
			Source:        n.Source,
			Metadata:      n.Raw,
		})
		return nil, ErrConsentNotFound
	}
	if err != nil {
		return nil, err
	}

	return s.applyStatus(ctx, c, n)
}

// PollStatus asks the provider for the current status by handle; the
// secondary path when a webhook might have been missed. The provider may
// know a consent we have not persisted yet — that surfaces as
// ErrConsentNotFound for the caller to handle.
func (s *Service) PollStatus(ctx context.Context, handle string) (*Consent, error) {
	pc, err := s.provider.GetConsentStatus(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to poll consent status: %w", err)
	}

	c, err := s.repo.GetByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}

	n := StatusNotification{
		Handle:     handle,
		ProviderID: pc.ProviderID,
		Status:     pc.Status,
		Source:     SourceAPI,
	}
	if !pc.StartsAt.IsZero() {
		n.StartsAt = &pc.StartsAt
	}
	if !pc.ExpiresAt.IsZero() {
		n.ExpiresAt = &pc.ExpiresAt
	}

	return s.applyStatus(ctx, c, n)
}

// RecordDataReady appends a "data ready" audit event when a data-session
// notification resolves to a known consent. Best-effort: an unknown handle is
// skipped, the stored batch is the durable record until the consent lands.
func (s *Service) RecordDataReady(ctx context.Context, handle string, raw json.RawMessage) {
	if handle == "" {
		return
	}
	c, err := s.repo.GetByHandle(ctx, handle)
	if err != nil {
		return
	}
	s.appendEvent(ctx, &Event{
		ConsentHandle: c.Handle,
		EventType:     EventTypeDataReady,
		Source:        SourceWebhook,
		Metadata:      raw,
	})
}

// RevokeConsent revokes the consent at the provider and locally. Revoking an
// already-revoked consent succeeds without error.
func (s *Service) RevokeConsent(ctx context.Context, userID int64, handle string) (*Consent, error) {
	c, err := s.repo.GetByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrConsentNotFound
	}

	if c.Status == StatusRevoked {
		return c, nil
	}

	if c.ProviderID != "" {
		if err := s.provider.RevokeConsent(ctx, c.ProviderID); err != nil {
			return nil, fmt.Errorf("failed to revoke consent at provider: %w", err)
		}
	}

	return s.applyStatus(ctx, c, StatusNotification{
		Handle: handle,
		Status: StatusRevoked,
		Source: SourceUser,
	})
}

// GetByHandle returns a consent after verifying ownership.
func (s *Service) GetByHandle(ctx context.Context, userID int64, handle string) (*Consent, error) {
	c, err := s.repo.GetByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrConsentNotFound
	}
	return c, nil
}

// Lookup returns a consent by handle with no ownership check. For internal
// callers (webhook processing, scheduler); user-facing reads go through
// GetByHandle.
func (s *Service) Lookup(ctx context.Context, handle string) (*Consent, error) {
	return s.repo.GetByHandle(ctx, handle)
}

// ListByUserID returns all consents for a user.
func (s *Service) ListByUserID(ctx context.Context, userID int64) ([]*Consent, error) {
	if userID <= 0 {
		return nil, errors.New("valid user ID is required")
	}
	return s.repo.ListByUserID(ctx, userID)
}

// ListEvents returns the audit trail for a consent after verifying ownership.
func (s *Service) ListEvents(ctx context.Context, userID int64, handle string) ([]*Event, error) {
	if _, err := s.GetByHandle(ctx, userID, handle); err != nil {
		return nil, err
	}
	return s.events.ListByHandle(ctx, handle)
}

// ListPendingOlderThan exposes the poll-job query.
func (s *Service) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*Consent, error) {
	return s.repo.ListPendingOlderThan(ctx, cutoff)
}

// applyStatus writes the transition, appends the audit event and fires the
// approval notification. No-op transitions still record an event so the audit
// trail reflects every observed delivery.
func (s *Service) applyStatus(ctx context.Context, c *Consent, n StatusNotification) (*Consent, error) {
	previous := c.Status

	var providerID *string
	if n.ProviderID != "" && c.ProviderID == "" {
		providerID = &n.ProviderID
	}

	if err := s.repo.UpdateStatus(ctx, c.Handle, n.Status, providerID, n.StartsAt, n.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to update consent status: %w", err)
	}

	c.Status = n.Status
	if providerID != nil {
		c.ProviderID = *providerID
	}
	if n.StartsAt != nil {
		c.StartsAt = *n.StartsAt
	}
	if n.ExpiresAt != nil {
		c.ExpiresAt = *n.ExpiresAt
	}

	s.appendEvent(ctx, &Event{
		ConsentHandle:  c.Handle,
		PreviousStatus: previous,
		NewStatus:      n.Status,
		EventType:      EventTypeForStatus(n.Status),
		Source:         n.Source,
		Metadata:       n.Raw,
	})

	if n.Status == StatusActive && previous != StatusActive {
		s.notifyApproved(ctx, c)
	}

	return c, nil
}

// appendEvent is best-effort: a failed audit write is logged, never allowed
// to fail the transition it records.
func (s *Service) appendEvent(ctx context.Context, e *Event) {
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	if e.Source == "" {
		e.Source = SourceSystem
	}
	if err := s.events.Append(ctx, e); err != nil {
		log.Printf("Failed to append consent event for %s (%s): %v", e.ConsentHandle, e.EventType, err)
	}
}

func (s *Service) notifyApproved(ctx context.Context, c *Consent) {
	if s.messenger == nil {
		return
	}
	u, err := s.users.GetByID(ctx, c.UserID)
	if err != nil || u.FCMToken == "" {
		return
	}
	data := map[string]string{"consentHandle": c.Handle}
	if err := s.messenger.Send(ctx, u.FCMToken, s.approvedNotice.Title, s.approvedNotice.Body, data); err != nil {
		log.Printf("Failed to send consent-approved notification for %s: %v", c.Handle, err)
	}
}

// lookup resolves a consent by handle first, then by provider id.
func (s *Service) lookup(ctx context.Context, handle, providerID string) (*Consent, error) {
	if handle != "" {
		c, err := s.repo.GetByHandle(ctx, handle)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrConsentNotFound) {
			return nil, err
		}
	}
	if providerID != "" {
		return s.repo.GetByProviderID(ctx, providerID)
	}
	return nil, ErrConsentNotFound
}
