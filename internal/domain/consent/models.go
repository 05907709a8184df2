package consent

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"nivesh/internal/domain/portfolio"
)

// Status is the consent lifecycle status. PENDING is assigned at creation;
// transitions are driven only by verified webhook notifications or an
// authenticated status poll. REVOKED, EXPIRED and REJECTED are terminal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusActive   Status = "ACTIVE"
	StatusPaused   Status = "PAUSED"
	StatusRejected Status = "REJECTED"
	StatusRevoked  Status = "REVOKED"
	StatusExpired  Status = "EXPIRED"
)

var statuses = map[Status]struct{}{
	StatusPending:  {},
	StatusActive:   {},
	StatusPaused:   {},
	StatusRejected: {},
	StatusRevoked:  {},
	StatusExpired:  {},
}

// ParseStatus normalizes a provider-supplied status string.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := statuses[st]; ok {
		return st, true
	}
	return "", false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusRevoked || s == StatusExpired || s == StatusRejected
}

// Event sources.
const (
	SourceUser    = "user"
	SourceSystem  = "system"
	SourceWebhook = "webhook"
	SourceAPI     = "api"
)

// Event types not derived from a status.
const (
	EventTypeCreated         = "created"
	EventTypeDataReady       = "data ready"
	EventTypeConsentNotFound = "consent not found"
)

// EventTypeForStatus maps a new status to its audit event type.
func EventTypeForStatus(s Status) string {
	switch s {
	case StatusActive:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusRevoked:
		return "revoked"
	case StatusExpired:
		return "expired"
	default:
		return "status updated"
	}
}

// Domain errors
var (
	ErrConsentNotFound = errors.New("consent not found")
	ErrInvalidInput    = errors.New("invalid consent input")

	// Provider-call failure classes. The infrastructure client wraps its
	// errors with these sentinels so callers can distinguish "try again"
	// conditions from definitive rejections.
	ErrProviderUnavailable = errors.New("aggregator provider unavailable")
	ErrProviderProtocol    = errors.New("aggregator protocol error")
	ErrCustomerNotFound    = errors.New("customer not registered with aggregator")
)

// Consent is one user's grant of data-sharing rights via the AA provider.
// The handle is provider-issued at creation and globally unique; the provider
// id appears only after approval and is never reassigned.
type Consent struct {
	Handle        string             `json:"handle"`
	ProviderID    string             `json:"providerId,omitempty"`
	UserID        int64              `json:"userId"`
	Status        Status             `json:"status"`
	FITypes       []portfolio.FIType `json:"fiTypes"`
	Purpose       string             `json:"purpose"`
	StartsAt      time.Time          `json:"startsAt"`
	ExpiresAt     time.Time          `json:"expiresAt"`
	DataRangeFrom time.Time          `json:"dataRangeFrom"`
	DataRangeTo   time.Time          `json:"dataRangeTo"`
	Frequency     string             `json:"frequency"`
	ApprovalURL   string             `json:"approvalUrl,omitempty"`
	ProviderMeta  json.RawMessage    `json:"providerMeta,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// Event is an immutable audit record of one observed status transition.
// Events reference the consent by handle, not provider id, because the id
// may not exist yet when the first events are recorded.
type Event struct {
	ID             string          `json:"id"`
	ConsentHandle  string          `json:"consentHandle"`
	PreviousStatus Status          `json:"previousStatus,omitempty"`
	NewStatus      Status          `json:"newStatus,omitempty"`
	EventType      string          `json:"eventType"`
	Source         string          `json:"source"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// CreateParams is the internal consent request turned into a provider call.
type CreateParams struct {
	UserID        int64
	Purpose       string
	FITypes       []portfolio.FIType
	DataRangeFrom time.Time
	DataRangeTo   time.Time
	Frequency     string
}

func (p CreateParams) Validate() error {
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if len(p.FITypes) == 0 {
		return errors.New("at least one FI type is required")
	}
	for _, t := range p.FITypes {
		if !portfolio.IsValidFIType(t) {
			return portfolio.ErrInvalidFIType
		}
	}
	if p.Purpose == "" {
		return errors.New("purpose is required")
	}
	if !p.DataRangeFrom.Before(p.DataRangeTo) {
		return errors.New("data range start must be before end")
	}
	return nil
}

// StatusNotification is the normalized content of a verified consent-status
// webhook or a status poll. Either Handle or ProviderID may identify the
// consent; both may be present.
type StatusNotification struct {
	Handle     string
	ProviderID string
	Status     Status
	StartsAt   *time.Time
	ExpiresAt  *time.Time
	Source     string
	Raw        json.RawMessage
}
