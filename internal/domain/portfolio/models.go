package portfolio

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// FIType is the financial-instrument category tag used across consents,
// linked accounts and ingestion, mirroring the Account Aggregator FI types.
type FIType string

const (
	FITypeDeposit          FIType = "DEPOSIT"
	FITypeTermDeposit      FIType = "TERM_DEPOSIT"
	FITypeRecurringDeposit FIType = "RECURRING_DEPOSIT"
	FITypeMutualFunds      FIType = "MUTUAL_FUNDS"
	FITypeEquities         FIType = "EQUITIES"
	FITypeInsurance        FIType = "INSURANCE_POLICIES"
)

var fiTypes = map[FIType]struct{}{
	FITypeDeposit:          {},
	FITypeTermDeposit:      {},
	FITypeRecurringDeposit: {},
	FITypeMutualFunds:      {},
	FITypeEquities:         {},
	FITypeInsurance:        {},
}

// IsValidFIType checks if the provided FI type is a known category.
func IsValidFIType(t FIType) bool {
	_, ok := fiTypes[t]
	return ok
}

// ParseFIType normalizes a provider-supplied category tag. The second return
// is false when the tag does not name a known category.
func ParseFIType(s string) (FIType, bool) {
	t := FIType(strings.ToUpper(strings.TrimSpace(s)))
	if IsValidFIType(t) {
		return t, true
	}
	return "", false
}

// AccountStatus is the lifecycle status of a linked account.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusInactive AccountStatus = "INACTIVE"
	AccountStatusClosed   AccountStatus = "CLOSED"
)

// Domain errors
var (
	ErrAccountNotFound = errors.New("linked account not found")
	ErrInvalidFIType   = errors.New("invalid FI type")
	ErrInvalidInput    = errors.New("invalid input")
)

// LinkedAccount is one financial account at one institution, linked under one
// consent. The triple (user, provider account id, FI type) is unique: the same
// external account is never linked twice for the same user and category.
type LinkedAccount struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"userId"`
	ConsentHandle     string          `json:"consentHandle"`
	FIPID             string          `json:"fipId"`
	ProviderAccountID string          `json:"providerAccountId"`
	MaskedNumber      string          `json:"maskedNumber"`
	FIType            FIType          `json:"fiType"`
	AccountType       string          `json:"accountType"`
	Status            AccountStatus   `json:"status"`
	Profile           json.RawMessage `json:"profile,omitempty"`
	Summary           json.RawMessage `json:"summary,omitempty"`
	LastFetchedAt     time.Time       `json:"lastFetchedAt"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// UpsertAccountParams carries the fields written on every ingestion of a
// batch referencing the account. Profile and Summary are carried through as
// opaque provider metadata.
type UpsertAccountParams struct {
	UserID            int64
	ConsentHandle     string
	FIPID             string
	ProviderAccountID string
	MaskedNumber      string
	FIType            FIType
	AccountType       string
	Status            AccountStatus
	Profile           json.RawMessage
	Summary           json.RawMessage
}

func (p UpsertAccountParams) Validate() error {
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if p.ProviderAccountID == "" {
		return errors.New("provider account ID is required")
	}
	if !IsValidFIType(p.FIType) {
		return ErrInvalidFIType
	}
	return nil
}

// Holding is an immutable snapshot of one instrument position inside one
// linked account as of one date. The idempotency key is globally unique and
// is the sole defense against duplicate ingestion; a later snapshot for the
// same instrument gets a new key and a new row.
type Holding struct {
	ID             int64           `json:"id"`
	AccountID      int64           `json:"accountId"`
	InstrumentName string          `json:"instrumentName"`
	InstrumentID   string          `json:"instrumentId,omitempty"`
	Units          float64         `json:"units"`
	AveragePrice   float64         `json:"averagePrice"`
	CurrentValue   float64         `json:"currentValue"`
	InvestedValue  float64         `json:"investedValue"`
	Details        json.RawMessage `json:"details,omitempty"`
	AsOfDate       time.Time       `json:"asOfDate"`
	IdempotencyKey string          `json:"-"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Transaction is one ledger entry for one linked account, deduplicated by
// idempotency key exactly like Holding.
type Transaction struct {
	ID             int64           `json:"id"`
	AccountID      int64           `json:"accountId"`
	ProviderTxnID  string          `json:"providerTxnId,omitempty"`
	TxnType        string          `json:"txnType"`
	TxnDate        time.Time       `json:"txnDate"`
	Amount         float64         `json:"amount"`
	Narration      string          `json:"narration"`
	Reference      string          `json:"reference"`
	Details        json.RawMessage `json:"details,omitempty"`
	IdempotencyKey string          `json:"-"`
	CreatedAt      time.Time       `json:"createdAt"`
}
