package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"nivesh/internal/domain/consent"
)

// MockClient is the explicit local-development stand-in for the provider.
// It is only ever selected by the PROVIDER_MODE=mock configuration, never
// inferred from missing credentials. Consents auto-approve on the first
// status read so the full lifecycle can be exercised offline.
type MockClient struct {
	mu       sync.Mutex
	consents map[string]*consent.ProviderConsent
}

var _ ClientInterface = (*MockClient)(nil)

func NewMockClient() *MockClient {
	log.Printf("WARNING: using mock Account Aggregator provider")
	return &MockClient{consents: make(map[string]*consent.ProviderConsent)}
}

func (m *MockClient) CreateConsent(ctx context.Context, req consent.ProviderRequest) (*consent.ProviderConsent, error) {
	handle := "mock-" + uuid.NewString()
	pc := &consent.ProviderConsent{
		Handle:      handle,
		Status:      consent.StatusPending,
		StartsAt:    req.StartsAt,
		ExpiresAt:   req.ExpiresAt,
		ApprovalURL: "https://localhost/mock-approval/" + handle,
	}
	m.mu.Lock()
	m.consents[handle] = pc
	m.mu.Unlock()
	return pc, nil
}

func (m *MockClient) GetConsentStatus(ctx context.Context, handle string) (*consent.ProviderConsent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.consents[handle]
	if !ok {
		return nil, fmt.Errorf("%w: unknown handle %s", consent.ErrConsentNotFound, handle)
	}
	if pc.Status == consent.StatusPending {
		pc.Status = consent.StatusActive
		pc.ProviderID = "mock-consent-" + uuid.NewString()
	}
	out := *pc
	return &out, nil
}

func (m *MockClient) RevokeConsent(ctx context.Context, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pc := range m.consents {
		if pc.ProviderID == providerID {
			pc.Status = consent.StatusRevoked
			return nil
		}
	}
	return fmt.Errorf("%w: unknown consent id %s", consent.ErrConsentNotFound, providerID)
}

// FetchFIData returns a small fixed portfolio so ingestion has something
// real-shaped to chew on locally.
func (m *MockClient) FetchFIData(ctx context.Context, sessionID string) (json.RawMessage, error) {
	asOf := time.Now().UTC().Format("2006-01-02")
	payload := fmt.Sprintf(`{
		"fiData": [{
			"fipId": "mock-bank",
			"accounts": [{
				"linkedAccRef": "mock-acc-%s",
				"maskedAccNumber": "XXXX0001",
				"fiType": "DEPOSIT",
				"accType": "SAVINGS",
				"summary": {"currentBalance": 52340.75, "asOfDate": "%s"},
				"transactions": [
					{"txnId": "mock-txn-1", "type": "CREDIT", "amount": 25000, "transactionDate": "%s", "narration": "SALARY"},
					{"txnId": "mock-txn-2", "type": "DEBIT", "amount": 1200.50, "transactionDate": "%s", "narration": "UPI-GROCERY"}
				]
			}]
		}, {
			"fipId": "mock-mf-rta",
			"accounts": [{
				"linkedAccRef": "mock-folio-%s",
				"maskedAccNumber": "XXXX7733",
				"fiType": "MUTUAL_FUNDS",
				"holdings": [
					{"schemeName": "Mock Flexi Cap Fund", "isin": "INF000000017", "closingUnits": 310.551, "nav": 96.41, "currentValue": 29940.23, "asOfDate": "%s"}
				]
			}]
		}]
	}`, sessionID, asOf, asOf, asOf, sessionID, asOf)
	return json.RawMessage(payload), nil
}
