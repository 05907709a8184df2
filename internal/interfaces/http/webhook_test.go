package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"

	"nivesh/internal/domain/batch"
	"nivesh/internal/domain/consent"
	"nivesh/internal/domain/ingestion"
	"nivesh/internal/domain/portfolio"
	"nivesh/internal/domain/user"
	"nivesh/internal/infrastructure/jws"
)

// In-memory fakes for the webhook pipeline.

type memConsentRepo struct {
	consents map[string]*consent.Consent
}

func (m *memConsentRepo) Create(ctx context.Context, c *consent.Consent) error {
	m.consents[c.Handle] = c
	return nil
}
func (m *memConsentRepo) GetByHandle(ctx context.Context, handle string) (*consent.Consent, error) {
	c, ok := m.consents[handle]
	if !ok {
		return nil, consent.ErrConsentNotFound
	}
	out := *c
	return &out, nil
}
func (m *memConsentRepo) GetByProviderID(ctx context.Context, providerID string) (*consent.Consent, error) {
	for _, c := range m.consents {
		if c.ProviderID == providerID {
			out := *c
			return &out, nil
		}
	}
	return nil, consent.ErrConsentNotFound
}
func (m *memConsentRepo) ListByUserID(ctx context.Context, userID int64) ([]*consent.Consent, error) {
	return nil, nil
}
func (m *memConsentRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*consent.Consent, error) {
	return nil, nil
}
func (m *memConsentRepo) UpdateStatus(ctx context.Context, handle string, status consent.Status, providerID *string, startsAt, expiresAt *time.Time) error {
	c, ok := m.consents[handle]
	if !ok {
		return consent.ErrConsentNotFound
	}
	c.Status = status
	if providerID != nil {
		c.ProviderID = *providerID
	}
	if startsAt != nil {
		c.StartsAt = *startsAt
	}
	if expiresAt != nil {
		c.ExpiresAt = *expiresAt
	}
	return nil
}

type memEventRepo struct {
	events []*consent.Event
}

func (m *memEventRepo) Append(ctx context.Context, e *consent.Event) error {
	m.events = append(m.events, e)
	return nil
}
func (m *memEventRepo) ListByHandle(ctx context.Context, handle string) ([]*consent.Event, error) {
	var out []*consent.Event
	for _, e := range m.events {
		if e.ConsentHandle == handle {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubProvider struct{}

func (stubProvider) CreateConsent(ctx context.Context, req consent.ProviderRequest) (*consent.ProviderConsent, error) {
	return nil, consent.ErrProviderUnavailable
}
func (stubProvider) GetConsentStatus(ctx context.Context, handle string) (*consent.ProviderConsent, error) {
	return nil, consent.ErrProviderUnavailable
}
func (stubProvider) RevokeConsent(ctx context.Context, providerID string) error {
	return consent.ErrProviderUnavailable
}

type memUserRepo struct{}

func (memUserRepo) Create(ctx context.Context, params user.CreateParams) (*user.User, error) {
	return nil, nil
}
func (memUserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	return &user.User{ID: id, Phone: "9999999999"}, nil
}
func (memUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return nil, user.ErrUserNotFound
}
func (memUserRepo) Update(ctx context.Context, userID int64, params user.UpdateParams) (*user.User, error) {
	return nil, nil
}

type memBatchRepo struct {
	bySession map[string]*batch.Batch
	nextID    int
}

func (m *memBatchRepo) UpsertBySession(ctx context.Context, b *batch.Batch) (*batch.Batch, error) {
	if existing, ok := m.bySession[b.SessionID]; ok {
		existing.Payload = b.Payload
		out := *existing
		return &out, nil
	}
	m.nextID++
	b.ID = fmt.Sprintf("batch-%d", m.nextID)
	b.CreatedAt = time.Now().UTC()
	stored := *b
	m.bySession[b.SessionID] = &stored
	out := stored
	return &out, nil
}
func (m *memBatchRepo) UpdateStatus(ctx context.Context, id string, status batch.Status, fetched, processed int, errorDetail string) error {
	for _, b := range m.bySession {
		if b.ID == id {
			b.Status = status
			b.RecordsFetched = fetched
			b.RecordsProcessed = processed
			b.ErrorDetail = errorDetail
			return nil
		}
	}
	return batch.ErrBatchNotFound
}
func (m *memBatchRepo) GetBySessionID(ctx context.Context, sessionID string) (*batch.Batch, error) {
	b, ok := m.bySession[sessionID]
	if !ok {
		return nil, batch.ErrBatchNotFound
	}
	return b, nil
}
func (m *memBatchRepo) ListByStatus(ctx context.Context, status batch.Status, limit int) ([]*batch.Batch, error) {
	return nil, nil
}

type memAccountRepo struct {
	nextID int64
}

func (m *memAccountRepo) Upsert(ctx context.Context, params portfolio.UpsertAccountParams) (*portfolio.LinkedAccount, error) {
	m.nextID++
	return &portfolio.LinkedAccount{ID: m.nextID, UserID: params.UserID, FIType: params.FIType}, nil
}
func (m *memAccountRepo) GetByProviderID(ctx context.Context, userID int64, providerAccountID string, fiType portfolio.FIType) (*portfolio.LinkedAccount, error) {
	return nil, portfolio.ErrAccountNotFound
}
func (m *memAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*portfolio.LinkedAccount, error) {
	return nil, nil
}
func (m *memAccountRepo) GetByID(ctx context.Context, id int64) (*portfolio.LinkedAccount, error) {
	return nil, portfolio.ErrAccountNotFound
}

type memHoldingRepo struct{ seen map[string]bool }

func (m *memHoldingRepo) InsertIfNew(ctx context.Context, h *portfolio.Holding) (bool, error) {
	if m.seen[h.IdempotencyKey] {
		return false, nil
	}
	m.seen[h.IdempotencyKey] = true
	return true, nil
}
func (m *memHoldingRepo) ListByAccountID(ctx context.Context, accountID int64) ([]*portfolio.Holding, error) {
	return nil, nil
}

type memTxnRepo struct{ seen map[string]bool }

func (m *memTxnRepo) InsertIfNew(ctx context.Context, t *portfolio.Transaction) (bool, error) {
	if m.seen[t.IdempotencyKey] {
		return false, nil
	}
	m.seen[t.IdempotencyKey] = true
	return true, nil
}
func (m *memTxnRepo) ListByAccountID(ctx context.Context, accountID int64) ([]*portfolio.Transaction, error) {
	return nil, nil
}

// webhookFixture wires a full webhook handler over in-memory storage with a
// real signing key.
type webhookFixture struct {
	handler  *WebhookHandler
	signer   jose.Signer
	consents *memConsentRepo
	events   *memEventRepo
	batches  *memBatchRepo
	holdings *memHoldingRepo
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	verifier, err := jws.NewVerifier(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: priv}, nil)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	consents := &memConsentRepo{consents: map[string]*consent.Consent{}}
	events := &memEventRepo{}
	batches := &memBatchRepo{bySession: map[string]*batch.Batch{}}
	holdings := &memHoldingRepo{seen: map[string]bool{}}
	txns := &memTxnRepo{seen: map[string]bool{}}

	consentSvc := consent.NewService(consents, events, stubProvider{}, memUserRepo{}, nil,
		consent.Notice{Title: "Consent approved", Body: "Your accounts are being linked."}, "nadl", 365)
	ingestSvc := ingestion.NewService(batches, consents, &memAccountRepo{}, holdings, txns, nil)

	return &webhookFixture{
		handler:  NewWebhookHandler(verifier, consentSvc, batches, ingestSvc, nil),
		signer:   signer,
		consents: consents,
		events:   events,
		batches:  batches,
		holdings: holdings,
	}
}

func (f *webhookFixture) sign(t *testing.T, body []byte) string {
	t.Helper()
	obj, err := f.signer.Sign(body)
	if err != nil {
		t.Fatalf("failed to sign body: %v", err)
	}
	sig, err := obj.DetachedCompactSerialize()
	if err != nil {
		t.Fatalf("failed to serialize signature: %v", err)
	}
	return sig
}

func (f *webhookFixture) post(t *testing.T, handlerFn http.HandlerFunc, path string, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handlerFn(rec, req)
	return rec
}

func seedConsent(f *webhookFixture, handle string, status consent.Status) {
	f.consents.consents[handle] = &consent.Consent{
		Handle:  handle,
		UserID:  7,
		Status:  status,
		FITypes: []portfolio.FIType{portfolio.FITypeDeposit},
	}
}

func TestConsentNotificationActivatesConsent(t *testing.T) {
	f := newWebhookFixture(t)
	seedConsent(f, "handle-1", consent.StatusPending)

	body := []byte(`{"consentHandle":"handle-1","consentId":"prov-9","consentStatus":"ACTIVE"}`)
	rec := f.post(t, f.handler.HandleConsentNotification, "/consent-notification", body, f.sign(t, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	c := f.consents.consents["handle-1"]
	if c.Status != consent.StatusActive || c.ProviderID != "prov-9" {
		t.Errorf("consent after notification: %+v", c)
	}
	if len(f.events.events) != 1 {
		t.Fatalf("got %d audit events, want 1", len(f.events.events))
	}
	if f.events.events[0].Source != consent.SourceWebhook {
		t.Errorf("event source = %q, want webhook", f.events.events[0].Source)
	}
}

func TestConsentNotificationAppliesValidityWindow(t *testing.T) {
	f := newWebhookFixture(t)
	seedConsent(f, "handle-1", consent.StatusPending)

	body := []byte(`{"consentHandle":"handle-1","consentStatus":"ACTIVE",` +
		`"consentStart":"2026-04-01","consentExpiry":"2027-04-01T00:00:00Z"}`)
	rec := f.post(t, f.handler.HandleConsentNotification, "/consent-notification", body, f.sign(t, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	c := f.consents.consents["handle-1"]
	if want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC); !c.StartsAt.Equal(want) {
		t.Errorf("StartsAt = %v, want %v", c.StartsAt, want)
	}
	if want := time.Date(2027, 4, 1, 0, 0, 0, 0, time.UTC); !c.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", c.ExpiresAt, want)
	}
}

func TestConsentNotificationWithoutWindowKeepsExisting(t *testing.T) {
	f := newWebhookFixture(t)
	seedConsent(f, "handle-1", consent.StatusPending)
	seeded := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.consents.consents["handle-1"].StartsAt = seeded

	body := []byte(`{"consentHandle":"handle-1","consentStatus":"ACTIVE"}`)
	rec := f.post(t, f.handler.HandleConsentNotification, "/consent-notification", body, f.sign(t, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if c := f.consents.consents["handle-1"]; !c.StartsAt.Equal(seeded) {
		t.Errorf("StartsAt = %v, want untouched %v", c.StartsAt, seeded)
	}
}

func TestConsentNotificationRejectsBadSignature(t *testing.T) {
	f := newWebhookFixture(t)
	seedConsent(f, "handle-1", consent.StatusPending)

	body := []byte(`{"consentHandle":"handle-1","consentStatus":"ACTIVE"}`)

	// No signature at all.
	rec := f.post(t, f.handler.HandleConsentNotification, "/consent-notification", body, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing signature: status = %d, want 401", rec.Code)
	}

	// Signature over different bytes.
	otherSig := f.sign(t, []byte(`{"consentHandle":"handle-1","consentStatus":"REVOKED"}`))
	rec = f.post(t, f.handler.HandleConsentNotification, "/consent-notification", body, otherSig)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("tampered body: status = %d, want 401", rec.Code)
	}

	if c := f.consents.consents["handle-1"]; c.Status != consent.StatusPending {
		t.Errorf("consent mutated by rejected webhook: %+v", c)
	}
}

func TestConsentNotificationMissingIdentifier(t *testing.T) {
	f := newWebhookFixture(t)

	body := []byte(`{"consentStatus":"ACTIVE"}`)
	rec := f.post(t, f.handler.HandleConsentNotification, "/consent-notification", body, f.sign(t, body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestConsentNotificationUnknownConsentIsAudited(t *testing.T) {
	f := newWebhookFixture(t)

	body := []byte(`{"consentHandle":"never-seen","consentStatus":"ACTIVE"}`)
	rec := f.post(t, f.handler.HandleConsentNotification, "/consent-notification", body, f.sign(t, body))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if len(f.events.events) != 1 || f.events.events[0].EventType != consent.EventTypeConsentNotFound {
		t.Errorf("expected a consent-not-found audit event, got %+v", f.events.events)
	}
}

const fiDataBody = `{
	"sessionId": "session-9",
	"consentHandle": "handle-1",
	"fiData": [{
		"fipId": "hdfc-bank",
		"accounts": [{
			"linkedAccRef": "acc-1",
			"fiType": "DEPOSIT",
			"accType": "SAVINGS",
			"transactions": [
				{"txnId": "t1", "type": "DEBIT", "amount": 250.00, "transactionDate": "2026-03-10", "narration": "UPI"}
			]
		}]
	}]
}`

func TestFIDataNotificationIngestsBatch(t *testing.T) {
	f := newWebhookFixture(t)
	seedConsent(f, "handle-1", consent.StatusActive)

	body := []byte(fiDataBody)
	rec := f.post(t, f.handler.HandleFIDataNotification, "/fi-data-notification", body, f.sign(t, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	b := f.batches.bySession["session-9"]
	if b == nil {
		t.Fatal("batch was not persisted")
	}
	if b.Status != batch.StatusCompleted {
		t.Errorf("batch status = %v, want COMPLETED", b.Status)
	}
	if b.RecordsProcessed != 1 {
		t.Errorf("records processed = %d, want 1", b.RecordsProcessed)
	}

	events, _ := f.events.ListByHandle(context.Background(), "handle-1")
	if len(events) != 1 || events[0].EventType != consent.EventTypeDataReady {
		t.Errorf("expected one data-ready audit event, got %+v", events)
	}
	if len(events) == 1 && events[0].Source != consent.SourceWebhook {
		t.Errorf("event source = %q, want webhook", events[0].Source)
	}
}

func TestFIDataNotificationRedelivery(t *testing.T) {
	f := newWebhookFixture(t)
	seedConsent(f, "handle-1", consent.StatusActive)

	body := []byte(fiDataBody)
	sig := f.sign(t, body)

	for i := 0; i < 2; i++ {
		rec := f.post(t, f.handler.HandleFIDataNotification, "/fi-data-notification", body, sig)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	if len(f.batches.bySession) != 1 {
		t.Errorf("got %d batches, want 1 (same session upserts one row)", len(f.batches.bySession))
	}
}

func TestFIDataNotificationMissingSession(t *testing.T) {
	f := newWebhookFixture(t)

	body := []byte(`{"consentHandle":"handle-1"}`)
	rec := f.post(t, f.handler.HandleFIDataNotification, "/fi-data-notification", body, f.sign(t, body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(f.batches.bySession) != 0 {
		t.Error("batch persisted despite missing session id")
	}
}

func TestFIDataNotificationUnknownConsentStillStoresBatch(t *testing.T) {
	f := newWebhookFixture(t)
	// No consent seeded: ingestion must defer, not fail the delivery.

	body := []byte(fiDataBody)
	rec := f.post(t, f.handler.HandleFIDataNotification, "/fi-data-notification", body, f.sign(t, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	b := f.batches.bySession["session-9"]
	if b == nil {
		t.Fatal("batch was not persisted")
	}
	if b.Status != batch.StatusReady {
		t.Errorf("batch status = %v, want READY for later retry", b.Status)
	}
	if len(f.events.events) != 0 {
		t.Errorf("unresolved consent must not produce audit events, got %+v", f.events.events)
	}
}
