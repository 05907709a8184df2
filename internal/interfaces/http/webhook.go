package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"nivesh/internal/domain/batch"
	"nivesh/internal/domain/consent"
	"nivesh/internal/domain/ingestion"
	"nivesh/internal/domain/notification"
	"nivesh/internal/infrastructure/jws"
)

// SignatureHeader carries the detached JWS over the raw request body.
const SignatureHeader = "x-jws-signature"

// WebhookHandler receives provider callbacks. Both endpoints are
// unauthenticated at the session level; the detached JWS signature is the
// only trust anchor, so the raw body bytes are read and verified before any
// decoding.
type WebhookHandler struct {
	verifier *jws.Verifier
	consents *consent.Service
	batches  batch.Repository
	ingestor *ingestion.Service
	notifier *notification.Service
}

func NewWebhookHandler(
	verifier *jws.Verifier,
	consents *consent.Service,
	batches batch.Repository,
	ingestor *ingestion.Service,
	notifier *notification.Service,
) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		consents: consents,
		batches:  batches,
		ingestor: ingestor,
		notifier: notifier,
	}
}

type webhookResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Identifier key candidates across provider webhook formats.
var (
	webhookHandleKeys    = []string{"consentHandle", "ConsentHandle", "consent_handle"}
	webhookConsentIDKeys = []string{"consentId", "ConsentId", "consent_id"}
	webhookStatusKeys    = []string{"consentStatus", "status", "Status"}
	webhookSessionKeys   = []string{"sessionId", "SessionId", "session_id", "dataSessionId"}
	webhookFITypeKeys    = []string{"fiType", "FIType"}
	webhookStartKeys     = []string{"consentStart", "ConsentStart", "consent_start"}
	webhookExpiryKeys    = []string{"consentExpiry", "ConsentExpiry", "consent_expiry"}
)

// Providers send the validity window as full timestamps or bare dates.
var webhookTimeFormats = []string{time.RFC3339, "2006-01-02"}

// HandleConsentNotification processes POST /consent-notification.
func (h *WebhookHandler) HandleConsentNotification(w http.ResponseWriter, r *http.Request) {
	body, ok := h.verifiedBody(w, r)
	if !ok {
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeWebhookError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	handle := firstString(payload, webhookHandleKeys...)
	providerID := firstString(payload, webhookConsentIDKeys...)
	rawStatus := firstString(payload, webhookStatusKeys...)

	if handle == "" && providerID == "" {
		writeWebhookError(w, http.StatusBadRequest, "notification carries no consent identifier")
		return
	}
	status, validStatus := consent.ParseStatus(rawStatus)
	if !validStatus {
		writeWebhookError(w, http.StatusBadRequest, "unknown consent status")
		return
	}

	_, err := h.consents.HandleStatusNotification(r.Context(), consent.StatusNotification{
		Handle:     handle,
		ProviderID: providerID,
		Status:     status,
		StartsAt:   firstTime(payload, webhookStartKeys...),
		ExpiresAt:  firstTime(payload, webhookExpiryKeys...),
		Source:     consent.SourceWebhook,
		Raw:        body,
	})
	switch {
	case errors.Is(err, consent.ErrConsentNotFound):
		// Recoverable data lag, already recorded on the audit trail.
		writeWebhookError(w, http.StatusNotFound, "consent not found")
		return
	case errors.Is(err, consent.ErrInvalidInput):
		writeWebhookError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Printf("Failed to apply consent notification for %s: %v", handle, err)
		writeWebhookError(w, http.StatusInternalServerError, "failed to process notification")
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Status: "ok"})
}

// HandleFIDataNotification processes POST /fi-data-notification. The batch is
// persisted before any processing, keyed by session id, so a redelivered
// notification lands on the same row. Ingestion failures after that point are
// recorded on the batch and retried by the scheduler; the provider still gets
// a 200 so it does not redeliver a batch we already hold.
func (h *WebhookHandler) HandleFIDataNotification(w http.ResponseWriter, r *http.Request) {
	body, ok := h.verifiedBody(w, r)
	if !ok {
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeWebhookError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sessionID := firstString(payload, webhookSessionKeys...)
	if sessionID == "" {
		writeWebhookError(w, http.StatusBadRequest, "notification carries no session id")
		return
	}

	b, err := h.batches.UpsertBySession(r.Context(), &batch.Batch{
		SessionID:     sessionID,
		ConsentHandle: firstString(payload, webhookHandleKeys...),
		FIType:        firstString(payload, webhookFITypeKeys...),
		Status:        batch.StatusReady,
		Payload:       body,
	})
	if err != nil {
		log.Printf("Failed to persist batch for session %s: %v", sessionID, err)
		writeWebhookError(w, http.StatusInternalServerError, "failed to persist batch")
		return
	}

	h.consents.RecordDataReady(r.Context(), b.ConsentHandle, body)

	result, err := h.ingestor.ProcessBatch(r.Context(), b)
	switch {
	case errors.Is(err, ingestion.ErrConsentUnresolved):
		// The consent may simply not have landed yet; the retry job picks
		// the batch up once it does.
		log.Printf("Batch %s (session %s) deferred: consent %q not resolved", b.ID, sessionID, b.ConsentHandle)
		writeJSON(w, http.StatusOK, webhookResponse{Status: "accepted", Detail: "batch stored, ingestion deferred"})
		return
	case err != nil:
		log.Printf("Failed to ingest batch %s (session %s): %v", b.ID, sessionID, err)
		writeJSON(w, http.StatusOK, webhookResponse{Status: "accepted", Detail: "batch stored, ingestion failed"})
		return
	}

	if result.Success() && result.HoldingsNew+result.TransactionsNew > 0 {
		h.notifyPortfolioUpdated(r, b.ConsentHandle)
	}

	writeJSON(w, http.StatusOK, webhookResponse{Status: "ok"})
}

// verifiedBody reads the exact raw body bytes and verifies the detached JWS
// over them. Any signature failure is a 401; the payload is never decoded
// before verification passes.
func (h *WebhookHandler) verifiedBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeWebhookError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}

	if err := h.verifier.Verify(r.Header.Get(SignatureHeader), body); err != nil {
		log.Printf("Rejected webhook from %s: %v", r.RemoteAddr, err)
		writeWebhookError(w, http.StatusUnauthorized, "signature verification failed")
		return nil, false
	}
	return body, true
}

func (h *WebhookHandler) notifyPortfolioUpdated(r *http.Request, consentHandle string) {
	if h.notifier == nil || consentHandle == "" {
		return
	}
	c, err := h.consents.Lookup(r.Context(), consentHandle)
	if err != nil {
		return
	}
	err = h.notifier.Notify(r.Context(), c.UserID, notification.CategoryPortfolio,
		"Portfolio updated", "New financial data has been added to your portfolio.",
		map[string]string{"consentHandle": consentHandle})
	if err != nil {
		log.Printf("Failed to store portfolio notification for consent %s: %v", consentHandle, err)
	}
}

// firstTime parses the first candidate key holding a recognizable timestamp.
// Optional fields: an absent or unparsable value is simply not applied.
func firstTime(m map[string]any, keys ...string) *time.Time {
	s := firstString(m, keys...)
	if s == "" {
		return nil
	}
	for _, layout := range webhookTimeFormats {
		if ts, err := time.Parse(layout, s); err == nil {
			return &ts
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func writeWebhookError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, webhookResponse{Status: "error", Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
