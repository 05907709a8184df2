package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"nivesh/internal/domain/consent"
	"nivesh/internal/domain/portfolio"
	"nivesh/internal/shared/middleware"
)

type ConsentHandler struct {
	svc *consent.Service
}

func NewConsentHandler(svc *consent.Service) *ConsentHandler {
	return &ConsentHandler{svc: svc}
}

type CreateConsentRequest struct {
	FITypes       []string  `json:"fiTypes"`
	Purpose       string    `json:"purpose"`
	DataRangeFrom time.Time `json:"dataRangeFrom"`
	DataRangeTo   time.Time `json:"dataRangeTo"`
	Frequency     string    `json:"frequency"`
}

// HandleConsents serves POST (initiate) and GET (list) on /api/consents.
func (h *ConsentHandler) HandleConsents(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.handleCreate(w, r, userID)
	case http.MethodGet:
		h.handleList(w, r, userID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ConsentHandler) handleCreate(w http.ResponseWriter, r *http.Request, userID int64) {
	var req CreateConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	fiTypes := make([]portfolio.FIType, 0, len(req.FITypes))
	for _, t := range req.FITypes {
		parsed, ok := portfolio.ParseFIType(t)
		if !ok {
			http.Error(w, "Unknown FI type: "+t, http.StatusBadRequest)
			return
		}
		fiTypes = append(fiTypes, parsed)
	}

	c, err := h.svc.InitiateConsent(r.Context(), consent.CreateParams{
		UserID:        userID,
		FITypes:       fiTypes,
		Purpose:       req.Purpose,
		DataRangeFrom: req.DataRangeFrom,
		DataRangeTo:   req.DataRangeTo,
		Frequency:     req.Frequency,
	})
	if err != nil {
		writeConsentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(c)
}

func (h *ConsentHandler) handleList(w http.ResponseWriter, r *http.Request, userID int64) {
	consents, err := h.svc.ListByUserID(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing consents for user %d: %v", userID, err)
		http.Error(w, "Failed to list consents", http.StatusInternalServerError)
		return
	}
	if consents == nil {
		consents = []*consent.Consent{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(consents)
}

// HandleConsentByHandle serves GET /api/consents/{handle}.
func (h *ConsentHandler) HandleConsentByHandle(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c, err := h.svc.GetByHandle(r.Context(), userID, r.PathValue("handle"))
	if err != nil {
		writeConsentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c)
}

// HandleRevoke serves POST /api/consents/{handle}/revoke.
func (h *ConsentHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c, err := h.svc.RevokeConsent(r.Context(), userID, r.PathValue("handle"))
	if err != nil {
		writeConsentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c)
}

// HandlePoll serves POST /api/consents/{handle}/poll: an on-demand status
// check against the provider for when a webhook seems to have gone missing.
func (h *ConsentHandler) HandlePoll(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	handle := r.PathValue("handle")
	// Ownership check before touching the provider.
	if _, err := h.svc.GetByHandle(r.Context(), userID, handle); err != nil {
		writeConsentError(w, err)
		return
	}

	c, err := h.svc.PollStatus(r.Context(), handle)
	if err != nil {
		writeConsentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c)
}

// HandleEvents serves GET /api/consents/{handle}/events: the audit trail.
func (h *ConsentHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events, err := h.svc.ListEvents(r.Context(), userID, r.PathValue("handle"))
	if err != nil {
		writeConsentError(w, err)
		return
	}
	if events == nil {
		events = []*consent.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

func writeConsentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, consent.ErrConsentNotFound):
		http.Error(w, "Consent not found", http.StatusNotFound)
	case errors.Is(err, consent.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, consent.ErrCustomerNotFound):
		http.Error(w, "No phone number registered for this account", http.StatusUnprocessableEntity)
	case errors.Is(err, consent.ErrProviderUnavailable):
		http.Error(w, "Account Aggregator provider is unavailable, try again later", http.StatusBadGateway)
	case errors.Is(err, consent.ErrProviderProtocol):
		log.Printf("Provider protocol error: %v", err)
		http.Error(w, "Unexpected provider response", http.StatusBadGateway)
	default:
		log.Printf("Consent operation failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
