// Package aggregator is the HTTP adapter to the Account Aggregator provider.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nivesh/internal/domain/consent"
	"nivesh/internal/shared/config"
)

const (
	consentsPath = "/consents"
	fiDataPath   = "/fi-data"

	dateLayout = time.RFC3339
)

// Client handles communication with the Account Aggregator provider API.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	approvalBaseURL string
	tokens          *tokenSource
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a provider client from configuration. Outbound calls are
// traced through the shared OTel transport.
func NewClient(cfg config.AAConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return &Client{
		httpClient:      httpClient,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		approvalBaseURL: strings.TrimRight(cfg.ApprovalBaseURL, "/"),
		tokens:          newTokenSource(httpClient, cfg.BaseURL, cfg.ClientID, cfg.ClientSecret),
	}
}

// consentRequest is the provider wire format for consent creation.
type consentRequest struct {
	CustomerHandle string    `json:"customerHandle"`
	FITypes        []string  `json:"fiTypes"`
	Purpose        purpose   `json:"purpose"`
	DataRange      dateRange `json:"dataRange"`
	Frequency      string    `json:"frequency,omitempty"`
	ConsentStart   string    `json:"consentStart"`
	ConsentExpiry  string    `json:"consentExpiry"`
	FetchType      string    `json:"fetchType"`
}

type purpose struct {
	Code     string `json:"code"`
	Text     string `json:"text"`
	Category string `json:"category"`
}

type dateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// consentResponse is the provider wire format for consent reads and creates.
type consentResponse struct {
	ConsentHandle string `json:"consentHandle"`
	ConsentID     string `json:"consentId"`
	Status        string `json:"status"`
	ConsentStart  string `json:"consentStart"`
	ConsentExpiry string `json:"consentExpiry"`
	ApprovalURL   string `json:"url"`
}

// ErrorResponse is the provider error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateConsent registers a consent request with the provider and returns the
// handle the user approves against.
func (c *Client) CreateConsent(ctx context.Context, req consent.ProviderRequest) (*consent.ProviderConsent, error) {
	tpl := templateForPurpose(req.Purpose)
	fiTypes := make([]string, len(req.FITypes))
	for i, t := range req.FITypes {
		fiTypes[i] = string(t)
	}

	wire := consentRequest{
		CustomerHandle: req.CustomerHandle,
		FITypes:        fiTypes,
		Purpose:        purpose{Code: tpl.Code, Text: tpl.Text, Category: tpl.Category},
		DataRange:      dateRange{From: req.DataRangeFrom.Format(dateLayout), To: req.DataRangeTo.Format(dateLayout)},
		Frequency:      req.Frequency,
		ConsentStart:   req.StartsAt.Format(dateLayout),
		ConsentExpiry:  req.ExpiresAt.Format(dateLayout),
		FetchType:      tpl.FetchType,
	}

	var resp consentResponse
	if err := c.do(ctx, http.MethodPost, consentsPath, wire, &resp); err != nil {
		return nil, err
	}
	if resp.ConsentHandle == "" {
		return nil, fmt.Errorf("%w: consent response carries no handle", consent.ErrProviderProtocol)
	}
	return c.toProviderConsent(resp)
}

// GetConsentStatus reads the current consent state by handle.
func (c *Client) GetConsentStatus(ctx context.Context, handle string) (*consent.ProviderConsent, error) {
	var resp consentResponse
	if err := c.do(ctx, http.MethodGet, consentsPath+"/"+handle, nil, &resp); err != nil {
		return nil, err
	}
	if resp.ConsentHandle == "" {
		resp.ConsentHandle = handle
	}
	return c.toProviderConsent(resp)
}

// RevokeConsent revokes an approved consent by its provider consent id.
func (c *Client) RevokeConsent(ctx context.Context, providerID string) error {
	return c.do(ctx, http.MethodPost, consentsPath+"/"+providerID+"/revoke", nil, nil)
}

// FetchFIData pulls the decrypted FI payload for a data session.
func (c *Client) FetchFIData(ctx context.Context, sessionID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, fiDataPath+"/"+sessionID, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) toProviderConsent(resp consentResponse) (*consent.ProviderConsent, error) {
	status, ok := consent.ParseStatus(resp.Status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown consent status %q", consent.ErrProviderProtocol, resp.Status)
	}

	pc := &consent.ProviderConsent{
		Handle:     resp.ConsentHandle,
		ProviderID: resp.ConsentID,
		Status:     status,
	}
	if resp.ConsentStart != "" {
		t, err := time.Parse(dateLayout, resp.ConsentStart)
		if err != nil {
			return nil, fmt.Errorf("%w: bad consentStart %q", consent.ErrProviderProtocol, resp.ConsentStart)
		}
		pc.StartsAt = t
	}
	if resp.ConsentExpiry != "" {
		t, err := time.Parse(dateLayout, resp.ConsentExpiry)
		if err != nil {
			return nil, fmt.Errorf("%w: bad consentExpiry %q", consent.ErrProviderProtocol, resp.ConsentExpiry)
		}
		pc.ExpiresAt = t
	}
	pc.ApprovalURL = resp.ApprovalURL
	if pc.ApprovalURL == "" && c.approvalBaseURL != "" {
		pc.ApprovalURL = c.approvalBaseURL + "/" + pc.Handle
	}
	return pc, nil
}

// do executes one authenticated request and maps provider failures onto the
// domain sentinel errors: 5xx and transport failures are ErrProviderUnavailable
// (retryable), 404 is ErrConsentNotFound, anything else unexpected is
// ErrProviderProtocol.
func (c *Client) do(ctx context.Context, method, path string, reqBody, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", consent.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", consent.ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", consent.ErrProviderUnavailable, resp.StatusCode, errorMessage(respBody))
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", consent.ErrConsentNotFound, errorMessage(respBody))
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: status %d: %s", consent.ErrProviderProtocol, resp.StatusCode, errorMessage(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: failed to unmarshal response: %v", consent.ErrProviderProtocol, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var e ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && (e.Error != "" || e.Message != "") {
		return strings.TrimSpace(e.Error + " " + e.Message)
	}
	const max = 256
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
