package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"nivesh/internal/domain/consent"
)

// Refresh this long before the token actually expires to absorb clock skew
// and in-flight request time.
const tokenExpirySkew = 30 * time.Second

// tokenSource caches the provider OAuth token. Concurrent refreshes collapse
// into a single upstream call via singleflight.
type tokenSource struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string

	group singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenSource(httpClient *http.Client, baseURL, clientID, clientSecret string) *tokenSource {
	return &tokenSource{
		httpClient:   httpClient,
		tokenURL:     strings.TrimRight(baseURL, "/") + "/token",
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// Token returns a valid bearer token, refreshing if the cached one is
// expired or about to expire.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	if ts.token != "" && time.Now().Before(ts.expiresAt.Add(-tokenExpirySkew)) {
		token := ts.token
		ts.mu.Unlock()
		return token, nil
	}
	ts.mu.Unlock()

	v, err, _ := ts.group.Do("token", func() (any, error) {
		return ts.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (ts *tokenSource) refresh(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {ts.clientID},
		"client_secret": {ts.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request failed: %v", consent.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read token response: %v", consent.ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned status %d", consent.ErrProviderUnavailable, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: failed to unmarshal token response: %v", consent.ErrProviderProtocol, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: token response carries no access token", consent.ErrProviderProtocol)
	}

	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	ts.mu.Lock()
	ts.token = tr.AccessToken
	ts.expiresAt = time.Now().Add(ttl)
	ts.mu.Unlock()

	return tr.AccessToken, nil
}
