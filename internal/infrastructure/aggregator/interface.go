package aggregator

import (
	"context"
	"encoding/json"

	"nivesh/internal/domain/consent"
)

// ClientInterface is the full surface the platform needs from the Account
// Aggregator provider: consent lifecycle plus FI data fetch by session.
// Implemented by the real HTTP client and by MockClient.
type ClientInterface interface {
	consent.ProviderClient

	// FetchFIData pulls the decrypted FI payload for a completed data
	// session. Used when the data-ready notification does not embed the
	// payload inline.
	FetchFIData(ctx context.Context, sessionID string) (json.RawMessage, error)
}
