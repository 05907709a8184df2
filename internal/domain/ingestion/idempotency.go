package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Placeholder tokens for identifier fields the institution did not send.
// A missing identifier and a literal empty-string identifier must hash to
// the same key, but a missing identifier and any real identifier must not.
const (
	noInstrumentID  = "NO_INSTRUMENT_ID"
	noTransactionID = "NO_TRANSACTION_ID"
)

// HoldingKey derives the dedup key for one holding snapshot. Inputs are the
// stable provider account id (never the internal row id), the instrument
// identifier, the snapshot date truncated to the day, and the canonical form
// of the record body. The same financial fact always produces the same key,
// across webhook redeliveries and across restarts.
func HoldingKey(providerAccountID, instrumentID string, asOf time.Time, details map[string]any) (string, error) {
	body, err := canonicalJSON(details)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize holding details: %w", err)
	}
	return hashKey(
		providerAccountID,
		orPlaceholder(instrumentID, noInstrumentID),
		asOf.UTC().Format("2006-01-02"),
		body,
	), nil
}

// TransactionKey derives the dedup key for one transaction. The amount is
// fixed to two decimal places so that 100, 100.0 and "100.00" agree.
func TransactionKey(providerAccountID, txnID string, txnDate time.Time, amount float64, details map[string]any) (string, error) {
	body, err := canonicalJSON(details)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize transaction details: %w", err)
	}
	return hashKey(
		providerAccountID,
		orPlaceholder(txnID, noTransactionID),
		txnDate.UTC().Format("2006-01-02"),
		strconv.FormatFloat(amount, 'f', 2, 64),
		body,
	), nil
}

func hashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func orPlaceholder(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}

// canonicalJSON renders the record body deterministically. encoding/json
// sorts map keys, so two payloads with the same fields in different order
// serialize identically.
func canonicalJSON(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
