package ingestion

import (
	"testing"
	"time"
)

func TestHoldingKeyDeterministic(t *testing.T) {
	asOf := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	details := map[string]any{"schemeName": "Bluechip Growth", "units": 41.5, "nav": 812.4}

	k1, err := HoldingKey("acc-1", "INF123456789", asOf, details)
	if err != nil {
		t.Fatalf("HoldingKey() error = %v", err)
	}
	k2, err := HoldingKey("acc-1", "INF123456789", asOf, details)
	if err != nil {
		t.Fatalf("HoldingKey() error = %v", err)
	}
	if k1 != k2 {
		t.Errorf("same inputs produced different keys: %s vs %s", k1, k2)
	}
	if len(k1) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(k1))
	}
}

func TestHoldingKeyDayTruncation(t *testing.T) {
	details := map[string]any{"units": 10.0}
	morning := time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC)
	nextDay := time.Date(2026, 3, 16, 1, 0, 0, 0, time.UTC)

	k1, _ := HoldingKey("acc-1", "ID", morning, details)
	k2, _ := HoldingKey("acc-1", "ID", evening, details)
	k3, _ := HoldingKey("acc-1", "ID", nextDay, details)

	if k1 != k2 {
		t.Error("same calendar day should produce the same key regardless of time")
	}
	if k1 == k3 {
		t.Error("different days should produce different keys")
	}
}

func TestHoldingKeyMissingInstrumentID(t *testing.T) {
	asOf := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	details := map[string]any{"units": 10.0}

	missing1, _ := HoldingKey("acc-1", "", asOf, details)
	missing2, _ := HoldingKey("acc-1", "", asOf, details)
	real1, _ := HoldingKey("acc-1", "X", asOf, details)

	if missing1 != missing2 {
		t.Error("two records with missing instrument id should dedupe against each other")
	}
	if missing1 == real1 {
		t.Error("missing instrument id must not collide with a real identifier")
	}
}

func TestHoldingKeyFieldOrderIndependent(t *testing.T) {
	asOf := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	// Same logical record; Go map iteration order differs run to run, so
	// this exercises the canonical serialization.
	a := map[string]any{"units": 10.0, "nav": 42.5, "schemeName": "X"}
	b := map[string]any{"schemeName": "X", "nav": 42.5, "units": 10.0}

	ka, _ := HoldingKey("acc-1", "ID", asOf, a)
	kb, _ := HoldingKey("acc-1", "ID", asOf, b)
	if ka != kb {
		t.Error("field order must not affect the key")
	}
}

func TestHoldingKeyDifferentAccounts(t *testing.T) {
	asOf := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	details := map[string]any{"units": 10.0}

	k1, _ := HoldingKey("acc-1", "ID", asOf, details)
	k2, _ := HoldingKey("acc-2", "ID", asOf, details)
	if k1 == k2 {
		t.Error("identical records in different accounts must not collide")
	}
}

func TestTransactionKeyAmountNormalization(t *testing.T) {
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	details := map[string]any{"narration": "NEFT"}

	k1, _ := TransactionKey("acc-1", "txn-9", date, 1500, details)
	k2, _ := TransactionKey("acc-1", "txn-9", date, 1500.00, details)
	k3, _ := TransactionKey("acc-1", "txn-9", date, 1500.01, details)

	if k1 != k2 {
		t.Error("1500 and 1500.00 should produce the same key")
	}
	if k1 == k3 {
		t.Error("different amounts must produce different keys")
	}
}

func TestTransactionKeyMissingTxnID(t *testing.T) {
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	missing, _ := TransactionKey("acc-1", "", date, 100, map[string]any{"a": 1.0})
	real1, _ := TransactionKey("acc-1", "t1", date, 100, map[string]any{"a": 1.0})
	if missing == real1 {
		t.Error("missing transaction id must not collide with a real one")
	}

	// Two distinct id-less transactions on the same day with different
	// bodies still get distinct keys through the canonical body.
	m1, _ := TransactionKey("acc-1", "", date, 100, map[string]any{"narration": "ATM"})
	m2, _ := TransactionKey("acc-1", "", date, 100, map[string]any{"narration": "POS"})
	if m1 == m2 {
		t.Error("id-less transactions with different bodies must not collide")
	}
}
