package ingestion

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// rawAccount is one provider-shaped account object with its nested records,
// kept as generic maps because field naming and nesting vary per institution
// category. Normalization happens against the mapping tables, not here.
type rawAccount struct {
	fipID        string
	fields       map[string]any
	holdings     []map[string]any
	transactions []map[string]any
}

// Envelope key candidates, in lookup order. Adding support for a new
// provider shape means adding a key here, not new branching code.
var (
	fiBlockKeys        = []string{"fiData", "FIData", "fi", "data"}
	fipIDKeys          = []string{"fipId", "fipID", "fipName", "fip"}
	accountListKeys    = []string{"accounts", "Accounts", "linkedAccounts"}
	holdingListKeys    = []string{"holdings", "Holdings", "investments", "schemes"}
	txnListKeys        = []string{"transactions", "Transactions", "txns"}
	accountFITypeKeys  = []string{"fiType", "FIType", "category"}
	accountTypeKeys    = []string{"accType", "accountType", "type"}
	accountIDKeys      = []string{"linkedAccRef", "accountId", "accountID", "accRefNumber", "id"}
	maskedNumberKeys   = []string{"maskedAccNumber", "maskedAccountNumber", "maskedNumber"}
	accountStatusKeys  = []string{"status", "accountStatus"}
	accountProfileKeys = []string{"profile", "Profile"}
	accountSummaryKeys = []string{"summary", "Summary"}
	asOfDateKeys       = []string{"asOfDate", "asOf", "timestamp", "valueDate"}
)

// parsePayload decodes a provider FI-data payload into raw accounts. It
// accepts both the FIP-block envelope ({"fiData":[{"fipId":..,"accounts":[..]}]})
// and a bare account list ({"accounts":[..]}).
func parsePayload(raw []byte) ([]rawAccount, error) {
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("failed to decode FI payload: %w", err)
	}

	var out []rawAccount

	if blocks, ok := pickSlice(top, fiBlockKeys...); ok {
		for _, b := range blocks {
			block, ok := b.(map[string]any)
			if !ok {
				continue
			}
			fipID, _ := pickString(block, fipIDKeys...)
			accounts, _ := pickSlice(block, accountListKeys...)
			for _, a := range accounts {
				if m, ok := a.(map[string]any); ok {
					out = append(out, newRawAccount(fipID, m))
				}
			}
		}
		return out, nil
	}

	if accounts, ok := pickSlice(top, accountListKeys...); ok {
		fipID, _ := pickString(top, fipIDKeys...)
		for _, a := range accounts {
			if m, ok := a.(map[string]any); ok {
				out = append(out, newRawAccount(fipID, m))
			}
		}
		return out, nil
	}

	return nil, fmt.Errorf("FI payload carries no recognizable account data")
}

// hasFIData reports whether a data-ready notification payload embeds the FI
// data inline (some providers push it; others require a fetch by session id).
func hasFIData(raw []byte) bool {
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		return false
	}
	if _, ok := pickSlice(top, fiBlockKeys...); ok {
		return true
	}
	_, ok := pickSlice(top, accountListKeys...)
	return ok
}

func newRawAccount(fipID string, m map[string]any) rawAccount {
	acc := rawAccount{fipID: fipID, fields: m}
	if hs, ok := pickSlice(m, holdingListKeys...); ok {
		for _, h := range hs {
			if hm, ok := h.(map[string]any); ok {
				acc.holdings = append(acc.holdings, hm)
			}
		}
	}
	if ts, ok := pickSlice(m, txnListKeys...); ok {
		for _, t := range ts {
			if tm, ok := t.(map[string]any); ok {
				acc.transactions = append(acc.transactions, tm)
			}
		}
	}
	if acc.fipID == "" {
		acc.fipID, _ = pickString(m, fipIDKeys...)
	}
	return acc
}

// pickString returns the first present, non-empty string value among keys.
func pickString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func pickSlice(m map[string]any, keys ...string) ([]any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.([]any); ok {
				return s, true
			}
		}
	}
	return nil, false
}

func pickMap(m map[string]any, keys ...string) (map[string]any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if mm, ok := v.(map[string]any); ok {
				return mm, true
			}
		}
	}
	return nil, false
}

// pickNumber reads a numeric field that institutions may send as a number,
// a stringified number, or omit entirely. Missing fields default to zero;
// a present but non-numeric value is an error so the record can be reported
// as a parse failure instead of silently ingesting garbage.
func pickNumber(m map[string]any, keys ...string) (float64, error) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return 0, fmt.Errorf("%w: field %q: %v", ErrRecordParse, k, err)
			}
			return f, nil
		case string:
			if n == "" {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return 0, fmt.Errorf("%w: field %q is not numeric: %q", ErrRecordParse, k, n)
			}
			return f, nil
		default:
			return 0, fmt.Errorf("%w: field %q has unsupported type %T", ErrRecordParse, k, v)
		}
	}
	return 0, nil
}

// Accepted date layouts across institution payloads.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// pickDate parses a date field, falling back to the supplied default when
// the field is absent. A present but unparseable value is an error.
func pickDate(m map[string]any, fallback time.Time, keys ...string) (time.Time, error) {
	s, ok := pickString(m, keys...)
	if !ok {
		return fallback, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", ErrRecordParse, s)
}
