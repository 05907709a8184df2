package ingestion

import (
	"encoding/json"
	"time"

	"nivesh/internal/domain/portfolio"
)

// holdingFields names, per category, the candidate payload keys for each
// normalized holding field. Institutions within a category broadly agree on
// vocabulary but not spelling, so every field is an ordered candidate list.
type holdingFields struct {
	InstrumentName []string
	InstrumentID   []string
	Units          []string
	AveragePrice   []string
	CurrentValue   []string
	InvestedValue  []string
}

var genericHoldingFields = holdingFields{
	InstrumentName: []string{"instrumentName", "name", "description"},
	InstrumentID:   []string{"instrumentId", "isin", "id"},
	Units:          []string{"units", "quantity", "balance"},
	AveragePrice:   []string{"averagePrice", "price", "rate"},
	CurrentValue:   []string{"currentValue", "marketValue", "value"},
	InvestedValue:  []string{"investedValue", "costValue", "principal"},
}

var holdingFieldsByType = map[portfolio.FIType]holdingFields{
	portfolio.FITypeMutualFunds: {
		InstrumentName: []string{"schemeName", "scheme", "name"},
		InstrumentID:   []string{"isin", "schemeCode", "amfiCode", "folioNo"},
		Units:          []string{"closingUnits", "units", "balanceUnits"},
		AveragePrice:   []string{"nav", "navValue", "purchaseNav"},
		CurrentValue:   []string{"currentValue", "marketValue"},
		InvestedValue:  []string{"investedValue", "costValue", "purchaseValue"},
	},
	portfolio.FITypeEquities: {
		InstrumentName: []string{"issuerName", "companyName", "symbol", "name"},
		InstrumentID:   []string{"isin", "symbol"},
		Units:          []string{"units", "quantity", "shares"},
		AveragePrice:   []string{"averagePrice", "avgPrice", "costPrice"},
		CurrentValue:   []string{"currentValue", "marketValue", "lastTradedValue"},
		InvestedValue:  []string{"investedValue", "costValue"},
	},
	portfolio.FITypeInsurance: {
		InstrumentName: []string{"policyName", "planName", "name"},
		InstrumentID:   []string{"policyNumber", "policyNo", "policyId"},
		Units:          []string{"unitsAssigned", "units"},
		AveragePrice:   []string{"premiumAmount", "premium"},
		CurrentValue:   []string{"currentValue", "surrenderValue", "fundValue"},
		InvestedValue:  []string{"sumAssured", "totalPremiumPaid"},
	},
}

type transactionFields struct {
	TxnID     []string
	TxnType   []string
	TxnDate   []string
	Amount    []string
	Narration []string
	Reference []string
}

var genericTransactionFields = transactionFields{
	TxnID:     []string{"txnId", "transactionId", "id"},
	TxnType:   []string{"type", "txnType", "transactionType"},
	TxnDate:   []string{"transactionDateTime", "transactionDate", "txnDate", "valueDate"},
	Amount:    []string{"amount", "txnAmount", "value"},
	Narration: []string{"narration", "description", "remarks"},
	Reference: []string{"reference", "txnReference", "chequeNo", "utr"},
}

var transactionFieldsByType = map[portfolio.FIType]transactionFields{
	portfolio.FITypeMutualFunds: {
		TxnID:     []string{"txnId", "transactionId", "id"},
		TxnType:   []string{"type", "txnType", "orderType"},
		TxnDate:   []string{"transactionDate", "transactionDateTime", "navDate", "txnDate"},
		Amount:    []string{"amount", "txnAmount"},
		Narration: []string{"narration", "schemeName", "description"},
		Reference: []string{"reference", "folioNo"},
	},
	portfolio.FITypeEquities: {
		TxnID:     []string{"txnId", "transactionId", "orderId", "id"},
		TxnType:   []string{"type", "txnType", "orderType"},
		TxnDate:   []string{"transactionDateTime", "transactionDate", "tradeDate", "txnDate"},
		Amount:    []string{"amount", "totalCharge", "tradeValue"},
		Narration: []string{"narration", "companyName", "symbol", "description"},
		Reference: []string{"reference", "exchange"},
	},
	portfolio.FITypeInsurance: {
		TxnID:     []string{"txnId", "transactionId", "receiptNo", "id"},
		TxnType:   []string{"type", "txnType"},
		TxnDate:   []string{"transactionDate", "transactionDateTime", "paymentDate", "txnDate"},
		Amount:    []string{"amount", "premiumAmount"},
		Narration: []string{"narration", "description"},
		Reference: []string{"reference", "policyNumber"},
	},
}

func holdingFieldsFor(t portfolio.FIType) holdingFields {
	if f, ok := holdingFieldsByType[t]; ok {
		return f
	}
	return genericHoldingFields
}

func transactionFieldsFor(t portfolio.FIType) transactionFields {
	if f, ok := transactionFieldsByType[t]; ok {
		return f
	}
	return genericTransactionFields
}

// mapHolding normalizes one raw holding record. providerAccountID seeds the
// idempotency key; fallbackAsOf is used when the record carries no date of
// its own (typically the batch creation time, which is stable across
// redeliveries of the same session).
func mapHolding(fiType portfolio.FIType, providerAccountID string, rec map[string]any, fallbackAsOf time.Time) (*portfolio.Holding, error) {
	fields := holdingFieldsFor(fiType)

	units, err := pickNumber(rec, fields.Units...)
	if err != nil {
		return nil, err
	}
	avgPrice, err := pickNumber(rec, fields.AveragePrice...)
	if err != nil {
		return nil, err
	}
	currentValue, err := pickNumber(rec, fields.CurrentValue...)
	if err != nil {
		return nil, err
	}
	investedValue, err := pickNumber(rec, fields.InvestedValue...)
	if err != nil {
		return nil, err
	}
	asOf, err := pickDate(rec, fallbackAsOf, asOfDateKeys...)
	if err != nil {
		return nil, err
	}

	name, _ := pickString(rec, fields.InstrumentName...)
	instrumentID, _ := pickString(rec, fields.InstrumentID...)

	details, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	key, err := HoldingKey(providerAccountID, instrumentID, asOf, rec)
	if err != nil {
		return nil, err
	}

	return &portfolio.Holding{
		InstrumentName: name,
		InstrumentID:   instrumentID,
		Units:          units,
		AveragePrice:   avgPrice,
		CurrentValue:   currentValue,
		InvestedValue:  investedValue,
		Details:        details,
		AsOfDate:       asOf,
		IdempotencyKey: key,
	}, nil
}

// mapTransaction normalizes one raw transaction record.
func mapTransaction(fiType portfolio.FIType, providerAccountID string, rec map[string]any, fallbackDate time.Time) (*portfolio.Transaction, error) {
	fields := transactionFieldsFor(fiType)

	amount, err := pickNumber(rec, fields.Amount...)
	if err != nil {
		return nil, err
	}
	txnDate, err := pickDate(rec, fallbackDate, fields.TxnDate...)
	if err != nil {
		return nil, err
	}

	txnID, _ := pickString(rec, fields.TxnID...)
	txnType, _ := pickString(rec, fields.TxnType...)
	narration, _ := pickString(rec, fields.Narration...)
	reference, _ := pickString(rec, fields.Reference...)

	details, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	key, err := TransactionKey(providerAccountID, txnID, txnDate, amount, rec)
	if err != nil {
		return nil, err
	}

	return &portfolio.Transaction{
		ProviderTxnID:  txnID,
		TxnType:        txnType,
		TxnDate:        txnDate,
		Amount:         amount,
		Narration:      narration,
		Reference:      reference,
		Details:        details,
		IdempotencyKey: key,
	}, nil
}

// Term and recurring deposits usually arrive as a bare account summary with
// no holding list. synthesizeDepositHolding builds the single position that
// represents the deposit itself so these accounts still show up in the
// portfolio.
var depositPrincipalKeys = []string{"principalAmount", "principal", "depositAmount", "currentBalance"}
var depositMaturityKeys = []string{"maturityAmount", "currentValue", "currentBalance"}

func synthesizeDepositHolding(acc rawAccount, providerAccountID, accountType string, fallbackAsOf time.Time) (*portfolio.Holding, error) {
	source := acc.fields
	if summary, ok := pickMap(acc.fields, accountSummaryKeys...); ok {
		source = summary
	}

	principal, err := pickNumber(source, depositPrincipalKeys...)
	if err != nil {
		return nil, err
	}
	maturity, err := pickNumber(source, depositMaturityKeys...)
	if err != nil {
		return nil, err
	}
	asOf, err := pickDate(source, fallbackAsOf, asOfDateKeys...)
	if err != nil {
		return nil, err
	}

	name := accountType
	if name == "" {
		name = "Term Deposit"
	}

	details, err := json.Marshal(source)
	if err != nil {
		return nil, err
	}
	key, err := HoldingKey(providerAccountID, providerAccountID, asOf, source)
	if err != nil {
		return nil, err
	}

	return &portfolio.Holding{
		InstrumentName: name,
		InstrumentID:   providerAccountID,
		Units:          1,
		CurrentValue:   maturity,
		InvestedValue:  principal,
		Details:        details,
		AsOfDate:       asOf,
		IdempotencyKey: key,
	}, nil
}
