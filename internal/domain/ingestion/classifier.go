package ingestion

import (
	"strings"

	"nivesh/internal/domain/portfolio"
)

type keywordRule struct {
	keyword string
	fiType  portfolio.FIType
}

// Account-type keyword rules, checked in order; first match wins. More
// specific phrases come before the generic deposit words so that
// "term deposit" lands on TERM_DEPOSIT, not DEPOSIT.
var accountTypeRules = []keywordRule{
	{"mutual", portfolio.FITypeMutualFunds},
	{"folio", portfolio.FITypeMutualFunds},
	{"sip", portfolio.FITypeMutualFunds},
	{"demat", portfolio.FITypeEquities},
	{"equity", portfolio.FITypeEquities},
	{"equities", portfolio.FITypeEquities},
	{"broking", portfolio.FITypeEquities},
	{"insurance", portfolio.FITypeInsurance},
	{"policy", portfolio.FITypeInsurance},
	{"ulip", portfolio.FITypeInsurance},
	{"recurring", portfolio.FITypeRecurringDeposit},
	{"term deposit", portfolio.FITypeTermDeposit},
	{"fixed deposit", portfolio.FITypeTermDeposit},
	{"fixed", portfolio.FITypeTermDeposit},
	{"saving", portfolio.FITypeDeposit},
	{"current", portfolio.FITypeDeposit},
	{"deposit", portfolio.FITypeDeposit},
}

// Institution-id keyword rules, the weakest signal, consulted only when the
// account itself gave nothing away.
var fipIDRules = []keywordRule{
	{"mf", portfolio.FITypeMutualFunds},
	{"fund", portfolio.FITypeMutualFunds},
	{"amc", portfolio.FITypeMutualFunds},
	{"broker", portfolio.FITypeEquities},
	{"depository", portfolio.FITypeEquities},
	{"securities", portfolio.FITypeEquities},
	{"insur", portfolio.FITypeInsurance},
	{"life", portfolio.FITypeInsurance},
	{"bank", portfolio.FITypeDeposit},
}

// Classify resolves the FI category of one account. Signals are tried
// strongest first: an explicit category tag, then account-type keywords,
// then institution-id keywords. An account that matches nothing is treated
// as a plain deposit account rather than rejected, so an unrecognized
// institution still ingests with generic field mapping.
func Classify(explicitTag, accountType, fipID string) portfolio.FIType {
	if t, ok := portfolio.ParseFIType(explicitTag); ok {
		return t
	}
	if t, ok := matchKeywords(accountType, accountTypeRules); ok {
		return t
	}
	if t, ok := matchKeywords(fipID, fipIDRules); ok {
		return t
	}
	return portfolio.FITypeDeposit
}

func matchKeywords(s string, rules []keywordRule) (portfolio.FIType, bool) {
	s = strings.ToLower(s)
	if s == "" {
		return "", false
	}
	for _, r := range rules {
		if strings.Contains(s, r.keyword) {
			return r.fiType, true
		}
	}
	return "", false
}
