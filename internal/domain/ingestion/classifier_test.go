package ingestion

import (
	"testing"

	"nivesh/internal/domain/portfolio"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		explicitTag string
		accountType string
		fipID       string
		want        portfolio.FIType
	}{
		{
			name:        "explicit tag wins over everything",
			explicitTag: "EQUITIES",
			accountType: "savings",
			fipID:       "hdfc-bank",
			want:        portfolio.FITypeEquities,
		},
		{
			name:        "explicit tag is case insensitive",
			explicitTag: "mutual_funds",
			want:        portfolio.FITypeMutualFunds,
		},
		{
			name:        "unknown explicit tag falls through to account type",
			explicitTag: "CRYPTO",
			accountType: "Demat Account",
			want:        portfolio.FITypeEquities,
		},
		{
			name:        "term deposit beats generic deposit keyword",
			accountType: "Term Deposit",
			want:        portfolio.FITypeTermDeposit,
		},
		{
			name:        "fixed deposit",
			accountType: "Fixed Deposit",
			want:        portfolio.FITypeTermDeposit,
		},
		{
			name:        "recurring deposit",
			accountType: "Recurring Deposit",
			want:        portfolio.FITypeRecurringDeposit,
		},
		{
			name:        "savings account",
			accountType: "SAVINGS",
			want:        portfolio.FITypeDeposit,
		},
		{
			name:        "mutual fund folio",
			accountType: "Folio",
			want:        portfolio.FITypeMutualFunds,
		},
		{
			name:        "insurance policy",
			accountType: "ULIP Policy",
			want:        portfolio.FITypeInsurance,
		},
		{
			name:  "institution id consulted when account says nothing",
			fipID: "kfin-mf-central",
			want:  portfolio.FITypeMutualFunds,
		},
		{
			name:  "insurer institution",
			fipID: "acme-life",
			want:  portfolio.FITypeInsurance,
		},
		{
			name:        "account type beats institution id",
			accountType: "Demat",
			fipID:       "acme-life",
			want:        portfolio.FITypeEquities,
		},
		{
			name: "nothing matches defaults to deposit",
			want: portfolio.FITypeDeposit,
		},
		{
			name:        "unrecognized vocabulary defaults to deposit",
			accountType: "wallet",
			fipID:       "xyz",
			want:        portfolio.FITypeDeposit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.explicitTag, tt.accountType, tt.fipID)
			if got != tt.want {
				t.Errorf("Classify(%q, %q, %q) = %v, want %v",
					tt.explicitTag, tt.accountType, tt.fipID, got, tt.want)
			}
		})
	}
}
