package aggregator

// Template is the provider-side consent template for one purpose of use.
// The code values follow the ReBIT purpose code registry.
type Template struct {
	Code      string
	Text      string
	Category  string
	FetchType string
}

var templates = map[string]Template{
	"wealth": {
		Code:      "101",
		Text:      "Wealth management service",
		Category:  "Personal Finance",
		FetchType: "PERIODIC",
	},
	"onetime": {
		Code:      "103",
		Text:      "Aggregated statement",
		Category:  "Personal Finance",
		FetchType: "ONETIME",
	},
	"monitoring": {
		Code:      "102",
		Text:      "Customer spending patterns, budget or other reportings",
		Category:  "Personal Finance",
		FetchType: "PERIODIC",
	},
}

// templateForPurpose resolves the consent template for a requested purpose,
// defaulting to the periodic wealth-management template.
func templateForPurpose(purpose string) Template {
	if t, ok := templates[purpose]; ok {
		return t
	}
	return templates["wealth"]
}
