package chunker

import (
	"strings"

	"loan-rag/internal/models"
)

// Rule maps any of its lower-case keywords to a label.
type Rule struct {
	Keywords []string
	Label    string
}

// DefaultRules is evaluated in order; the first rule with a matching keyword wins.
var DefaultRules = []Rule{
	{Keywords: []string{"home loan", "housing loan"}, Label: "Home Loan"},
	{Keywords: []string{"car loan", "vehicle loan"}, Label: "Vehicle Loan"},
	{Keywords: []string{"personal loan"}, Label: "Personal Loan"},
	{Keywords: []string{"education loan"}, Label: "Education Loan"},
	{Keywords: []string{"gold loan"}, Label: "Gold Loan"},
	{Keywords: []string{"agriculture", "kisan"}, Label: "Agriculture Loan"},
	{Keywords: []string{"msme", "business"}, Label: "MSME Loan"},
	{Keywords: []string{"interest rate"}, Label: "Interest Rates"},
}

// Label tags text with the label of the first matching rule, or models.DefaultLabel.
func Label(text string, rules []Rule) string {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Label
			}
		}
	}
	return models.DefaultLabel
}
