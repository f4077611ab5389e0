package billparse

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountRule is a labelled-total pattern. Rules are tried in slice order and
// the first one yielding a plausible amount wins; Priority is the label's
// strength as printed in logs.
type amountRule struct {
	Label    string
	Priority int
	Pattern  *regexp.Regexp
}

// amountRules run against lower-cased text with whitespace runs collapsed.
var amountRules = []amountRule{
	{Label: "total", Priority: 1, Pattern: regexp.MustCompile(`\btotal[:\s]*\$?\s*(\d+[.,]\d{2})`)},
	{Label: "grand total", Priority: 1, Pattern: regexp.MustCompile(`\bgrand\s*total[:\s]*\$?\s*(\d+[.,]\d{2})`)},
	{Label: "amount due", Priority: 1, Pattern: regexp.MustCompile(`\bamount\s*due[:\s]*\$?\s*(\d+[.,]\d{2})`)},
	{Label: "balance", Priority: 2, Pattern: regexp.MustCompile(`\bbalance[:\s]*\$?\s*(\d+[.,]\d{2})`)},
	{Label: "amount", Priority: 3, Pattern: regexp.MustCompile(`\bamount[:\s]*\$?\s*(\d+[.,]\d{2})`)},
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	dollarAmount  = regexp.MustCompile(`\$\s*(\d+[.,]\d{2})`)

	// totals must fall strictly inside (0, maxTotal)
	maxTotal = decimal.NewFromInt(999999)
)

// ExtractAmount finds the most likely bill total. Labelled amounts are tried
// first; failing that, the largest dollar figure anywhere in the text is used.
// The boolean is false when the text holds no plausible amount.
func ExtractAmount(text string) (decimal.Decimal, bool) {
	normalized := strings.ToLower(whitespaceRun.ReplaceAllString(text, " "))

	for _, rule := range amountRules {
		m := rule.Pattern.FindStringSubmatch(normalized)
		if m == nil {
			continue
		}
		amount, ok := parseAmount(m[1])
		if !ok || !between(amount, decimal.Zero, maxTotal) {
			continue
		}
		slog.Debug("Amount found", "label", rule.Label, "priority", rule.Priority, "amount", amount.StringFixed(2))
		return amount, true
	}

	var (
		largest decimal.Decimal
		found   bool
	)
	for _, m := range dollarAmount.FindAllStringSubmatch(text, -1) {
		amount, ok := parseAmount(m[1])
		if !ok || !between(amount, decimal.Zero, maxTotal) {
			continue
		}
		if !found || amount.GreaterThan(largest) {
			largest = amount
			found = true
		}
	}
	if found {
		slog.Debug("Amount found (largest)", "amount", largest.StringFixed(2))
		return largest, true
	}

	slog.Debug("No amount found in text")
	return decimal.Zero, false
}

// parseAmount converts a matched "12.34" or "12,34" token.
func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// between reports lo < d < hi.
func between(d, lo, hi decimal.Decimal) bool {
	return d.GreaterThan(lo) && d.LessThan(hi)
}
