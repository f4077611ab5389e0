package billparse

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// itemShapes are the trailing-amount layouts of an item line, in the order
// they are tried. Only the first shape that matches a line is used.
var itemShapes = []struct {
	Name    string
	Pattern *regexp.Regexp
}{
	{Name: "dollar", Pattern: regexp.MustCompile(`^(.+?)\s+\$\s*(\d+\.\d{2})$`)},
	{Name: "bare", Pattern: regexp.MustCompile(`^(.+?)\s+(\d+\.\d{2})$`)},
	{Name: "spaced", Pattern: regexp.MustCompile(`^(.+?)\s{2,}\$?\s*(\d+\.\d{2})\s*$`)},
}

var (
	// summary lines that carry an amount but are not items
	reservedItemPrefix = regexp.MustCompile(`(?i)^(total|subtotal|tax|tip|balance|amount|payment)`)

	maxItemAmount = decimal.NewFromInt(10000)
)

// ExtractLineItems returns the itemized charges in document order. An amount
// already taken by an earlier item is never reused, which keeps subtotal and
// total lines from reappearing as items.
func ExtractLineItems(text string) []LineItem {
	items := []LineItem{}
	seen := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) < 3 || digitsOnly.MatchString(line) {
			continue
		}

		description, amount, ok := matchItemLine(line)
		if !ok {
			continue
		}

		key := amount.String()
		if !acceptItem(description, amount) || seen[key] {
			continue
		}
		seen[key] = true

		items = append(items, LineItem{
			Description: description,
			Amount:      amount.InexactFloat64(),
			Category:    Categorize(description),
		})
	}

	slog.Debug("Line items found", "count", len(items))
	return items
}

// matchItemLine applies the first matching item shape to line.
func matchItemLine(line string) (string, decimal.Decimal, bool) {
	for _, shape := range itemShapes {
		m := shape.Pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		amount, err := decimal.NewFromString(m[2])
		if err != nil {
			return "", decimal.Zero, false
		}
		return strings.TrimSpace(m[1]), amount, true
	}
	return "", decimal.Zero, false
}

func acceptItem(description string, amount decimal.Decimal) bool {
	n := utf8.RuneCountInString(description)
	if n < 3 || n > 99 {
		return false
	}
	if !between(amount, decimal.Zero, maxItemAmount) {
		return false
	}
	return !reservedItemPrefix.MatchString(description)
}
