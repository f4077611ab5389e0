package billparse

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

// merchantHeaderLines is how many non-blank lines are considered the header.
const merchantHeaderLines = 5

// merchantFilter rejects a header line that cannot be a merchant name.
type merchantFilter struct {
	Name   string
	Reject func(line string) bool
}

var (
	streetAddress   = regexp.MustCompile(`(?i)^\d+\s+[a-z]`)
	phoneNumber     = regexp.MustCompile(`\(\d{3}\)|\d{3}[-.\s]\d{3}[-.\s]\d{4}`)
	digitsOnly      = regexp.MustCompile(`^\d+$`)
	shortDate       = regexp.MustCompile(`\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}`)
	reservedHeading = regexp.MustCompile(`(?i)^(receipt|invoice|bill|tax|total|subtotal|customer)$`)
)

var merchantFilters = []merchantFilter{
	{Name: "length", Reject: func(line string) bool {
		n := utf8.RuneCountInString(line)
		return n < 3 || n > 50
	}},
	{Name: "street address", Reject: streetAddress.MatchString},
	{Name: "phone number", Reject: phoneNumber.MatchString},
	{Name: "numeric", Reject: digitsOnly.MatchString},
	{Name: "date", Reject: shortDate.MatchString},
	{Name: "reserved word", Reject: reservedHeading.MatchString},
}

// ExtractMerchant picks the merchant name from the first few lines of text.
// It never returns an empty name.
func ExtractMerchant(text string) (string, MerchantSource) {
	lines := nonBlankLines(text)

	for _, line := range lines[:min(merchantHeaderLines, len(lines))] {
		if rejected := rejectMerchant(line); rejected != "" {
			slog.Debug("Merchant candidate rejected", "line", line, "filter", rejected)
			continue
		}
		slog.Debug("Merchant found", "merchant", line)
		return line, MerchantHeader
	}

	if len(lines) > 0 {
		slog.Debug("Merchant (fallback)", "merchant", lines[0])
		return lines[0], MerchantFirstLine
	}

	slog.Debug("No merchant found")
	return UnknownMerchant, MerchantUnknown
}

// rejectMerchant returns the name of the first filter rejecting line, or "".
func rejectMerchant(line string) string {
	for _, f := range merchantFilters {
		if f.Reject(line) {
			return f.Name
		}
	}
	return ""
}

func nonBlankLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
