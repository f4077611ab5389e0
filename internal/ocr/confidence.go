package ocr

import (
	"regexp"
	"strings"
)

var (
	reDateShape   = regexp.MustCompile(`\b\d{1,4}[/\-]\d{1,2}[/\-]\d{2,4}\b`)
	reCurrency    = regexp.MustCompile(`\b(usd|eur|gbp|cad|aud)\b|[$£€]`)
	reAmountShape = regexp.MustCompile(`\b\d+[.,]\d{2}\b`)
)

// HeuristicConfidence scores text 0-100 by how much it looks like a bill.
// Engines without a native confidence report this instead.
func HeuristicConfidence(text string) float64 {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return 0
	}

	score := 20.0
	if reDateShape.MatchString(lower) {
		score += 20
	}
	if reCurrency.MatchString(lower) {
		score += 15
	}
	if reAmountShape.MatchString(lower) {
		score += 15
	}
	if len(text) > 120 {
		score += 10
	}
	return clampConfidence(score)
}
