// Package billparse turns raw OCR text from a paper receipt into a structured
// bill: merchant, total, date and itemized charges.
//
// Every extractor is a pure function over the text. An extractor that cannot
// find its field returns a fallback and reports that nothing was detected;
// only a missing or unusable OCR result is an error.
package billparse

import (
	"errors"
	"time"
)

var (
	// ErrOCRFailed wraps any error returned by the OCR engine.
	ErrOCRFailed = errors.New("ocr failed")

	// ErrEmptyText is returned when OCR succeeded but produced no usable text.
	ErrEmptyText = errors.New("no text extracted from image")
)

// UnknownMerchant is the merchant name used when the text has no usable lines.
const UnknownMerchant = "Unknown Merchant"

// MerchantSource records how a merchant name was obtained.
type MerchantSource string

const (
	// MerchantHeader means a header line passed every merchant filter.
	MerchantHeader MerchantSource = "header"
	// MerchantFirstLine means no header line qualified and the first line was used.
	MerchantFirstLine MerchantSource = "first_line"
	// MerchantUnknown means the text had no non-blank lines.
	MerchantUnknown MerchantSource = "unknown"
)

// LineItem is one itemized charge on a bill
type LineItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
}

// ParsedBill is the result of interpreting one bill's OCR text.
type ParsedBill struct {
	MerchantName   string         `json:"merchant_name"`
	MerchantSource MerchantSource `json:"merchant_source"`

	// TotalAmount is nil when no plausible total was found.
	TotalAmount *float64 `json:"total_amount"`

	Date         time.Time `json:"date"`
	DateDetected bool      `json:"date_detected"`

	Items []LineItem `json:"items"`

	RawText          string  `json:"raw_text"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
	Engine           string  `json:"engine,omitempty"`
}

// MerchantDetected reports whether the merchant name came from the bill header.
func (p *ParsedBill) MerchantDetected() bool {
	return p.MerchantSource == MerchantHeader
}

// TotalDetected reports whether a total amount was found.
func (p *ParsedBill) TotalDetected() bool {
	return p.TotalAmount != nil
}
