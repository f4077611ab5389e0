// Package ocr turns bill images into text. Each Engine wraps one OCR backend
// and reports the recognised text with a 0-100 confidence score.
package ocr

import "context"

// Result is the text recognised in one image
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0-100
}

// Engine defines the interface for OCR backends
type Engine interface {
	// Recognize extracts the text printed in an image or PDF
	Recognize(ctx context.Context, imageData []byte, contentType string) (*Result, error)
	// Name identifies the backend in logs and parsed bills
	Name() string
	// Close releases any resources held by the engine
	Close() error
}
