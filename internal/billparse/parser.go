package billparse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zombor/expense-tracker/internal/ocr"
)

// Parser runs OCR on a bill image and interprets the resulting text.
// It holds no per-bill state and may be shared between goroutines.
type Parser struct {
	engine ocr.Engine
	now    func() time.Time
}

// NewParser creates a Parser that reads images with engine.
func NewParser(engine ocr.Engine) *Parser {
	return NewParserWithClock(engine, time.Now)
}

// NewParserWithClock creates a Parser with a custom clock for the date
// fallback and the plausible-year window.
func NewParserWithClock(engine ocr.Engine, now func() time.Time) *Parser {
	return &Parser{engine: engine, now: now}
}

// Parse recognises the text in an image and extracts a ParsedBill from it.
// Engine failures are wrapped with ErrOCRFailed; a missing result or blank
// text fails with ErrEmptyText.
func (p *Parser) Parse(ctx context.Context, imageData []byte, contentType string) (*ParsedBill, error) {
	start := time.Now()

	res, err := p.engine.Recognize(ctx, imageData, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOCRFailed, err)
	}
	if res == nil {
		return nil, ErrEmptyText
	}
	slog.Debug("Text extracted", "engine", p.engine.Name(), "chars", len(res.Text), "confidence", res.Confidence)

	return p.interpret(res.Text, res.Confidence, p.engine.Name(), start)
}

// ParseText extracts a ParsedBill from text that was already recognised.
func (p *Parser) ParseText(text string, confidence float64) (*ParsedBill, error) {
	return p.interpret(text, confidence, "", time.Now())
}

func (p *Parser) interpret(text string, confidence float64, engine string, start time.Time) (*ParsedBill, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	merchant, source := ExtractMerchant(text)
	date, dateFound := ExtractDate(text, p.now())
	items := ExtractLineItems(text)

	var total *float64
	if amount, ok := ExtractAmount(text); ok {
		v := amount.Round(2).InexactFloat64()
		total = &v
	}

	bill := &ParsedBill{
		MerchantName:     merchant,
		MerchantSource:   source,
		TotalAmount:      total,
		Date:             date,
		DateDetected:     dateFound,
		Items:            items,
		RawText:          text,
		Confidence:       confidence,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Engine:           engine,
	}

	slog.Info("Bill parsed",
		"merchant", bill.MerchantName,
		"merchant_source", bill.MerchantSource,
		"total_detected", bill.TotalDetected(),
		"date", bill.Date.Format(time.DateOnly),
		"date_detected", bill.DateDetected,
		"items", len(bill.Items),
		"processing_ms", bill.ProcessingTimeMs,
	)
	return bill, nil
}
