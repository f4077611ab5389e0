package ocr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// transcriptionPrompt is the shared prompt used by the LLM engines
const transcriptionPrompt = `You are an OCR engine. Transcribe all text printed on this receipt or bill exactly as it appears.

Rules:
- Keep the original line breaks: one printed line per output line, top to bottom.
- Keep prices, dates, phone numbers and currency symbols exactly as printed.
- Do not summarise, correct, translate or reorder anything.
- Estimate how legible the document was as a confidence from 0 to 100.

Return ONLY valid JSON in this exact format:
{
  "text": "FIRST LINE\nSECOND LINE",
  "confidence": 0
}

Do not include any text before or after the JSON and do not use markdown code blocks.`

// transcript is the JSON answer expected from transcriptionPrompt
type transcript struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// parseTranscriptJSON parses an LLM transcription answer
func parseTranscriptJSON(text string) (*Result, error) {
	text = strings.TrimSpace(text)

	// Remove opening markdown code blocks
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var t transcript
	if err := json.Unmarshal([]byte(text), &t); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	result := &Result{Text: Normalize(t.Text)}
	if t.Confidence != nil {
		result.Confidence = clampConfidence(*t.Confidence)
	} else {
		result.Confidence = HeuristicConfidence(result.Text)
	}
	return result, nil
}

// clampConfidence keeps a score inside 0-100
func clampConfidence(c float64) float64 {
	return min(max(c, 0), 100)
}
