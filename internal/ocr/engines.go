package ocr

import (
	"fmt"
	"os"
)

// EngineConfig selects and configures an OCR backend
type EngineConfig struct {
	Kind string // tesseract, gemini, ollama or azure

	Tesseract TesseractConfig

	GeminiKey   string // falls back to GEMINI_API_KEY
	GeminiModel string

	OllamaURL   string
	OllamaModel string

	AzureEndpoint string
	AzureKey      string
}

// NewEngine builds the backend named by cfg.Kind
func NewEngine(cfg EngineConfig) (Engine, error) {
	switch cfg.Kind {
	case "", "tesseract":
		return NewTesseract(cfg.Tesseract), nil
	case "gemini":
		apiKey := cfg.GeminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required")
		}
		engine, err := NewGemini(apiKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case "ollama":
		engine, err := NewOllama(cfg.OllamaURL, cfg.OllamaModel)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case "azure":
		engine, err := NewAzure(cfg.AzureEndpoint, cfg.AzureKey)
		if err != nil {
			return nil, err
		}
		return engine, nil
	default:
		return nil, fmt.Errorf("unknown OCR engine %q: use tesseract, gemini, ollama or azure", cfg.Kind)
	}
}
