// Command parse-bill reads one bill and prints what the parser extracted as
// JSON. Text files, and text piped on stdin when no file is named, skip OCR;
// anything else is sent through the selected OCR engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/expense-tracker/internal/billparse"
	"github.com/zombor/expense-tracker/internal/logging"
	"github.com/zombor/expense-tracker/internal/ocr"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := ff.NewFlagSet("parse-bill")
	var (
		engineKind  = fs.StringLong("engine", "tesseract", "OCR engine for images: tesseract, gemini, ollama or azure")
		tessLang    = fs.StringLong("tesseract-lang", "eng", "Tesseract language")
		tessPSM     = fs.IntLong("tesseract-psm", 6, "Tesseract page segmentation mode")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
		timeout     = fs.DurationLong("timeout", 2*time.Minute, "Time limit for OCR")
		logLevel    = fs.StringLong("log-level", "warn", "Log level: debug, info, warn or error")
	)

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("EXPENSE_TRACKER")); err != nil {
		return fmt.Errorf("%w\n%s", err, ffhelp.Flags(fs))
	}
	if len(fs.GetArgs()) > 1 {
		return fmt.Errorf("usage: parse-bill [flags] [file]\n%s", ffhelp.Flags(fs))
	}
	var path string
	if len(fs.GetArgs()) == 1 {
		path = fs.GetArgs()[0]
	}

	if _, err := logging.Setup(logging.Config{Level: *logLevel}); err != nil {
		return err
	}

	var data []byte
	var err error
	if path == "" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("reading bill: %w", err)
	}

	var parsed *billparse.ParsedBill
	if path == "" || strings.EqualFold(filepath.Ext(path), ".txt") {
		text := ocr.Normalize(string(data))
		parsed, err = billparse.NewParser(nil).ParseText(text, ocr.HeuristicConfidence(text))
	} else {
		parsed, err = parseImage(path, data, ocr.EngineConfig{
			Kind:        *engineKind,
			Tesseract:   ocr.TesseractConfig{Language: *tessLang, PSM: *tessPSM},
			GeminiKey:   *geminiKey,
			OllamaURL:   *ollamaURL,
			OllamaModel: *ollamaModel,
		}, *timeout)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(parsed)
}

func parseImage(path string, data []byte, cfg ocr.EngineConfig, timeout time.Duration) (*billparse.ParsedBill, error) {
	engine, err := ocr.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	return billparse.NewParser(engine).Parse(ctx, data, contentType)
}
