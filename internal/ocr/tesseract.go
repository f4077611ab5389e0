package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Runner runs an external command. It lets tests stub the tesseract binary.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		slog.Error("Command failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		slog.Debug("Command finished",
			"cmd", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// TesseractConfig configures the tesseract command line
type TesseractConfig struct {
	Binary      string // defaults to "tesseract"
	Language    string // defaults to "eng"
	TessdataDir string
	PSM         int // page segmentation mode, 0 keeps tesseract's default
}

// Tesseract implements the Engine interface by running the tesseract binary
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
}

// NewTesseract creates a new Tesseract engine
func NewTesseract(cfg TesseractConfig) *Tesseract {
	return NewTesseractWithRunner(cfg, execRunner{})
}

// NewTesseractWithRunner creates a Tesseract engine with a custom command runner for testing
func NewTesseractWithRunner(cfg TesseractConfig, runner Runner) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Tesseract{cfg: cfg, runner: runner}
}

// Name returns "tesseract"
func (t *Tesseract) Name() string {
	return "tesseract"
}

// Recognize writes the preprocessed image to a temporary file and runs
// tesseract on it twice: once for plain text and once in TSV mode for the
// per-word confidences.
func (t *Tesseract) Recognize(ctx context.Context, imageData []byte, contentType string) (*Result, error) {
	pngData, err := PrepareImage(imageData, contentType)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "expense-tracker-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "bill.png")
	if err := os.WriteFile(path, pngData, 0600); err != nil {
		return nil, fmt.Errorf("writing temp image: %w", err)
	}

	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, t.args(path)...)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	text := Normalize(string(out))

	confidence, err := t.tsvConfidence(ctx, path)
	if err != nil {
		slog.Warn("Falling back to heuristic confidence", "error", err)
		confidence = HeuristicConfidence(text)
	}

	return &Result{Text: text, Confidence: confidence}, nil
}

func (t *Tesseract) args(path string, extra ...string) []string {
	args := []string{path, "stdout", "-l", t.cfg.Language}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return append(args, extra...)
}

// tsvConfidence returns the mean word confidence (0-100) from tesseract's TSV output
func (t *Tesseract) tsvConfidence(ctx context.Context, path string) (float64, error) {
	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, t.args(path, "tsv")...)
	if err != nil {
		return 0, fmt.Errorf("tesseract tsv: %w: %s", err, truncate(string(errb), 512))
	}
	return meanTSVConfidence(string(out))
}

// meanTSVConfidence averages the conf column, skipping the header and the
// -1 rows tesseract emits for layout blocks.
func meanTSVConfidence(tsv string) (float64, error) {
	var sum, n float64
	for i, line := range strings.Split(tsv, "\n") {
		if i == 0 || line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		conf := cols[10]
		if conf == "" || conf == "-1" {
			continue
		}
		v, err := strconv.ParseFloat(conf, 64)
		if err != nil {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("no word confidences in tsv output")
	}
	return clampConfidence(sum / n), nil
}

// Close is a no-op for the command line engine
func (t *Tesseract) Close() error {
	return nil
}
