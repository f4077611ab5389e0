package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/expense-tracker/internal/bill"
	"github.com/zombor/expense-tracker/internal/billparse"
	"github.com/zombor/expense-tracker/internal/logging"
	"github.com/zombor/expense-tracker/internal/ocr"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env file is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	fs := ff.NewFlagSet("expense-tracker")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "expense-tracker.db", "Database file path")
		storagePath   = fs.StringLong("storage", "./bills", "Storage directory for uploaded bills")
		engineKind    = fs.StringLong("engine", "tesseract", "OCR engine: tesseract, gemini, ollama or azure")
		tessLang      = fs.StringLong("tesseract-lang", "eng", "Tesseract language")
		tessPSM       = fs.IntLong("tesseract-psm", 6, "Tesseract page segmentation mode")
		tessdata      = fs.StringLong("tessdata", "", "Tesseract tessdata directory (optional)")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
		azureEndpoint = fs.StringLong("azure-endpoint", "", "Azure Computer Vision endpoint")
		azureKey      = fs.StringLong("azure-key", "", "Azure Computer Vision key")
		workers       = fs.IntLong("workers", 2, "Background bill processing workers")
		queueSize     = fs.IntLong("queue-size", 64, "Bills that may wait for a worker")
		processTime   = fs.DurationLong("process-timeout", 2*time.Minute, "Time limit for parsing one bill")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logJSON       = fs.BoolLong("log-json", "Write logs as JSON")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// LOG_LEVEL wins over the default but not over an explicit flag
	level := *logLevel
	if env := os.Getenv("LOG_LEVEL"); env != "" && level == "info" {
		level = env
	}
	if _, err := logging.Setup(logging.Config{Level: level, JSON: *logJSON}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := bill.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := bill.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize OCR engine
	slog.Info("Initializing OCR engine...", "engine", *engineKind)
	engine, err := ocr.NewEngine(ocr.EngineConfig{
		Kind: *engineKind,
		Tesseract: ocr.TesseractConfig{
			Language:    *tessLang,
			TessdataDir: *tessdata,
			PSM:         *tessPSM,
		},
		GeminiKey:     *geminiKey,
		GeminiModel:   *geminiModel,
		OllamaURL:     *ollamaURL,
		OllamaModel:   *ollamaModel,
		AzureEndpoint: *azureEndpoint,
		AzureKey:      *azureKey,
	})
	if err != nil {
		slog.Error("Failed to initialize OCR engine", "engine", *engineKind, "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Initialize service and its background workers
	queue := bill.NewQueue(
		bill.WithWorkers(*workers),
		bill.WithQueueSize(*queueSize),
		bill.WithProcessTimeout(*processTime),
	)
	billService := bill.NewService(db, billparse.NewParser(engine), store, queue)
	queue.Start(billService.ProcessBill)

	// Pick up bills a previous run left pending
	go func() {
		n, err := billService.RequeuePending(context.Background())
		if err != nil {
			slog.Warn("Failed to requeue pending bills", "queued", n, "error", err)
			return
		}
		if n > 0 {
			slog.Info("Requeued pending bills", "count", n)
		}
	}()

	// Initialize server
	basicAuth := bill.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	addr := fmt.Sprintf(":%d", *port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           bill.NewServer(billService, basicAuth),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to stop server", "error", err)
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Bills still processing at shutdown stay pending", "error", err)
	}
}
