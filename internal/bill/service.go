package bill

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/expense-tracker/internal/billparse"
)

const (
	// historyLimit caps the bill history listing
	historyLimit = 50
	// recentLimit is the number of transactions shown on the dashboard
	recentLimit = 5

	defaultExpenseTitle = "Bill Payment"
)

// allowedContentTypes are the upload formats the OCR engines can read
var allowedContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/heic":      true,
	"image/heif":      true,
	"application/pdf": true,
}

var contentTypesByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".heic": "image/heic",
	".heif": "image/heif",
	".pdf":  "application/pdf",
}

// BillParser reads a bill image into structured data
type BillParser interface {
	Parse(ctx context.Context, imageData []byte, contentType string) (*billparse.ParsedBill, error)
}

// Dispatcher schedules background processing of a bill
type Dispatcher interface {
	Enqueue(ctx context.Context, billID string) error
}

// IDGenerator generates unique IDs for bills and transactions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles bill and transaction operations
type Service struct {
	db          DB
	parser      BillParser
	storage     Storage
	dispatcher  Dispatcher
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, parser BillParser, storage Storage, dispatcher Dispatcher) *Service {
	return NewServiceWithDeps(db, parser, storage, dispatcher, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, parser BillParser, storage Storage, dispatcher Dispatcher, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		parser:      parser,
		storage:     storage,
		dispatcher:  dispatcher,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRun            = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters from an uploaded filename and
// shortens long phone-generated names
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(spaceRun.ReplaceAllString(base, " "))

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "bill"
	}

	return base + ext
}

// resolveContentType normalizes the declared content type, falling back to
// the file extension when the client sent none
func resolveContentType(filename, contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt, ok := contentTypesByExt[strings.ToLower(filepath.Ext(filename))]; ok {
			return byExt
		}
	}
	if contentType == "image/jpg" {
		return "image/jpeg"
	}
	return contentType
}

// UploadBill stores a bill file, records it as pending and queues it for
// parsing. It returns before the bill is parsed.
func (s *Service) UploadBill(ctx context.Context, filename string, data []byte, contentType string) (*Bill, error) {
	if len(data) > MaxUploadSize {
		return nil, ErrFileTooLarge
	}
	contentType = resolveContentType(filename, contentType)
	if !allowedContentTypes[contentType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedName, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	bill := &Bill{
		ID:          id,
		Filename:    savedName,
		ContentType: contentType,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.SaveBill(bill); err != nil {
		s.storage.Delete(savedName)
		return nil, fmt.Errorf("saving bill to database: %w", err)
	}

	if err := s.dispatcher.Enqueue(ctx, id); err != nil {
		slog.Error("Failed to queue bill", "bill_id", id, "error", err)
		if delErr := s.db.DeleteBill(id); delErr != nil {
			slog.Warn("Failed to remove unqueued bill", "bill_id", id, "error", delErr)
		}
		if delErr := s.storage.Delete(savedName); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedName, "error", delErr)
		}
		return nil, fmt.Errorf("queueing bill: %w", err)
	}

	slog.Info("Bill uploaded", "bill_id", id, "content_type", contentType, "file_size", len(data))
	return bill, nil
}

// ProcessBill parses a stored bill. The bill ends up processed with its
// parsed data, or failed with the error message. A bill deleted while it
// was being parsed stays deleted.
func (s *Service) ProcessBill(ctx context.Context, id string) error {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return fmt.Errorf("getting bill: %w", err)
	}

	data, err := s.storage.Get(bill.Filename)
	if err != nil {
		s.markFailed(id, err)
		return fmt.Errorf("getting bill file: %w", err)
	}

	parsed, err := s.parser.Parse(ctx, data, bill.ContentType)
	if err != nil {
		slog.Error("Failed to parse bill",
			"bill_id", id,
			"content_type", bill.ContentType,
			"file_size", len(data),
			"error", err,
		)
		s.markFailed(id, err)
		return fmt.Errorf("parsing bill: %w", err)
	}

	err = s.db.UpdateBill(id, func(b *Bill) error {
		b.Status = StatusProcessed
		b.ParsedData = parsed
		b.Error = ""
		b.UpdatedAt = s.timeSource.Now()
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		slog.Info("Bill deleted during processing", "bill_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("saving processed bill: %w", err)
	}
	return nil
}

// markFailed records a processing failure on the bill
func (s *Service) markFailed(id string, cause error) {
	err := s.db.UpdateBill(id, func(b *Bill) error {
		b.Status = StatusFailed
		b.Error = cause.Error()
		b.UpdatedAt = s.timeSource.Now()
		return nil
	})
	switch {
	case errors.Is(err, ErrNotFound):
		slog.Info("Bill deleted during processing", "bill_id", id)
	case err != nil:
		slog.Error("Failed to save bill status", "bill_id", id, "error", err)
	}
}

// RequeuePending queues the bills an earlier run left pending, oldest first.
// It returns how many were queued.
func (s *Service) RequeuePending(ctx context.Context) (int, error) {
	bills, err := s.db.ListBills()
	if err != nil {
		return 0, fmt.Errorf("listing bills: %w", err)
	}
	slices.SortFunc(bills, func(a, b *Bill) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})

	queued := 0
	for _, bill := range bills {
		if bill.Status != StatusPending {
			continue
		}
		if err := s.dispatcher.Enqueue(ctx, bill.ID); err != nil {
			return queued, fmt.Errorf("queueing bill %s: %w", bill.ID, err)
		}
		queued++
	}
	return queued, nil
}

// GetBill retrieves a bill by ID
func (s *Service) GetBill(id string) (*Bill, error) {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return nil, fmt.Errorf("getting bill: %w", err)
	}
	return bill, nil
}

// ListBills returns the most recent bills, newest first
func (s *Service) ListBills() ([]*Bill, error) {
	bills, err := s.db.ListBills()
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}

	slices.SortFunc(bills, func(a, b *Bill) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	if len(bills) > historyLimit {
		bills = bills[:historyLimit]
	}
	return bills, nil
}

// GetBillFile retrieves the uploaded file for a bill
func (s *Service) GetBillFile(id string) ([]byte, string, error) {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill: %w", err)
	}

	data, err := s.storage.Get(bill.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill file: %w", err)
	}

	return data, bill.ContentType, nil
}

// DeleteBill removes a bill and its file. Expenses created from it are kept.
func (s *Service) DeleteBill(id string) error {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return fmt.Errorf("getting bill for deletion: %w", err)
	}

	if err := s.storage.Delete(bill.Filename); err != nil {
		// Log error but continue with database deletion
		slog.Warn("Failed to delete file", "filename", bill.Filename, "error", err)
	}

	if err := s.db.DeleteBill(id); err != nil {
		return fmt.Errorf("deleting bill from database: %w", err)
	}
	return nil
}

// CreateExpenseFromBill turns a processed bill into an expense. Overrides
// win over parsed values; a bill converts at most once.
func (s *Service) CreateExpenseFromBill(id string, overrides ExpenseOverrides) (*Transaction, error) {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return nil, fmt.Errorf("getting bill: %w", err)
	}
	if bill.Status != StatusProcessed || bill.ParsedData == nil {
		return nil, ErrNotProcessed
	}
	if bill.ExpenseCreated {
		return nil, ErrExpenseExists
	}

	parsed := bill.ParsedData
	now := s.timeSource.Now()

	title := overrides.Title
	if title == "" && parsed.MerchantSource != billparse.MerchantUnknown {
		title = parsed.MerchantName
	}
	if title == "" {
		title = defaultExpenseTitle
	}

	var amount int
	switch {
	case overrides.Amount != nil:
		amount = *overrides.Amount
	case parsed.TotalAmount != nil:
		amount = toCents(*parsed.TotalAmount)
	}

	category := cmp.Or(overrides.Category, billparse.CategoryOther)

	date := parsed.Date
	if overrides.Date != nil {
		date = *overrides.Date
	}

	expense := &Transaction{
		ID:          s.idGenerator.Generate(),
		Kind:        KindExpense,
		Title:       title,
		Amount:      amount,
		Category:    category,
		Description: fmt.Sprintf("Auto-created from bill scan. Merchant: %s", parsed.MerchantName),
		Date:        date,
		BillID:      bill.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	bill.ExpenseCreated = true
	bill.ExpenseID = expense.ID
	bill.UpdatedAt = now
	if err := s.db.SaveBillExpense(bill, expense); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}

	slog.Info("Expense created from bill", "bill_id", bill.ID, "expense_id", expense.ID, "amount", amount)
	return expense, nil
}

// CreateTransaction validates and stores a new income or expense
func (s *Service) CreateTransaction(t Transaction) (*Transaction, error) {
	switch {
	case t.Kind != KindIncome && t.Kind != KindExpense:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidTransaction, t.Kind)
	case strings.TrimSpace(t.Title) == "":
		return nil, fmt.Errorf("%w: title is required", ErrInvalidTransaction)
	case t.Amount <= 0:
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}

	now := s.timeSource.Now()
	t.ID = s.idGenerator.Generate()
	t.Title = strings.TrimSpace(t.Title)
	t.Category = cmp.Or(t.Category, billparse.CategoryOther)
	if t.Date.IsZero() {
		t.Date = now
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := s.db.SaveTransaction(&t); err != nil {
		return nil, fmt.Errorf("saving transaction: %w", err)
	}
	return &t, nil
}

// ListTransactions returns the transactions of one kind, or all of them
// when kind is empty, most recent date first
func (s *Service) ListTransactions(kind Kind) ([]*Transaction, error) {
	all, err := s.db.ListTransactions()
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}

	transactions := make([]*Transaction, 0, len(all))
	for _, t := range all {
		if kind == "" || t.Kind == kind {
			transactions = append(transactions, t)
		}
	}
	sortByDateDesc(transactions)
	return transactions, nil
}

func sortByDateDesc(transactions []*Transaction) {
	slices.SortFunc(transactions, func(a, b *Transaction) int {
		return cmp.Or(b.Date.Compare(a.Date), b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID, b.ID))
	})
}

// DeleteTransaction removes a transaction of the given kind. Deleting an
// expense created from a bill allows the bill to be converted again.
func (s *Service) DeleteTransaction(kind Kind, id string) error {
	t, err := s.db.GetTransaction(id)
	if err != nil {
		return fmt.Errorf("getting transaction for deletion: %w", err)
	}
	if t.Kind != kind {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}

	if err := s.db.DeleteTransaction(id); err != nil {
		return fmt.Errorf("deleting transaction from database: %w", err)
	}

	if t.BillID != "" {
		s.releaseBill(t.BillID, id)
	}
	return nil
}

// releaseBill clears the converted flag on a bill whose expense was deleted
func (s *Service) releaseBill(billID, expenseID string) {
	err := s.db.UpdateBill(billID, func(b *Bill) error {
		if b.ExpenseID != expenseID {
			return nil
		}
		b.ExpenseCreated = false
		b.ExpenseID = ""
		b.UpdatedAt = s.timeSource.Now()
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		slog.Warn("Failed to release bill", "bill_id", billID, "error", err)
	}
}

// Summary totals the ledger for the dashboard
func (s *Service) Summary() (*Summary, error) {
	transactions, err := s.ListTransactions("")
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ExpensesByCategory: make(map[string]int),
		Recent:             transactions[:min(recentLimit, len(transactions))],
	}
	for _, t := range transactions {
		switch t.Kind {
		case KindIncome:
			summary.TotalIncome += t.Amount
		case KindExpense:
			summary.TotalExpenses += t.Amount
			summary.ExpensesByCategory[t.Category] += t.Amount
		}
	}
	summary.Balance = summary.TotalIncome - summary.TotalExpenses
	return summary, nil
}
