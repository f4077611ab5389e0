// Package bill stores scanned bills, runs them through the parser in the
// background and turns the results into expenses. It also keeps the income
// and expense ledger behind the dashboard.
package bill

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/billparse"
)

var (
	// ErrNotFound is returned when a bill or transaction does not exist
	ErrNotFound = errors.New("not found")
	// ErrNotProcessed is returned when an expense is requested for a bill that is not processed yet
	ErrNotProcessed = errors.New("bill not yet processed")
	// ErrExpenseExists is returned when a bill has already been turned into an expense
	ErrExpenseExists = errors.New("expense already created for this bill")
	// ErrUnsupportedType is returned for uploads that are not an image or PDF
	ErrUnsupportedType = errors.New("only JPEG, PNG, GIF, HEIC and PDF files are allowed")
	// ErrFileTooLarge is returned for uploads over MaxUploadSize
	ErrFileTooLarge = errors.New("file is too large")
	// ErrInvalidTransaction is returned when a transaction fails validation
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// MaxUploadSize is the largest bill file accepted
const MaxUploadSize = 5 << 20

// Status is the processing state of a bill
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Bill is an uploaded bill image and the result of parsing it
type Bill struct {
	ID             string                `json:"id"`
	Filename       string                `json:"filename"`
	ContentType    string                `json:"content_type"`
	Status         Status                `json:"status"`
	ParsedData     *billparse.ParsedBill `json:"parsed_data,omitempty"`
	Error          string                `json:"error,omitempty"`
	ExpenseCreated bool                  `json:"expense_created"`
	ExpenseID      string                `json:"expense_id,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Kind separates money coming in from money going out
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Transaction is one income or expense entry
type Transaction struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Amount      int       `json:"amount"` // Amount in cents
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	Date        time.Time `json:"date"`
	BillID      string    `json:"bill_id,omitempty"` // Bill this expense was created from
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExpenseOverrides replace parsed values when a bill becomes an expense.
// Zero values keep what was parsed.
type ExpenseOverrides struct {
	Title    string     `json:"title,omitempty"`
	Amount   *int       `json:"amount,omitempty"` // Amount in cents
	Category string     `json:"category,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
}

// Summary is the dashboard view of the ledger
type Summary struct {
	TotalIncome        int            `json:"total_income"`
	TotalExpenses      int            `json:"total_expenses"`
	Balance            int            `json:"balance"`
	ExpensesByCategory map[string]int `json:"expenses_by_category"`
	Recent             []*Transaction `json:"recent"`
}

// toCents converts a dollar amount to cents, rounding half away from zero
func toCents(dollars float64) int {
	return int(decimal.NewFromFloat(dollars).Shift(2).Round(0).IntPart())
}
