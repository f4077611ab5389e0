package bill

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Transactions"

var exportHeaders = []string{"Date", "Type", "Title", "Category", "Amount", "Description", "Bill ID"}

// ExportTransactionsXLSX returns every transaction, most recent first, as an
// XLSX workbook. Amounts are written in dollars.
func (s *Service) ExportTransactionsXLSX() ([]byte, error) {
	start := time.Now()

	transactions, err := s.ListTransactions("")
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	// Replace the default sheet so the workbook opens on the data
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	for i, t := range transactions {
		row := i + 2
		values := []any{
			t.Date.Format(time.DateOnly),
			string(t.Kind),
			t.Title,
			t.Category,
			decimal.New(int64(t.Amount), -2).InexactFloat64(),
			t.Description,
			t.BillID,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, fmt.Errorf("writing row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "B", 12)
	_ = f.SetColWidth(exportSheet, "C", "D", 24)
	_ = f.SetColWidth(exportSheet, "E", "E", 12)
	_ = f.SetColWidth(exportSheet, "F", "G", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}

	slog.Info("Transactions exported", "rows", len(transactions), "duration", time.Since(start))
	return buf.Bytes(), nil
}
