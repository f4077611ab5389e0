package bill

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// errorStatus maps service errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrExpenseExists):
		return http.StatusConflict
	case errors.Is(err, ErrNotProcessed), errors.Is(err, ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs unexpected failures and reports the error to the client
func writeServiceError(w http.ResponseWriter, action string, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("Error "+action, "error", err)
		writeError(w, status, "Internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// handleHealth reports that the server is up
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": s.service.timeSource.Now().UTC().Format(time.RFC3339),
	})
}

// handleUploadBill accepts a bill file and queues it for parsing
func (s *Server) handleUploadBill(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope around the file
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 5MB.")
			return
		}
		slog.Error("Error parsing multipart form", "error", err)
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("bill")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer f.Close()

	if header.Size > MaxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 5MB.")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	bill, err := s.service.UploadBill(r.Context(), header.Filename, data, header.Header.Get("Content-Type"))
	if err != nil {
		writeServiceError(w, "uploading bill", err)
		return
	}

	writeJSON(w, http.StatusAccepted, bill)
}

// handleListBills returns the bill history
func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	bills, err := s.service.ListBills()
	if err != nil {
		writeServiceError(w, "listing bills", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(bills),
		"bills": bills,
	})
}

// handleGetBill returns a single bill, including its processing status
func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := s.service.GetBill(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "getting bill", err)
		return
	}

	writeJSON(w, http.StatusOK, bill)
}

// handleGetBillFile returns the uploaded file for a bill
func (s *Server) handleGetBillFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetBillFile(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "getting bill file", err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteBill deletes a bill
func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteBill(r.PathValue("id")); err != nil {
		writeServiceError(w, "deleting bill", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleCreateExpenseFromBill converts a processed bill into an expense
func (s *Server) handleCreateExpenseFromBill(w http.ResponseWriter, r *http.Request) {
	var overrides ExpenseOverrides
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	expense, err := s.service.CreateExpenseFromBill(r.PathValue("id"), overrides)
	if err != nil {
		writeServiceError(w, "creating expense from bill", err)
		return
	}

	writeJSON(w, http.StatusCreated, expense)
}

// transactionRequest is the body for creating an income or expense
type transactionRequest struct {
	Title       string     `json:"title"`
	Amount      int        `json:"amount"` // Amount in cents
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Date        *time.Time `json:"date"`
}

// handleListTransactions returns the transactions of one kind
func (s *Server) handleListTransactions(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transactions, err := s.service.ListTransactions(kind)
		if err != nil {
			writeServiceError(w, "listing transactions", err)
			return
		}

		writeJSON(w, http.StatusOK, transactions)
	}
}

// handleCreateTransaction records a new income or expense
func (s *Server) handleCreateTransaction(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		t := Transaction{
			Kind:        kind,
			Title:       req.Title,
			Amount:      req.Amount,
			Category:    req.Category,
			Description: req.Description,
		}
		if req.Date != nil {
			t.Date = *req.Date
		}

		created, err := s.service.CreateTransaction(t)
		if err != nil {
			writeServiceError(w, "creating transaction", err)
			return
		}

		writeJSON(w, http.StatusCreated, created)
	}
}

// handleDeleteTransaction deletes an income or expense
func (s *Server) handleDeleteTransaction(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.service.DeleteTransaction(kind, r.PathValue("id")); err != nil {
			writeServiceError(w, "deleting transaction", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// handleDashboard returns the ledger summary
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summary()
	if err != nil {
		writeServiceError(w, "building summary", err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleExportTransactions downloads the ledger as a spreadsheet
func (s *Server) handleExportTransactions(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportTransactionsXLSX()
	if err != nil {
		writeServiceError(w, "exporting transactions", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.xlsx"`)
	w.Write(data)
}
