package bill

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		dispatcher  *mockDispatcher
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		dispatcher = &mockDispatcher{}
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		service := NewServiceWithDeps(db, newMockParser(), storage, dispatcher,
			&mockIDGenerator{prefix: "id"}, &mockTimeSource{now: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)})
		server := NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if auth.Username != "" {
			req.SetBasicAuth(auth.Username, auth.Password)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decode := func(resp *http.Response, v any) {
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	multipartBody := func(field, filename string, data []byte) (*bytes.Buffer, string) {
		var b bytes.Buffer
		writer := multipart.NewWriter(&b)
		part, err := writer.CreateFormFile(field, filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())
		return &b, writer.FormDataContentType()
	}

	Describe("GET /health", func() {
		It("should report OK with CORS headers", func() {
			resp := do("GET", "/health", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			var body map[string]string
			decode(resp, &body)
			Expect(body).To(HaveKeyWithValue("status", "OK"))
		})
	})

	Describe("OPTIONS preflight", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("should answer without authentication", func() {
			req, err := http.NewRequest("OPTIONS", ghttpServer.URL()+"/api/expenses", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("DELETE"))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("should accept valid credentials", func() {
			resp := do("GET", "/api/expenses", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject missing credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/expenses")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("should leave /health open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/health")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("POST /api/bills/upload", func() {
		It("should accept a bill and queue it", func() {
			body, contentType := multipartBody("bill", "lunch.jpg", []byte("fake image data"))
			resp := do("POST", "/api/bills/upload", body, contentType)
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

			var bill Bill
			decode(resp, &bill)
			Expect(bill.ID).To(Equal("id-1"))
			Expect(bill.Status).To(Equal(StatusPending))
			Expect(bill.ContentType).To(Equal("image/jpeg"))
			Expect(dispatcher.queued).To(Equal([]string{"id-1"}))
		})

		It("should reject a missing file field", func() {
			body, contentType := multipartBody("file", "lunch.jpg", []byte("fake image data"))
			resp := do("POST", "/api/bills/upload", body, contentType)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject unsupported files", func() {
			body, contentType := multipartBody("bill", "notes.txt", []byte("hello"))
			resp := do("POST", "/api/bills/upload", body, contentType)
			Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
		})

		It("should reject files over the size limit", func() {
			body, contentType := multipartBody("bill", "huge.jpg", make([]byte, MaxUploadSize+1))
			resp := do("POST", "/api/bills/upload", body, contentType)
			Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
		})
	})

	Describe("GET /api/bills/history", func() {
		BeforeEach(func() {
			db.bills["a"] = &Bill{ID: "a", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
			db.bills["b"] = &Bill{ID: "b", CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
		})

		It("should list bills newest first with a count", func() {
			resp := do("GET", "/api/bills/history", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Count int     `json:"count"`
				Bills []*Bill `json:"bills"`
			}
			decode(resp, &body)
			Expect(body.Count).To(Equal(2))
			Expect(body.Bills[0].ID).To(Equal("b"))
		})
	})

	Describe("GET /api/bills/{id}", func() {
		It("should return the bill status", func() {
			db.bills["bill-1"] = &Bill{ID: "bill-1", Status: StatusFailed, Error: "no text found in image"}
			resp := do("GET", "/api/bills/bill-1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var bill Bill
			decode(resp, &bill)
			Expect(bill.Status).To(Equal(StatusFailed))
			Expect(bill.Error).To(Equal("no text found in image"))
		})

		It("should return 404 for an unknown bill", func() {
			resp := do("GET", "/api/bills/missing", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/bills/{id}/file", func() {
		It("should return the file with its content type", func() {
			db.bills["bill-1"] = &Bill{ID: "bill-1", Filename: "bill-1_a.png", ContentType: "image/png"}
			storage.files["bill-1_a.png"] = []byte("png bytes")

			resp := do("GET", "/api/bills/bill-1/file", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("png bytes"))
		})
	})

	Describe("DELETE /api/bills/{id}", func() {
		It("should delete the bill", func() {
			db.bills["bill-1"] = &Bill{ID: "bill-1", Filename: "bill-1_a.png"}
			resp := do("DELETE", "/api/bills/bill-1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.bills).To(BeEmpty())
		})
	})

	Describe("POST /api/bills/{id}/expense", func() {
		BeforeEach(func() {
			db.bills["bill-1"] = &Bill{ID: "bill-1", Status: StatusProcessed, ParsedData: newMockParser().parsed}
		})

		It("should create an expense from the parsed bill", func() {
			resp := do("POST", "/api/bills/bill-1/expense", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var expense Transaction
			decode(resp, &expense)
			Expect(expense.Title).To(Equal("Joe's Coffee"))
			Expect(expense.Amount).To(Equal(450))
		})

		It("should apply overrides from the body", func() {
			resp := do("POST", "/api/bills/bill-1/expense",
				strings.NewReader(`{"title":"Client lunch","category":"Food"}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var expense Transaction
			decode(resp, &expense)
			Expect(expense.Title).To(Equal("Client lunch"))
			Expect(expense.Category).To(Equal("Food"))
		})

		It("should reject a second conversion", func() {
			db.bills["bill-1"].ExpenseCreated = true
			resp := do("POST", "/api/bills/bill-1/expense", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("should reject a bill that is not processed", func() {
			db.bills["bill-1"].Status = StatusPending
			resp := do("POST", "/api/bills/bill-1/expense", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var body map[string]string
			decode(resp, &body)
			Expect(body["error"]).To(Equal(ErrNotProcessed.Error()))
		})
	})

	Describe("/api/incomes", func() {
		It("should create an income", func() {
			resp := do("POST", "/api/incomes",
				strings.NewReader(`{"title":"Salary","amount":250000,"date":"2024-01-31T00:00:00Z"}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var income Transaction
			decode(resp, &income)
			Expect(income.Kind).To(Equal(KindIncome))
			Expect(income.Date).To(Equal(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)))
			Expect(db.transactions).To(HaveKey(income.ID))
		})

		It("should reject an invalid income", func() {
			resp := do("POST", "/api/incomes", strings.NewReader(`{"title":"","amount":10}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject a malformed body", func() {
			resp := do("POST", "/api/incomes", strings.NewReader(`{`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should not delete an expense", func() {
			db.transactions["ex-1"] = &Transaction{ID: "ex-1", Kind: KindExpense}
			resp := do("DELETE", "/api/incomes/ex-1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("/api/expenses", func() {
		BeforeEach(func() {
			db.transactions["ex-1"] = &Transaction{ID: "ex-1", Kind: KindExpense, Amount: 450, Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
			db.transactions["in-1"] = &Transaction{ID: "in-1", Kind: KindIncome, Amount: 1000}
		})

		It("should list only expenses", func() {
			resp := do("GET", "/api/expenses", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var expenses []*Transaction
			decode(resp, &expenses)
			Expect(expenses).To(HaveLen(1))
			Expect(expenses[0].ID).To(Equal("ex-1"))
		})

		It("should delete an expense", func() {
			resp := do("DELETE", "/api/expenses/ex-1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.transactions).NotTo(HaveKey("ex-1"))
		})
	})

	Describe("GET /api/dashboard", func() {
		It("should return the summary", func() {
			db.transactions["in-1"] = &Transaction{ID: "in-1", Kind: KindIncome, Amount: 1000}
			db.transactions["ex-1"] = &Transaction{ID: "ex-1", Kind: KindExpense, Amount: 450, Category: "Food"}

			resp := do("GET", "/api/dashboard", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var summary Summary
			decode(resp, &summary)
			Expect(summary.Balance).To(Equal(550))
			Expect(summary.ExpensesByCategory).To(HaveKeyWithValue("Food", 450))
		})
	})

	Describe("GET /api/transactions/export", func() {
		It("should download a spreadsheet", func() {
			resp := do("GET", "/api/transactions/export", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("transactions.xlsx"))
		})
	})

	Describe("unknown routes", func() {
		It("should return 404", func() {
			resp := do("GET", "/api/receipts", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})
