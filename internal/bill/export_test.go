package bill

import (
	"bytes"
	"errors"
	"time"

	"github.com/xuri/excelize/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var errNotAvailable = errors.New("database not available")

var _ = Describe("ExportTransactionsXLSX", func() {
	var (
		db      *mockDB
		service *Service
		data    []byte
		err     error
	)

	BeforeEach(func() {
		db = newMockDB()
		db.transactions["ex-1"] = &Transaction{
			ID: "ex-1", Kind: KindExpense, Title: "Joe's Coffee", Amount: 450, Category: "Food",
			Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), BillID: "bill-1",
		}
		db.transactions["in-1"] = &Transaction{
			ID: "in-1", Kind: KindIncome, Title: "Salary", Amount: 250000, Category: "Other",
			Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		service = NewServiceWithDeps(db, newMockParser(), newMockStorage(), &mockDispatcher{}, &mockIDGenerator{prefix: "id"}, &mockTimeSource{})
	})

	JustBeforeEach(func() {
		data, err = service.ExportTransactionsXLSX()
	})

	It("should write a header and one row per transaction, most recent first", func() {
		Expect(err).NotTo(HaveOccurred())

		f, openErr := excelize.OpenReader(bytes.NewReader(data))
		Expect(openErr).NotTo(HaveOccurred())
		defer f.Close()

		rows, rowsErr := f.GetRows(exportSheet)
		Expect(rowsErr).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(3))
		Expect(rows[0]).To(Equal(exportHeaders))
		Expect(rows[1]).To(Equal([]string{"2024-01-02", "expense", "Joe's Coffee", "Food", "4.5", "", "bill-1"}))
		Expect(rows[2][:5]).To(Equal([]string{"2024-01-01", "income", "Salary", "Other", "2500"}))
	})

	When("the database fails", func() {
		BeforeEach(func() {
			db.listErr = errNotAvailable
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(errNotAvailable))
		})
	})
})
