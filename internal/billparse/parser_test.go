package billparse

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/expense-tracker/internal/ocr"
)

// mockEngine is a mock implementation of ocr.Engine
type mockEngine struct {
	result      *ocr.Result
	err         error
	contentType string
}

func (m *mockEngine) Recognize(ctx context.Context, imageData []byte, contentType string) (*ocr.Result, error) {
	m.contentType = contentType
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockEngine) Name() string {
	return "mock"
}

func (m *mockEngine) Close() error {
	return nil
}

var _ = Describe("Parser", func() {
	var (
		engine *mockEngine
		parser *Parser
		now    time.Time
		bill   *ParsedBill
		err    error
	)

	BeforeEach(func() {
		now = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
		engine = &mockEngine{
			result: &ocr.Result{
				Text:       "Joe's Coffee\n123 Main St\nLatte 4.50\nTotal: $4.50\n01/02/2024",
				Confidence: 87.5,
			},
		}
		parser = NewParserWithClock(engine, func() time.Time { return now })
	})

	Describe("Parse", func() {
		JustBeforeEach(func() {
			bill, err = parser.Parse(context.Background(), []byte("image"), "image/jpeg")
		})

		When("the engine returns bill text", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should pass the content type to the engine", func() {
				Expect(engine.contentType).To(Equal("image/jpeg"))
			})

			It("should extract the merchant", func() {
				Expect(bill.MerchantName).To(Equal("Joe's Coffee"))
				Expect(bill.MerchantSource).To(Equal(MerchantHeader))
				Expect(bill.MerchantDetected()).To(BeTrue())
			})

			It("should extract the total", func() {
				Expect(bill.TotalDetected()).To(BeTrue())
				Expect(*bill.TotalAmount).To(Equal(4.50))
			})

			It("should extract the date", func() {
				Expect(bill.DateDetected).To(BeTrue())
				Expect(bill.Date).To(Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
			})

			It("should extract the categorized items", func() {
				Expect(bill.Items).To(Equal([]LineItem{{Description: "Latte", Amount: 4.50, Category: "Food"}}))
			})

			It("should keep the OCR output", func() {
				Expect(bill.RawText).To(Equal(engine.result.Text))
				Expect(bill.Confidence).To(Equal(87.5))
				Expect(bill.Engine).To(Equal("mock"))
			})
		})

		When("the engine returns nothing recognisable", func() {
			BeforeEach(func() {
				engine.result = &ocr.Result{Text: "   \n ", Confidence: 0}
			})

			It("returns ErrEmptyText", func() {
				Expect(err).To(MatchError(ErrEmptyText))
				Expect(bill).To(BeNil())
			})
		})

		When("the engine returns no result", func() {
			BeforeEach(func() {
				engine.result = nil
			})

			It("returns ErrEmptyText", func() {
				Expect(err).To(MatchError(ErrEmptyText))
				Expect(bill).To(BeNil())
			})
		})

		When("the engine fails", func() {
			var setupErr error

			BeforeEach(func() {
				setupErr = errors.New("tesseract not installed")
				engine.err = setupErr
			})

			It("returns ErrOCRFailed wrapping the cause", func() {
				Expect(err).To(MatchError(ErrOCRFailed))
				Expect(errors.Is(err, setupErr)).To(BeTrue())
				Expect(bill).To(BeNil())
			})
		})
	})

	Describe("ParseText", func() {
		When("nothing can be detected", func() {
			BeforeEach(func() {
				bill, err = parser.ParseText("thanks\nfor visiting", 40)
			})

			It("should report undetected fields explicitly", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(bill.TotalAmount).To(BeNil())
				Expect(bill.DateDetected).To(BeFalse())
				Expect(bill.Date).To(Equal(now))
				Expect(bill.Items).To(BeEmpty())
			})

			It("should leave the engine name empty", func() {
				Expect(bill.Engine).To(BeEmpty())
				Expect(bill.Confidence).To(Equal(40.0))
			})
		})
	})
})
