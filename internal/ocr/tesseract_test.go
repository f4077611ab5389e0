package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockRunner is a mock implementation of Runner
type mockRunner struct {
	text    string
	tsv     string
	textErr error
	tsvErr  error
	calls   [][]string
}

func (m *mockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	m.calls = append(m.calls, append([]string{name}, args...))
	if slices.Contains(args, "tsv") {
		if m.tsvErr != nil {
			return nil, []byte("tsv failed"), m.tsvErr
		}
		return []byte(m.tsv), nil, nil
	}
	if m.textErr != nil {
		return nil, []byte("read error"), m.textErr
	}
	return []byte(m.text), nil, nil
}

func testPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.Set(x, 10, color.Black)
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t40\t20\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t0\t0\t10\t10\t90\tLatte\n" +
	"5\t1\t1\t1\t1\t2\t12\t0\t10\t10\t80\t4.50\n"

var _ = Describe("Tesseract", func() {
	var (
		runner *mockRunner
		engine *Tesseract
		result *Result
		err    error
		input  []byte
	)

	BeforeEach(func() {
		runner = &mockRunner{
			text: "Joe's Coffee\r\nLatte 4.50\r\n",
			tsv:  sampleTSV,
		}
		engine = NewTesseractWithRunner(TesseractConfig{PSM: 6}, runner)
		input = testPNG()
	})

	JustBeforeEach(func() {
		result, err = engine.Recognize(context.Background(), input, "image/png")
	})

	When("tesseract succeeds", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the normalized text", func() {
			Expect(result.Text).To(Equal("Joe's Coffee\nLatte 4.50"))
		})

		It("should average the word confidences", func() {
			Expect(result.Confidence).To(Equal(85.0))
		})

		It("should pass the language and page segmentation mode", func() {
			Expect(runner.calls[0]).To(ContainElements("tesseract", "stdout", "-l", "eng", "--psm", "6"))
		})
	})

	When("the TSV pass fails", func() {
		BeforeEach(func() {
			runner.tsvErr = errors.New("tsv failed")
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should fall back to the heuristic confidence", func() {
			Expect(result.Confidence).To(Equal(HeuristicConfidence("Joe's Coffee\nLatte 4.50")))
		})
	})

	When("tesseract fails", func() {
		var setupErr error

		BeforeEach(func() {
			setupErr = errors.New("exit status 1")
			runner.textErr = setupErr
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(setupErr))
		})
	})

	When("the image cannot be decoded", func() {
		BeforeEach(func() {
			input = []byte("not an image")
		})

		It("returns an error without running tesseract", func() {
			Expect(err).To(HaveOccurred())
			Expect(runner.calls).To(BeEmpty())
		})
	})
})

var _ = Describe("meanTSVConfidence", func() {
	It("should fail when no word has a confidence", func() {
		_, err := meanTSVConfidence("level\tconf\n")
		Expect(err).To(HaveOccurred())
	})
})
