package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
)

// Azure implements the Engine interface using Azure Computer Vision printed text OCR
type Azure struct {
	client computervision.BaseClient
}

// NewAzure creates a new Azure engine for a Cognitive Services endpoint
func NewAzure(endpoint, apiKey string) (*Azure, error) {
	if endpoint == "" || apiKey == "" {
		return nil, fmt.Errorf("azure endpoint and api key are required")
	}
	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)
	return &Azure{client: client}, nil
}

// Name returns "azure"
func (a *Azure) Name() string {
	return "azure"
}

// Recognize sends the preprocessed image to Azure and joins the recognised
// words back into lines, region by region.
func (a *Azure) Recognize(ctx context.Context, imageData []byte, contentType string) (*Result, error) {
	pngData, err := PrepareImage(imageData, contentType)
	if err != nil {
		return nil, err
	}

	var result computervision.OcrResult
	err = withRateLimitRetry(ctx, a.Name(), func() error {
		var ocrErr error
		result, ocrErr = a.client.RecognizePrintedTextInStream(
			ctx,
			true,
			io.NopCloser(bytes.NewReader(pngData)),
			computervision.OcrLanguages(computervision.En),
		)
		return ocrErr
	})
	if err != nil {
		return nil, fmt.Errorf("recognizing printed text: %w", err)
	}

	text := Normalize(ocrResultText(result))
	return &Result{Text: text, Confidence: HeuristicConfidence(text)}, nil
}

// ocrResultText flattens an OCR result into newline separated lines
func ocrResultText(result computervision.OcrResult) string {
	if result.Regions == nil {
		return ""
	}
	var lines []string
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			if line.Words == nil {
				continue
			}
			words := make([]string, 0, len(*line.Words))
			for _, word := range *line.Words {
				if word.Text != nil {
					words = append(words, *word.Text)
				}
			}
			lines = append(lines, strings.Join(words, " "))
		}
	}
	return strings.Join(lines, "\n")
}

// Close is a no-op for the REST client
func (a *Azure) Close() error {
	return nil
}
