package ocr

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Azure/go-autorest/autorest"
	"github.com/avast/retry-go"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
)

// rateLimitAttempts bounds calls to a remote engine that keeps answering 429
const rateLimitAttempts = 3

// rateLimitDelay is the base backoff between rate limited calls
var rateLimitDelay = 2 * time.Second

// withRateLimitRetry calls fn again only while the engine reports rate
// limiting. Every other failure is returned after the first attempt.
func withRateLimitRetry(ctx context.Context, engine string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.RetryIf(isRateLimited),
		retry.Attempts(rateLimitAttempts),
		retry.Delay(rateLimitDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("OCR engine rate limited, retrying", "engine", engine, "attempt", n+1, "error", err)
		}),
	)
}

// isRateLimited recognises 429 responses from the Google and Azure clients
func isRateLimited(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusTooManyRequests
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPCode() == http.StatusTooManyRequests ||
			apiErr.GRPCStatus().Code() == codes.ResourceExhausted
	}

	var azErr autorest.DetailedError
	if errors.As(err, &azErr) {
		return azErr.StatusCode == http.StatusTooManyRequests
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// httpStatusError is returned by engines talking plain HTTP
type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return "unexpected status " + http.StatusText(e.StatusCode) + ": " + e.Body
}
