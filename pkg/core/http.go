package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zaie-n/carbontool/pkg/tracing"
)

// DefaultUserAgent identifies the calculator to upstream services.
// Nominatim's usage policy requires a descriptive value.
const DefaultUserAgent = "carbontool/0.1 (hempcrete carbon calculator)"

// RetryOptions configures retry behavior for HTTP requests
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions provides sensible defaults for retries
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Multiplier:   2.0,
}

// SingleAttempt disables retries.
var SingleAttempt = RetryOptions{MaxAttempts: 1}

// NewHTTPClient returns a pooled client bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// WithRetry performs a body-less HTTP request with exponential backoff.
// Only a 200 response counts as success. The returned *MCPError wraps the
// last transport or status error.
func WithRetry(ctx context.Context, req *http.Request, client *http.Client, options RetryOptions) (*http.Response, error) {
	spanName := fmt.Sprintf("http.request %s %s", req.Method, req.URL.Host)
	ctx, span := tracing.StartSpan(ctx, spanName,
		trace.WithAttributes(
			attribute.String(tracing.AttrHTTPMethod, req.Method),
			attribute.String("http.url", req.URL.String()),
			attribute.Int("http.retry.max_attempts", options.MaxAttempts),
		),
	)
	defer span.End()

	logger := slog.Default().With(
		"url", req.URL.String(),
		"method", req.Method,
	)

	if req.Body != nil {
		span.SetStatus(codes.Error, "cannot retry request with body")
		return nil, NewError(ErrInternalError, "cannot retry request with non-nil body")
	}
	if options.MaxAttempts < 1 {
		options.MaxAttempts = 1
	}

	var lastErr error
	delay := options.InitialDelay

	for attempt := 0; attempt < options.MaxAttempts; attempt++ {
		if attempt > 0 {
			tracing.AddEvent(ctx, "retry_attempt",
				trace.WithAttributes(
					attribute.Int("attempt", attempt+1),
					attribute.Int64("delay_ms", delay.Milliseconds()),
				),
			)
			logger.Debug("retrying request",
				"attempt", attempt+1,
				"max_attempts", options.MaxAttempts,
				"delay", delay,
				"last_error", lastErr,
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				span.SetStatus(codes.Error, "request cancelled")
				return nil, NewError(ErrServiceTimeout, "request cancelled").WithCause(ctx.Err())
			}

			delay = time.Duration(float64(delay) * options.Multiplier)
			if delay > options.MaxDelay {
				delay = options.MaxDelay
			}
		}

		resp, err := client.Do(req.Clone(ctx))
		if err == nil && resp.StatusCode == http.StatusOK {
			span.SetAttributes(
				attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode),
				attribute.Int("http.retry.attempts", attempt+1),
			)
			span.SetStatus(codes.Ok, "")
			return resp, nil
		}

		if err != nil {
			lastErr = err
			logger.Debug("request failed", "error", err, "attempt", attempt+1)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		lastErr = ServiceError(req.URL.Host, resp.StatusCode, fmt.Sprintf("HTTP status %d", resp.StatusCode))
		logger.Debug("request returned error status", "status", resp.StatusCode, "attempt", attempt+1)
		if err := resp.Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "request failed")

	var mcpErr *MCPError
	if errors.As(lastErr, &mcpErr) {
		return nil, mcpErr
	}
	if errors.Is(lastErr, context.DeadlineExceeded) || isTimeout(lastErr) {
		return nil, NewError(ErrServiceTimeout, "request timed out").WithCause(lastErr)
	}
	return nil, NewError(ErrNetworkError, "request failed").WithCause(lastErr)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
