package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/zaie-n/carbontool/pkg/tracing"
)

func TestTracingMiddleware(t *testing.T) {
	os.Unsetenv("OTLP_ENDPOINT")
	ctx := context.Background()
	shutdown, _ := tracing.InitTracing(ctx, "test")
	defer shutdown(ctx)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if span := trace.SpanFromContext(r.Context()); span == nil {
			t.Error("No span in request context")
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test response"))
	})

	handler := TracingMiddleware()(testHandler)

	t.Run("Success", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/calculate?area_sqft=1", nil)
		req.Header.Set("Mcp-Session-Id", "session-123")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", rec.Code)
		}
		if rec.Body.String() != "test response" {
			t.Errorf("unexpected body %q", rec.Body.String())
		}
	})

	t.Run("Error", func(t *testing.T) {
		errorHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		rec := httptest.NewRecorder()
		TracingMiddleware()(errorHandler).ServeHTTP(rec, httptest.NewRequest("POST", "/error", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", rec.Code)
		}
	})
}

func TestLoggingMiddlewareRequestID(t *testing.T) {
	var seen string
	handler := LoggingMiddleware(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestID(r)
	}))

	t.Run("propagates client ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if seen != "abc-123" {
			t.Errorf("handler saw request ID %q", seen)
		}
		if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
			t.Errorf("response request ID %q", got)
		}
	})

	t.Run("generates ID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

		if seen == "" {
			t.Fatal("expected generated request ID")
		}
		if got := rec.Header().Get("X-Request-ID"); got != seen {
			t.Errorf("response request ID %q, handler saw %q", got, seen)
		}
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestRequestSizeLimiter(t *testing.T) {
	h := newTestHandler()
	handler := RequestSizeLimiter(16)(h)

	body := strings.NewReader(`{"area_sqft": 1000, "zip": "10007"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/calculate", body))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized body, got %d", rec.Code)
	}
}

func TestGetIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "10.0.0.1:5555", "10.0.0.1"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.1:5555", "203.0.113.5"},
		{"bad forwarded falls back to real IP", map[string]string{"X-Forwarded-For": "junk", "X-Real-IP": "198.51.100.7"}, "10.0.0.1:5555", "198.51.100.7"},
		{"no port", nil, "10.0.0.2", "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getIP(req); got != tt.want {
				t.Errorf("getIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResponseWriterInterfaces(t *testing.T) {
	wrapped := newResponseWriter(httptest.NewRecorder())

	var _ http.Flusher = wrapped
	var _ http.Hijacker = wrapped

	wrapped.Flush()

	if _, _, err := wrapped.Hijack(); err != http.ErrNotSupported {
		t.Errorf("Hijack should return ErrNotSupported, got %v", err)
	}

	wrapped.WriteHeader(http.StatusTeapot)
	wrapped.WriteHeader(http.StatusOK)
	if wrapped.statusCode != http.StatusTeapot {
		t.Errorf("first status should win, got %d", wrapped.statusCode)
	}
}
