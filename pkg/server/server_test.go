package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/zaie-n/carbontool/pkg/core"
	"github.com/zaie-n/carbontool/pkg/distance"
	"github.com/zaie-n/carbontool/pkg/geo"
	"github.com/zaie-n/carbontool/pkg/geocode"
	"github.com/zaie-n/carbontool/pkg/pipeline"
	"github.com/zaie-n/carbontool/pkg/tools"
)

var manhattan = geo.Location{Latitude: 40.7128, Longitude: -74.0060}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry() *tools.Registry {
	resolver := geocode.NewTableResolver(map[string]geo.Location{"10007": manhattan})
	calc := pipeline.NewCalculator(resolver, distance.New(distance.Options{}))
	return tools.NewRegistry(discardLogger(), calc)
}

func newTestHandler() *Handler {
	return NewHandler(discardLogger(), newTestRegistry())
}

func TestNewServer(t *testing.T) {
	s := NewServer(newTestRegistry())
	if s == nil {
		t.Fatal("NewServer() returned nil server")
	}
	if s.GetMCPServer() == nil {
		t.Error("expected an MCP server")
	}
}

func TestServer_RunWithContext(t *testing.T) {
	s := NewServer(newTestRegistry())
	block := make(chan struct{})
	s.serveStdio = func(*mcpserver.MCPServer) error {
		<-block
		return io.EOF
	}
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.RunWithContext(ctx)
	}()

	// Give Run a moment to mark itself running
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned before stdio finished")
	case <-time.After(20 * time.Millisecond):
	}

	block <- struct{}{}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunWithContext() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_RunStopsWhenStdioCloses(t *testing.T) {
	s := NewServer(newTestRegistry())
	s.serveStdio = func(*mcpserver.MCPServer) error { return io.EOF }

	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after stdio closed")
	}
	select {
	case <-s.doneCh:
	default:
		t.Error("done channel still open after Run returned")
	}
}

func TestHandler_Health(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	status, err := h.handleHealth(rr, req)
	if err != nil {
		t.Fatalf("handleHealth returned error: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}

func TestHandler_CalculateGET(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest("GET", "/calculate?area_sqft=1000&zip=10007", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}

	var out struct {
		PostalCode    string  `json:"postal_code"`
		DeclaredUnits float64 `json:"declared_units"`
		DistanceKm    float64 `json:"distance_km"`
		Total         float64 `json:"total_kgco2e"`
		Formulas      []string
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if out.PostalCode != "10007" {
		t.Errorf("postal_code = %q", out.PostalCode)
	}
	if math.Abs(out.DeclaredUnits-92.903) > 1e-9 {
		t.Errorf("declared_units = %f", out.DeclaredUnits)
	}
	if want := distance.FallbackKm(pipeline.Origin, manhattan); math.Abs(out.DistanceKm-want) > 1e-9 {
		t.Errorf("distance_km = %f, want %f", out.DistanceKm, want)
	}
	if out.Total >= 0 {
		t.Errorf("expected net storage, got total %f", out.Total)
	}
}

func TestHandler_CalculatePOST(t *testing.T) {
	h := newTestHandler()
	body := strings.NewReader(`{"area_sqft": 500, "zip": "10007", "include_formulas": true}`)
	req := httptest.NewRequest("POST", "/calculate", body)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out struct {
		Formulas []string `json:"formulas"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(out.Formulas) == 0 {
		t.Error("expected formulas in response")
	}
}

func TestHandler_CalculateErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   core.ErrorCode
	}{
		{"non-numeric area", "GET", "/calculate?area_sqft=big&zip=10007", "", http.StatusBadRequest, core.ErrInvalidInput},
		{"missing area", "GET", "/calculate?zip=10007", "", http.StatusBadRequest, core.ErrInvalidInput},
		{"zero area", "GET", "/calculate?area_sqft=0&zip=10007", "", http.StatusBadRequest, core.ErrInvalidInput},
		{"unknown zip", "GET", "/calculate?area_sqft=100&zip=99999", "", http.StatusBadRequest, core.ErrInvalidZip},
		{"bad JSON", "POST", "/calculate", "{", http.StatusBadRequest, core.ErrInvalidInput},
		{"negative area body", "POST", "/calculate", `{"area_sqft": -5, "zip": "10007"}`, http.StatusBadRequest, core.ErrInvalidInput},
		{"wrong method", "DELETE", "/calculate", "", http.StatusMethodNotAllowed, core.ErrInvalidInput},
	}

	h := newTestHandler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			var mcpErr core.MCPError
			if err := json.Unmarshal(rr.Body.Bytes(), &mcpErr); err != nil {
				t.Fatalf("invalid error JSON: %v", err)
			}
			if mcpErr.Code != string(tt.code) {
				t.Errorf("expected code %s, got %s", tt.code, mcpErr.Code)
			}
		})
	}
}

func TestHandler_Factors(t *testing.T) {
	h := newTestHandler()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/factors", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out tools.EmissionFactorsOutput
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if out.Origin != pipeline.Origin {
		t.Errorf("origin = %v", out.Origin)
	}
}

func TestHandler_Version(t *testing.T) {
	h := newTestHandler()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/version", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "version") {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
}

func TestHandler_NotFound(t *testing.T) {
	h := newTestHandler()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/nope", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
