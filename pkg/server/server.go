// Package server exposes the carbon calculator over MCP and plain HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/zaie-n/carbontool/pkg/core"
	"github.com/zaie-n/carbontool/pkg/tools"
	"github.com/zaie-n/carbontool/pkg/version"
)

// ServerName is the name of the MCP server
const ServerName = "carbontool"

// Server encapsulates the MCP server with the carbon tools.
type Server struct {
	srv          *mcpserver.MCPServer
	logger       *slog.Logger
	stopCh       chan struct{}
	doneCh       chan struct{}
	running      bool
	mu           sync.Mutex
	once         sync.Once // Ensure we only close stopCh once
	ctxCancel    context.CancelFunc
	ctxGoroutine sync.Once // Ensure we only start one context goroutine

	// serveStdio is replaced in tests
	serveStdio func(*mcpserver.MCPServer) error
}

// NewServer creates a new MCP server with every tool of registry registered.
func NewServer(registry *tools.Registry) *Server {
	logger := slog.Default()
	logger.Info("initializing carbon calculator MCP server",
		"name", ServerName,
		"version", version.BuildVersion)

	srv := mcpserver.NewMCPServer(
		ServerName,
		version.BuildVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	registry.RegisterAll(srv)

	return &Server{
		srv:    srv,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		serveStdio: func(s *mcpserver.MCPServer) error {
			return mcpserver.ServeStdio(s)
		},
	}
}

// Run starts the MCP server using stdin/stdout for communication.
// This method blocks until the server is stopped or an error occurs.
func (s *Server) Run() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		defer close(s.doneCh)
		err := s.serveStdio(s.srv)
		if err != nil && err != io.EOF {
			s.logger.Error("server error", "error", err)
		}

		// Stdio closed, so release Run
		s.Shutdown()
	}()

	<-s.stopCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	<-s.doneCh
	return nil
}

// RunWithContext starts the MCP server and shuts it down when ctx is done.
func (s *Server) RunWithContext(ctx context.Context) error {
	s.ctxGoroutine.Do(func() {
		derived, cancel := context.WithCancel(ctx)
		s.ctxCancel = cancel

		go func() {
			select {
			case <-derived.Done():
				s.Shutdown()
			case <-s.stopCh:
			}
		}()
	})

	return s.Run()
}

// Shutdown initiates a graceful shutdown of the server.
// It does not block and returns immediately.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.once.Do(func() {
		close(s.stopCh)
	})

	if s.ctxCancel != nil {
		s.ctxCancel()
	}
}

// GetMCPServer returns the underlying MCP server instance for HTTP transport
func (s *Server) GetMCPServer() *mcpserver.MCPServer {
	return s.srv
}

// CalculateRequest is the body accepted by POST /calculate.
type CalculateRequest struct {
	AreaSqFt        float64 `json:"area_sqft"`
	Zip             string  `json:"zip"`
	IncludeFormulas bool    `json:"include_formulas,omitempty"`
}

// Handler serves the plain JSON API on top of the tool registry.
type Handler struct {
	logger   *slog.Logger
	registry *tools.Registry
}

// NewHandler creates a new server handler
func NewHandler(logger *slog.Logger, registry *tools.Registry) *Handler {
	return &Handler{
		logger:   logger,
		registry: registry,
	}
}

// ServeHTTP implements the http.Handler interface
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := requestID(r)

	var status int
	var err error

	switch r.URL.Path {
	case "/health":
		status, err = h.handleHealth(w, r)
	case "/calculate":
		status, err = h.handleCalculate(w, r)
	case "/factors":
		status, err = h.handleTool(w, r, "emission_factors", nil)
	case "/version":
		status, err = h.handleTool(w, r, "get_version", nil)
	default:
		status, err = writeError(w, core.NewError(core.ErrNoResults, fmt.Sprintf("no route for %s", r.URL.Path)))
	}

	duration := time.Since(start)
	if err != nil {
		h.logger.Error("request failed",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", duration,
			"error", err)
		return
	}
	h.logger.Debug("request completed",
		"request_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"duration", duration)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) (int, error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		return http.StatusOK, err
	}
	return http.StatusOK, nil
}

// handleCalculate runs hempcrete_carbon from query parameters or a JSON body.
func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) (int, error) {
	var in CalculateRequest

	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		areaStr := strings.TrimSpace(q.Get("area_sqft"))
		area, err := strconv.ParseFloat(areaStr, 64)
		if err != nil {
			return writeError(w, core.NewValidationError(core.ErrInvalidInput,
				fmt.Sprintf("area_sqft must be a number, got %q", areaStr)).
				WithGuidance(tools.GuidanceArea))
		}
		in.AreaSqFt = area
		in.Zip = q.Get("zip")
		in.IncludeFormulas = q.Get("formulas") == "true"

	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return writeError(w, core.NewValidationError(core.ErrInvalidInput,
				fmt.Sprintf("invalid JSON body: %v", err)).
				WithSuggestions(tools.GetToolUsageExample("hempcrete_carbon")))
		}

	default:
		w.Header().Set("Allow", "GET, POST")
		return writeErrorStatus(w, http.StatusMethodNotAllowed, core.NewError(core.ErrInvalidInput, "method not allowed"))
	}

	return h.handleTool(w, r, "hempcrete_carbon", map[string]any{
		"area_sqft":        in.AreaSqFt,
		"zip":              in.Zip,
		"include_formulas": in.IncludeFormulas,
	})
}

// handleTool calls a tool and writes its text content, mapping error results to a status.
func (h *Handler) handleTool(w http.ResponseWriter, r *http.Request, name string, args map[string]any) (int, error) {
	result, err := h.registry.Call(r.Context(), name, args)
	if err != nil {
		return writeError(w, core.NewError(core.ErrInternalError, err.Error()))
	}

	status := http.StatusOK
	if mcpErr, ok := tools.ResultError(result); ok {
		status = mcpErr.HTTPStatus()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(tools.ResultText(result))); err != nil {
		return status, err
	}
	return status, nil
}

// writeError writes e as JSON with its mapped status.
func writeError(w http.ResponseWriter, e *core.MCPError) (int, error) {
	return writeErrorStatus(w, e.HTTPStatus(), e)
}

func writeErrorStatus(w http.ResponseWriter, status int, e *core.MCPError) (int, error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return status, json.NewEncoder(w).Encode(e)
}
