package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/time/rate"

	"github.com/zaie-n/carbontool/pkg/core"
	"github.com/zaie-n/carbontool/pkg/monitoring"
)

// HTTPTransportConfig holds configuration for the HTTP transport
type HTTPTransportConfig struct {
	Addr           string  `json:"addr"`             // HTTP server address (e.g., ":7082")
	BaseURL        string  `json:"base_url"`         // Base URL for service discovery
	MCPEndpoint    string  `json:"mcp_endpoint"`     // Streamable MCP endpoint path (default: "/mcp")
	RateLimit      float64 `json:"rate_limit"`       // Requests per second per IP (0 = disabled)
	RateBurst      int     `json:"rate_burst"`       // Burst size for rate limiter
	MaxRequestSize int64   `json:"max_request_size"` // Maximum request body size in bytes
	MaxHeaderBytes int     `json:"max_header_bytes"` // Maximum header size in bytes
	TLSCertFile    string  `json:"tls_cert_file"`    // Path to TLS certificate file
	TLSKeyFile     string  `json:"tls_key_file"`     // Path to TLS private key file
}

// DefaultHTTPTransportConfig returns sensible defaults
func DefaultHTTPTransportConfig() HTTPTransportConfig {
	return HTTPTransportConfig{
		Addr:           ":7082",
		MCPEndpoint:    "/mcp",
		RateLimit:      10,
		RateBurst:      20,
		MaxRequestSize: 1 << 20,
		MaxHeaderBytes: 1 << 20,
	}
}

// HTTPTransport serves streamable MCP, the JSON API and health endpoints on one listener.
type HTTPTransport struct {
	config        HTTPTransportConfig
	logger        *slog.Logger
	mcpHTTP       *mcpserver.StreamableHTTPServer
	api           *Handler
	mux           *http.ServeMux
	httpSrv       *http.Server
	rateLimiter   *RateLimiter
	healthChecker *monitoring.HealthChecker
	mu            sync.RWMutex
}

// NewHTTPTransport creates a new HTTP transport instance
func NewHTTPTransport(mcpServer *mcpserver.MCPServer, api *Handler, config HTTPTransportConfig, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MCPEndpoint == "" {
		config.MCPEndpoint = DefaultHTTPTransportConfig().MCPEndpoint
	}

	t := &HTTPTransport{
		config:  config,
		logger:  logger,
		mcpHTTP: mcpserver.NewStreamableHTTPServer(mcpServer),
		api:     api,
		mux:     http.NewServeMux(),
	}
	if config.RateLimit > 0 {
		t.rateLimiter = NewRateLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}

	t.setupRoutes()
	return t
}

// SetHealthChecker sets the health checker for the HTTP transport
func (t *HTTPTransport) SetHealthChecker(hc *monitoring.HealthChecker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.healthChecker = hc
}

// setupRoutes configures all HTTP routes
func (t *HTTPTransport) setupRoutes() {
	t.mux.HandleFunc("/", t.handleServiceDiscovery)

	// Health checks are never rate limited
	t.mux.HandleFunc("/health", t.handleHealth)
	t.mux.HandleFunc("/ready", t.handleReady)
	t.mux.HandleFunc("/live", t.handleLive)

	t.mux.Handle(t.config.MCPEndpoint, t.limit(t.mcpHTTP))
	t.mux.Handle("/calculate", t.limit(t.api))
	t.mux.Handle("/factors", t.limit(t.api))
	t.mux.Handle("/version", t.api)
}

func (t *HTTPTransport) limit(next http.Handler) http.Handler {
	if t.rateLimiter == nil {
		return next
	}
	return t.rateLimiter.Middleware(next)
}

// Handler returns the routed handler wrapped in the middleware chain.
func (t *HTTPTransport) Handler() http.Handler {
	handler := http.Handler(t.mux)
	handler = TracingMiddleware()(handler)
	handler = LoggingMiddleware(t.logger)(handler)
	handler = SecurityHeaders(handler)
	if t.config.MaxRequestSize > 0 {
		handler = RequestSizeLimiter(t.config.MaxRequestSize)(handler)
	}
	return handler
}

// handleServiceDiscovery lists the endpoints of this transport
func (t *HTTPTransport) handleServiceDiscovery(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, core.NewError(core.ErrNoResults, fmt.Sprintf("no route for %s", r.URL.Path)))
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	baseURL := t.config.BaseURL
	if baseURL == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, r.Host)
	}

	discovery := map[string]interface{}{
		"service":   ServerName,
		"transport": "streamable-http",
		"endpoints": map[string]string{
			"mcp":       baseURL + t.config.MCPEndpoint,
			"calculate": baseURL + "/calculate",
			"factors":   baseURL + "/factors",
		},
		"capabilities": map[string]interface{}{
			"tools":   true,
			"prompts": true,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(discovery); err != nil {
		t.logger.Error("failed to encode service discovery response", "error", err)
	}
}

func (t *HTTPTransport) checker() *monitoring.HealthChecker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.healthChecker
}

// handleHealth provides comprehensive health check endpoint
func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if hc := t.checker(); hc != nil {
		hc.HealthHandler()(w, r)
		return
	}
	t.api.ServeHTTP(w, r)
}

// handleReady provides Kubernetes-style readiness check
func (t *HTTPTransport) handleReady(w http.ResponseWriter, r *http.Request) {
	if hc := t.checker(); hc != nil {
		hc.ReadinessHandler()(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"ready": true, "status": "ok"})
}

// handleLive provides Kubernetes-style liveness check
func (t *HTTPTransport) handleLive(w http.ResponseWriter, r *http.Request) {
	if hc := t.checker(); hc != nil {
		hc.LivenessHandler()(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"alive": true})
}

// Start begins serving HTTP requests
func (t *HTTPTransport) Start() error {
	t.mu.Lock()

	if t.httpSrv != nil {
		t.mu.Unlock()
		return core.NewError(core.ErrInternalError, "HTTP transport already started").
			WithGuidance("The HTTP transport is already running. Stop it before starting again.")
	}

	t.httpSrv = &http.Server{
		Addr:           t.config.Addr,
		Handler:        t.Handler(),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: t.config.MaxHeaderBytes,
	}
	srv := t.httpSrv
	t.mu.Unlock()

	tlsEnabled := t.config.TLSCertFile != "" && t.config.TLSKeyFile != ""
	t.logger.Info("starting HTTP transport",
		"addr", t.config.Addr,
		"mcp_endpoint", t.config.MCPEndpoint,
		"rate_limit", t.config.RateLimit,
		"tls_enabled", tlsEnabled)

	if tlsEnabled {
		return srv.ListenAndServeTLS(t.config.TLSCertFile, t.config.TLSKeyFile)
	}
	return srv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP transport
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rateLimiter != nil {
		t.rateLimiter.Stop()
	}
	if t.httpSrv == nil {
		return nil
	}

	t.logger.Info("shutting down HTTP transport")

	if err := t.mcpHTTP.Shutdown(ctx); err != nil {
		t.logger.Error("failed to shutdown streamable MCP server", "error", err)
	}

	err := t.httpSrv.Shutdown(ctx)
	t.httpSrv = nil
	return err
}

// GetConfig returns the transport configuration
func (t *HTTPTransport) GetConfig() HTTPTransportConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.config
}
