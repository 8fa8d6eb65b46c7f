package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zaie-n/carbontool/pkg/cache"
	"github.com/zaie-n/carbontool/pkg/core"
	"github.com/zaie-n/carbontool/pkg/distance"
	"github.com/zaie-n/carbontool/pkg/geo"
	"github.com/zaie-n/carbontool/pkg/geocode"
	"github.com/zaie-n/carbontool/pkg/monitoring"
	"github.com/zaie-n/carbontool/pkg/pipeline"
	"github.com/zaie-n/carbontool/pkg/server"
	"github.com/zaie-n/carbontool/pkg/tools"
	"github.com/zaie-n/carbontool/pkg/tracing"
	ver "github.com/zaie-n/carbontool/pkg/version"
)

// config holds every command line setting.
type config struct {
	showVersion bool
	debug       bool

	// One-shot mode
	area      float64
	zip       string
	calculate bool

	// Upstreams
	osrmURL        string
	nominatimURL   string
	userAgent      string
	routingTimeout time.Duration
	offline        bool
	nominatimRPS   float64
	nominatimBurst int

	// Caching
	cacheSize int
	cacheTTL  time.Duration

	// HTTP transport
	enableHTTP  bool
	httpOnly    bool
	httpAddr    string
	httpBaseURL string
	httpRate    float64
	httpBurst   int

	// Monitoring
	enableMonitoring bool
	monitoringAddr   string
}

// parseFlags reads args into a config. Defaults come from getenv where a
// variable is documented for the flag.
func parseFlags(args []string, getenv func(string) string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("carbontool", flag.ContinueOnError)

	fs.BoolVar(&cfg.showVersion, "version", false, "Display version information")
	fs.BoolVar(&cfg.debug, "debug", envBool(getenv, "DEBUG", false), "Enable debug logging")

	fs.Float64Var(&cfg.area, "area", 0, "Wall area in square feet (one-shot mode, requires --zip)")
	fs.StringVar(&cfg.zip, "zip", "", "Destination US ZIP code (one-shot mode, requires --area)")

	fs.StringVar(&cfg.osrmURL, "osrm-url", envString(getenv, "OSRM_BASE_URL", core.DefaultOSRMBaseURL), "OSRM routing service base URL")
	fs.StringVar(&cfg.nominatimURL, "nominatim-url", envString(getenv, "NOMINATIM_BASE_URL", geocode.DefaultNominatimBaseURL), "Nominatim geocoding service base URL")
	fs.StringVar(&cfg.userAgent, "user-agent", envString(getenv, "USER_AGENT", core.DefaultUserAgent), "User-Agent string for upstream requests")
	fs.DurationVar(&cfg.routingTimeout, "routing-timeout", envDuration(getenv, "ROUTING_TIMEOUT", core.DefaultRoutingTimeout), "Timeout for each routing request")
	fs.BoolVar(&cfg.offline, "offline", envBool(getenv, "OFFLINE", false), "Skip routing and always use the straight-line estimate")
	fs.Float64Var(&cfg.nominatimRPS, "nominatim-rps", envFloat(getenv, "NOMINATIM_RPS", 1.0), "Nominatim rate limit in requests per second")
	fs.IntVar(&cfg.nominatimBurst, "nominatim-burst", envInt(getenv, "NOMINATIM_BURST", 1), "Nominatim rate limit burst size")

	fs.IntVar(&cfg.cacheSize, "cache-size", envInt(getenv, "CACHE_SIZE", 1024), "Entries kept in each lookup cache (0 disables caching)")
	fs.DurationVar(&cfg.cacheTTL, "cache-ttl", envDuration(getenv, "CACHE_TTL", 24*time.Hour), "Lifetime of cached lookups")

	fs.BoolVar(&cfg.enableHTTP, "enable-http", envBool(getenv, "ENABLE_HTTP", false), "Enable Streamable HTTP transport and JSON API (in addition to stdio)")
	fs.BoolVar(&cfg.httpOnly, "http-only", false, "Run HTTP transport only, skip stdio (requires --enable-http)")
	fs.StringVar(&cfg.httpAddr, "http-addr", envString(getenv, "HTTP_ADDR", server.DefaultHTTPTransportConfig().Addr), "HTTP server address")
	fs.StringVar(&cfg.httpBaseURL, "http-base-url", "", "Base URL for HTTP transport (auto-detected if empty)")
	fs.Float64Var(&cfg.httpRate, "http-rate", server.DefaultHTTPTransportConfig().RateLimit, "Per-client HTTP requests per second (0 disables limiting)")
	fs.IntVar(&cfg.httpBurst, "http-burst", server.DefaultHTTPTransportConfig().RateBurst, "Per-client HTTP burst size")

	fs.BoolVar(&cfg.enableMonitoring, "enable-monitoring", envBool(getenv, "ENABLE_MONITORING", true), "Enable Prometheus metrics and upstream health checks")
	fs.StringVar(&cfg.monitoringAddr, "monitoring-addr", envString(getenv, "MONITORING_ADDR", ":9090"), "Monitoring server address")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	// An explicit --area 0 still selects one-shot mode and is rejected by
	// the calculator, not here.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["area"] != set["zip"] {
		return cfg, errors.New("--area and --zip must be given together")
	}
	cfg.calculate = set["area"]
	if cfg.httpOnly && !cfg.enableHTTP {
		return cfg, errors.New("--http-only requires --enable-http")
	}
	return cfg, nil
}

// oneShot reports whether a single calculation was requested on the
// command line.
func (c config) oneShot() bool {
	return c.calculate
}

func envString(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(getenv func(string) string, key string, def bool) bool {
	if b, err := strconv.ParseBool(getenv(key)); err == nil {
		return b
	}
	return def
}

func envInt(getenv func(string) string, key string, def int) int {
	if n, err := strconv.Atoi(getenv(key)); err == nil {
		return n
	}
	return def
}

func envFloat(getenv func(string) string, key string, def float64) float64 {
	if f, err := strconv.ParseFloat(getenv(key), 64); err == nil {
		return f
	}
	return def
}

func envDuration(getenv func(string) string, key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(getenv(key)); err == nil {
		return d
	}
	return def
}

// upstreams holds the clients built from config so health checks can reach them.
type upstreams struct {
	nominatim *geocode.NominatimResolver
	osrm      *core.OSRMClient
}

// buildCalculator wires geocoding, routing and caching into a pipeline.
func buildCalculator(cfg config) (*pipeline.Calculator, upstreams) {
	var ups upstreams

	ups.nominatim = geocode.NewNominatimResolver(geocode.NominatimOptions{
		BaseURL:           cfg.nominatimURL,
		UserAgent:         cfg.userAgent,
		RequestsPerSecond: cfg.nominatimRPS,
		Burst:             cfg.nominatimBurst,
	})

	var geoCache cache.Cache[string, geo.Location] = cache.Nop[string, geo.Location]{}
	var routeCache cache.Cache[string, float64] = cache.Nop[string, float64]{}
	if cfg.cacheSize > 0 {
		geoCache = cache.NewLRU[string, geo.Location](cfg.cacheSize, cfg.cacheTTL)
		routeCache = cache.NewLRU[string, float64](cfg.cacheSize, cfg.cacheTTL)
	}

	opts := distance.Options{
		Timeout:    cfg.routingTimeout,
		RouteCache: routeCache,
	}
	if !cfg.offline {
		ups.osrm = core.NewOSRMClient(core.OSRMOptions{
			BaseURL:   cfg.osrmURL,
			Timeout:   cfg.routingTimeout,
			UserAgent: cfg.userAgent,
		})
		opts.Primary = distance.OSRMPrimary{Client: ups.osrm}
	}

	resolver := geocode.NewCachedResolver(ups.nominatim, geoCache)
	return pipeline.NewCalculator(resolver, distance.New(opts)), ups
}

// runOnce computes a single result and writes it to w as indented JSON.
func runOnce(ctx context.Context, calc *pipeline.Calculator, area float64, zip string, w io.Writer) error {
	result, err := calc.Compute(ctx, area, zip)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func main() {
	// A missing .env file is normal
	_ = godotenv.Load()

	cfg, err := parseFlags(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg),
	}))
	slog.SetDefault(logger)

	if cfg.showVersion {
		fmt.Println(ver.String())
		return
	}

	os.Exit(run(cfg, logger))
}

// run starts the configured mode and returns the process exit code.
func run(cfg config, logger *slog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitTracing(ctx, ver.BuildVersion)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()

		if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
			logger.Info("OpenTelemetry tracing enabled", "endpoint", endpoint)
		}
	}

	calc, ups := buildCalculator(cfg)

	if cfg.oneShot() {
		if err := runOnce(ctx, calc, cfg.area, cfg.zip, os.Stdout); err != nil {
			logger.Error("calculation failed", "area_sqft", cfg.area, "zip", cfg.zip, "error", err)
			fmt.Fprintln(os.Stderr, tools.CalculationError(err).Message)
			return 1
		}
		return 0
	}

	logger.Info("starting hempcrete carbon MCP server",
		"version", ver.BuildVersion,
		"log_level", logLevel(cfg).String(),
		"user_agent", cfg.userAgent,
		"osrm_url", cfg.osrmURL,
		"nominatim_url", cfg.nominatimURL,
		"offline", cfg.offline,
		"routing_timeout", cfg.routingTimeout,
		"cache_size", cfg.cacheSize,
		"http_enabled", cfg.enableHTTP,
		"monitoring_enabled", cfg.enableMonitoring)

	registry := tools.NewRegistry(logger, calc)
	s := server.NewServer(registry)

	var healthChecker *monitoring.HealthChecker
	if cfg.enableMonitoring {
		healthChecker = monitoring.NewHealthChecker(monitoring.ServiceName, ver.BuildVersion)
		defer healthChecker.Shutdown()

		for _, m := range startExternalServiceMonitoring(healthChecker, ups, logger) {
			defer m.Stop()
		}

		startMonitoringServer(ctx, cfg.monitoringAddr, logger)
	}

	if cfg.enableHTTP {
		transport := server.NewHTTPTransport(s.GetMCPServer(), server.NewHandler(logger, registry), server.HTTPTransportConfig{
			Addr:           cfg.httpAddr,
			BaseURL:        cfg.httpBaseURL,
			MCPEndpoint:    "/mcp",
			RateLimit:      cfg.httpRate,
			RateBurst:      cfg.httpBurst,
			MaxRequestSize: server.DefaultHTTPTransportConfig().MaxRequestSize,
			MaxHeaderBytes: server.DefaultHTTPTransportConfig().MaxHeaderBytes,
		}, logger)
		if healthChecker != nil {
			transport.SetHealthChecker(healthChecker)
		}

		go func() {
			logger.Info("starting Streamable HTTP transport", "addr", cfg.httpAddr, "endpoint", "/mcp")
			if err := transport.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP transport error", "error", err)
				stop()
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := transport.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown HTTP transport", "error", err)
			}
		}()
	}

	// Stdio blocks the main goroutine unless HTTP is enabled
	switch {
	case !cfg.enableHTTP:
		logger.Info("transport_enabled", "type", "stdio", "mode", "blocking")
		if err := s.RunWithContext(ctx); err != nil {
			logger.Error("server error", "error", err)
			return 1
		}
	case cfg.httpOnly:
		logger.Info("server_ready", "transports", []string{"http"}, "http_only", true)
		<-ctx.Done()
		logger.Info("shutdown signal received")
	default:
		go func() {
			logger.Info("transport_enabled", "type", "stdio", "mode", "background")
			if err := s.RunWithContext(ctx); err != nil {
				logger.Error("stdio transport error", "error", err)
			}
		}()

		logger.Info("server_ready", "transports", []string{"stdio", "http"})
		<-ctx.Done()
		logger.Info("shutdown signal received")
	}

	logger.Info("server stopped")
	return 0
}

func logLevel(cfg config) slog.Level {
	if cfg.debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// startMonitoringServer serves Prometheus metrics until ctx is done.
func startMonitoringServer(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	monitoringServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting Prometheus metrics server", "addr", addr)
		if err := monitoringServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("monitoring server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := monitoringServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown monitoring server", "error", err)
		}
	}()
}

// startExternalServiceMonitoring checks each configured upstream every 30 seconds.
func startExternalServiceMonitoring(hc *monitoring.HealthChecker, ups upstreams, logger *slog.Logger) []*monitoring.ConnectionMonitor {
	var monitors []*monitoring.ConnectionMonitor
	var names []string

	if ups.nominatim != nil {
		monitors = append(monitors, monitoring.NewConnectionMonitor("nominatim", hc, ups.nominatim.CheckHealth, 30*time.Second))
		names = append(names, "nominatim")
	}
	if ups.osrm != nil {
		monitors = append(monitors, monitoring.NewConnectionMonitor("osrm", hc, ups.osrm.CheckHealth, 30*time.Second))
		names = append(names, "osrm")
	}

	for _, m := range monitors {
		m.Start()
	}

	logger.Info("started external service monitoring",
		"services", names,
		"check_interval", "30s")
	return monitors
}
