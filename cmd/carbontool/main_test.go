package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zaie-n/carbontool/pkg/core"
	"github.com/zaie-n/carbontool/pkg/pipeline"
)

func noEnv(string) string { return "" }

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags(nil, noEnv)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if cfg.osrmURL != core.DefaultOSRMBaseURL {
		t.Errorf("osrmURL = %q", cfg.osrmURL)
	}
	if cfg.routingTimeout != core.DefaultRoutingTimeout {
		t.Errorf("routingTimeout = %v", cfg.routingTimeout)
	}
	if cfg.offline || cfg.oneShot() || cfg.enableHTTP {
		t.Error("unexpected mode enabled by default")
	}
	if !cfg.enableMonitoring {
		t.Error("monitoring should be on by default")
	}
}

func TestParseFlagsEnvironment(t *testing.T) {
	env := map[string]string{
		"OSRM_BASE_URL":      "http://osrm.local:5000",
		"NOMINATIM_BASE_URL": "http://nominatim.local",
		"ROUTING_TIMEOUT":    "3s",
		"OFFLINE":            "true",
		"CACHE_SIZE":         "not-a-number",
	}
	cfg, err := parseFlags(nil, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if cfg.osrmURL != "http://osrm.local:5000" {
		t.Errorf("osrmURL = %q", cfg.osrmURL)
	}
	if cfg.nominatimURL != "http://nominatim.local" {
		t.Errorf("nominatimURL = %q", cfg.nominatimURL)
	}
	if cfg.routingTimeout != 3*time.Second {
		t.Errorf("routingTimeout = %v", cfg.routingTimeout)
	}
	if !cfg.offline {
		t.Error("expected offline from environment")
	}
	if cfg.cacheSize != 1024 {
		t.Errorf("invalid CACHE_SIZE should keep default, got %d", cfg.cacheSize)
	}

	// Flags win over the environment
	cfg, err = parseFlags([]string{"--offline=false", "--routing-timeout", "1s"}, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if cfg.offline || cfg.routingTimeout != time.Second {
		t.Errorf("flags did not override environment: %+v", cfg)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"area without zip", []string{"--area", "1000"}},
		{"zip without area", []string{"--zip", "10007"}},
		{"zero area without zip", []string{"--area", "0"}},
		{"empty zip without area", []string{"--zip", ""}},
		{"http-only without http", []string{"--http-only"}},
		{"unknown flag", []string{"--bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFlags(tt.args, noEnv); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseFlagsZeroAreaSelectsOneShot(t *testing.T) {
	cfg, err := parseFlags([]string{"--area", "0", "--zip", "10007"}, noEnv)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if !cfg.oneShot() {
		t.Fatal("explicit --area 0 should select one-shot mode")
	}

	calc, _ := buildCalculator(cfg)
	var out bytes.Buffer
	err = runOnce(context.Background(), calc, cfg.area, cfg.zip, &out)
	if !errors.Is(err, pipeline.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output on error, got %s", out.String())
	}
}

func newUpstreams(t *testing.T, osrm http.HandlerFunc) (nominatimURL, osrmURL string) {
	t.Helper()
	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("postalcode") != "10007" {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, `[{"lat":"40.7128","lon":"-74.0060","display_name":"New York"}]`)
	}))
	t.Cleanup(nominatim.Close)

	routing := httptest.NewServer(osrm)
	t.Cleanup(routing.Close)
	return nominatim.URL, routing.URL
}

func TestRunOnce(t *testing.T) {
	nominatimURL, osrmURL := newUpstreams(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"Ok","routes":[{"distance":21000,"duration":1500}]}`)
	})

	cfg, err := parseFlags([]string{
		"--nominatim-url", nominatimURL,
		"--osrm-url", osrmURL,
		"--nominatim-rps", "100",
		"--nominatim-burst", "10",
		"--area", "1000",
		"--zip", "10007",
	}, noEnv)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}

	calc, ups := buildCalculator(cfg)
	if ups.osrm == nil || ups.nominatim == nil {
		t.Fatal("expected both upstream clients")
	}

	var out bytes.Buffer
	if err := runOnce(context.Background(), calc, cfg.area, cfg.zip, &out); err != nil {
		t.Fatalf("runOnce() error = %v", err)
	}

	var result pipeline.Result
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out.String())
	}
	if math.Abs(result.DistanceKm-21) > 1e-9 {
		t.Errorf("distance_km = %f, want routed 21", result.DistanceKm)
	}
	if !strings.Contains(out.String(), "\n  ") {
		t.Error("expected indented output")
	}
}

func TestRunOnceOfflineSkipsRouting(t *testing.T) {
	called := false
	nominatimURL, osrmURL := newUpstreams(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	cfg, err := parseFlags([]string{
		"--nominatim-url", nominatimURL,
		"--osrm-url", osrmURL,
		"--offline",
	}, noEnv)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}

	calc, ups := buildCalculator(cfg)
	if ups.osrm != nil {
		t.Error("offline mode should not build a routing client")
	}

	var out bytes.Buffer
	if err := runOnce(context.Background(), calc, 1000, "10007", &out); err != nil {
		t.Fatalf("runOnce() error = %v", err)
	}
	if called {
		t.Error("routing service was called in offline mode")
	}
}

func TestRunOnceInvalidZip(t *testing.T) {
	nominatimURL, osrmURL := newUpstreams(t, func(w http.ResponseWriter, r *http.Request) {})

	cfg, err := parseFlags([]string{"--nominatim-url", nominatimURL, "--osrm-url", osrmURL, "--cache-size", "0"}, noEnv)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	calc, _ := buildCalculator(cfg)

	var out bytes.Buffer
	err = runOnce(context.Background(), calc, 1000, "99999", &out)
	if !errors.Is(err, pipeline.ErrInvalidZip) {
		t.Fatalf("expected ErrInvalidZip, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output on error, got %s", out.String())
	}
}
