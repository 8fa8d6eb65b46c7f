package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zaie-n/carbontool/pkg/geo"
)

// mock OSRM JSON response
const mockOSRMResponse = `{"code":"Ok","routes":[{"distance":15234.5,"duration":1200}],"waypoints":[{"name":"Main St","location":[-74.1419,40.684],"distance":3.2}]}`

var (
	portNewark = geo.Location{Latitude: 40.6840, Longitude: -74.1419}
	manhattan  = geo.Location{Latitude: 40.7128, Longitude: -74.0060}
)

func newOSRMServer(t *testing.T, handler http.HandlerFunc) *OSRMClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts := DefaultOSRMOptions()
	opts.BaseURL = server.URL
	opts.Timeout = 500 * time.Millisecond
	return NewOSRMClient(opts)
}

func TestRouteURL(t *testing.T) {
	client := NewOSRMClient(OSRMOptions{BaseURL: "https://osrm.example.com/"})
	got := client.RouteURL(portNewark, manhattan)
	want := "https://osrm.example.com/route/v1/driving/-74.141900,40.684000;-74.006000,40.712800?overview=false"
	if got != want {
		t.Errorf("RouteURL() = %s, want %s", got, want)
	}
}

func TestNewOSRMClientDefaults(t *testing.T) {
	client := NewOSRMClient(OSRMOptions{})
	if client.BaseURL() != DefaultOSRMBaseURL {
		t.Errorf("BaseURL() = %s, want %s", client.BaseURL(), DefaultOSRMBaseURL)
	}
	if client.opts.Timeout != DefaultRoutingTimeout {
		t.Errorf("Timeout = %v, want %v", client.opts.Timeout, DefaultRoutingTimeout)
	}
	if client.opts.Client == nil {
		t.Error("expected default HTTP client")
	}
}

func TestRouteDistanceMeters(t *testing.T) {
	var gotPath, gotQuery, gotUA string
	client := newOSRMServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(mockOSRMResponse))
	})

	meters, err := client.RouteDistanceMeters(context.Background(), portNewark, manhattan)
	if err != nil {
		t.Fatalf("RouteDistanceMeters failed: %v", err)
	}
	if meters != 15234.5 {
		t.Errorf("distance = %f, want 15234.5", meters)
	}
	if !strings.HasPrefix(gotPath, "/route/v1/driving/-74.141900,40.684000;") {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotQuery != "overview=false" {
		t.Errorf("unexpected query %s", gotQuery)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}
}

func TestRouteErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantCode ErrorCode
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantCode: ErrInternalError,
		},
		{
			name: "unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantCode: ErrServiceUnavailable,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"code":`))
			},
			wantCode: ErrParseError,
		},
		{
			name: "no route code",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"code":"NoRoute","message":"Impossible route between points"}`))
			},
			wantCode: ErrNoResults,
		},
		{
			name: "empty routes",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"code":"Ok","routes":[]}`))
			},
			wantCode: ErrNoResults,
		},
		{
			name: "route without fields",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"code":"Ok","routes":[{}]}`))
			},
			wantCode: ErrParseError,
		},
		{
			name: "route without distance",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"routes":[{"duration":12}]}`))
			},
			wantCode: ErrParseError,
		},
		{
			name: "slow server",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(2 * time.Second):
				case <-r.Context().Done():
				}
			},
			wantCode: ErrServiceTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newOSRMServer(t, tt.handler)

			_, err := client.RouteDistanceMeters(context.Background(), portNewark, manhattan)
			if err == nil {
				t.Fatal("expected error")
			}
			var mcpErr *MCPError
			if !errors.As(err, &mcpErr) {
				t.Fatalf("expected *MCPError, got %T: %v", err, err)
			}
			if mcpErr.Code != string(tt.wantCode) {
				t.Errorf("code = %s, want %s", mcpErr.Code, tt.wantCode)
			}
		})
	}
}

func TestRouteSingleAttempt(t *testing.T) {
	count := 0
	client := newOSRMServer(t, func(w http.ResponseWriter, r *http.Request) {
		count++
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := client.RouteDistanceMeters(context.Background(), portNewark, manhattan); err == nil {
		t.Fatal("expected error")
	}
	if count != 1 {
		t.Errorf("expected 1 request, got %d", count)
	}
}

func TestRouteCancelledContext(t *testing.T) {
	client := newOSRMServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(mockOSRMResponse))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.RouteDistanceMeters(ctx, portNewark, manhattan)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestOSRMCheckHealth(t *testing.T) {
	healthy := newOSRMServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/nearest/v1/driving/") {
			t.Errorf("unexpected health path %s", r.URL.Path)
		}
		w.Write([]byte(`{"code":"Ok"}`))
	})
	if err := healthy.CheckHealth(context.Background()); err != nil {
		t.Errorf("CheckHealth() = %v, want nil", err)
	}

	broken := newOSRMServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if err := broken.CheckHealth(context.Background()); err == nil {
		t.Error("expected health check error for 503")
	}
}
