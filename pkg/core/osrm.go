package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zaie-n/carbontool/pkg/geo"
	"github.com/zaie-n/carbontool/pkg/monitoring"
	"github.com/zaie-n/carbontool/pkg/tracing"
)

const (
	// DefaultOSRMBaseURL is the public OSRM demo server.
	DefaultOSRMBaseURL = "https://router.project-osrm.org"

	// DefaultRoutingTimeout bounds a single route request.
	DefaultRoutingTimeout = 10 * time.Second
)

// OSRMOptions configures an OSRMClient.
type OSRMOptions struct {
	// BaseURL of the OSRM service, without trailing path
	BaseURL string

	// Profile is the routing profile segment of the URL ("driving")
	Profile string

	// Timeout bounds each request
	Timeout time.Duration

	// UserAgent sent with every request
	UserAgent string

	// Client is the HTTP client to use for requests
	Client *http.Client
}

// DefaultOSRMOptions returns the options used by the calculator.
func DefaultOSRMOptions() OSRMOptions {
	return OSRMOptions{
		BaseURL:   DefaultOSRMBaseURL,
		Profile:   "driving",
		Timeout:   DefaultRoutingTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// OSRMRoute represents a route returned by the OSRM service
type OSRMRoute struct {
	Duration float64  `json:"duration"` // Duration in seconds
	Distance *float64 `json:"distance"` // Distance in meters, nil when the field is absent
}

// OSRMWaypoint represents a waypoint in the route
type OSRMWaypoint struct {
	Name     string    `json:"name"`     // Street name
	Location []float64 `json:"location"` // Coordinates [lon, lat]
	Distance float64   `json:"distance"` // Distance from requested coordinate
}

// OSRMResult represents the response from the route service
type OSRMResult struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Routes    []OSRMRoute    `json:"routes"`
	Waypoints []OSRMWaypoint `json:"waypoints"`
}

// OSRMClient queries an OSRM route service.
type OSRMClient struct {
	opts   OSRMOptions
	logger *slog.Logger
}

// NewOSRMClient fills unset options with defaults.
func NewOSRMClient(opts OSRMOptions) *OSRMClient {
	def := DefaultOSRMOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.Profile == "" {
		opts.Profile = def.Profile
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Client == nil {
		opts.Client = NewHTTPClient(opts.Timeout)
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &OSRMClient{
		opts:   opts,
		logger: slog.Default().With("service", tracing.ServiceOSRM),
	}
}

// BaseURL returns the configured service root.
func (c *OSRMClient) BaseURL() string {
	return c.opts.BaseURL
}

// RouteURL builds {base}/route/v1/{profile}/{fromLon},{fromLat};{toLon},{toLat}?overview=false.
func (c *OSRMClient) RouteURL(from, to geo.Location) string {
	// OSRM expects coordinates as longitude,latitude
	coords := fmt.Sprintf("%.6f,%.6f;%.6f,%.6f",
		from.Longitude, from.Latitude,
		to.Longitude, to.Latitude)

	q := url.Values{}
	q.Set("overview", "false")

	return fmt.Sprintf("%s/route/v1/%s/%s?%s", c.opts.BaseURL, c.opts.Profile, coords, q.Encode())
}

// Route fetches the driving route between two points in a single attempt.
func (c *OSRMClient) Route(ctx context.Context, from, to geo.Location) (*OSRMResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	reqURL := c.RouteURL(from, to)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, NewError(ErrInternalError, "failed to build route request").WithCause(err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := WithRetry(ctx, req, c.opts.Client, SingleAttempt)
	if err != nil {
		monitoring.RecordExternalServiceRequest(tracing.ServiceOSRM, "route", time.Since(start), false)
		return nil, err
	}
	defer resp.Body.Close()

	result := &OSRMResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		monitoring.RecordExternalServiceRequest(tracing.ServiceOSRM, "route", time.Since(start), false)
		return nil, NewError(ErrParseError, "failed to decode route response").WithCause(err)
	}
	monitoring.RecordExternalServiceRequest(tracing.ServiceOSRM, "route", time.Since(start), true)

	if result.Code != "" && result.Code != "Ok" {
		return nil, NewError(ErrNoResults, fmt.Sprintf("OSRM error %s: %s", result.Code, result.Message))
	}
	if len(result.Routes) == 0 {
		return nil, NewError(ErrNoResults, "no routes found")
	}
	if result.Routes[0].Distance == nil {
		return nil, NewError(ErrParseError, "route has no distance")
	}

	c.logger.Debug("route fetched", "from", from, "to", to, "distance_m", *result.Routes[0].Distance)
	return result, nil
}

// RouteDistanceMeters returns the distance of the first route.
func (c *OSRMClient) RouteDistanceMeters(ctx context.Context, from, to geo.Location) (float64, error) {
	result, err := c.Route(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return *result.Routes[0].Distance, nil
}

// CheckHealth calls the nearest service, used by the connection monitor.
func (c *OSRMClient) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/nearest/v1/%s/0,0", c.opts.BaseURL, c.opts.Profile), nil)
	if err != nil {
		return fmt.Errorf("failed to create osrm health check request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("osrm health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("osrm health check returned status %d", resp.StatusCode)
	}
	return nil
}
