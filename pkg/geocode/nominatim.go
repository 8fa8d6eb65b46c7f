package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/zaie-n/carbontool/pkg/core"
	"github.com/zaie-n/carbontool/pkg/geo"
	"github.com/zaie-n/carbontool/pkg/monitoring"
	"github.com/zaie-n/carbontool/pkg/tracing"
)

// DefaultNominatimBaseURL is the public OpenStreetMap Nominatim instance.
const DefaultNominatimBaseURL = "https://nominatim.openstreetmap.org"

// NominatimOptions configures a NominatimResolver.
type NominatimOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// RequestsPerSecond and Burst bound outbound traffic. The public
	// instance allows at most one request per second.
	RequestsPerSecond float64
	Burst             int

	Retry  core.RetryOptions
	Client *http.Client
}

// DefaultNominatimOptions returns options suitable for the public instance.
func DefaultNominatimOptions() NominatimOptions {
	return NominatimOptions{
		BaseURL:           DefaultNominatimBaseURL,
		UserAgent:         core.DefaultUserAgent,
		Timeout:           10 * time.Second,
		RequestsPerSecond: 1,
		Burst:             1,
		Retry:             core.DefaultRetryOptions,
	}
}

// nominatimPlace is one element of a /search response
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NominatimResolver resolves ZIP codes with the Nominatim search API.
type NominatimResolver struct {
	opts    NominatimOptions
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewNominatimResolver fills unset options with defaults.
func NewNominatimResolver(opts NominatimOptions) *NominatimResolver {
	def := DefaultNominatimOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = def.RequestsPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = def.Burst
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = def.Retry
	}
	if opts.Client == nil {
		opts.Client = core.NewHTTPClient(opts.Timeout)
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &NominatimResolver{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		logger:  slog.Default().With("service", tracing.ServiceNominatim),
	}
}

// SearchURL builds the postal code search URL for zip.
func (n *NominatimResolver) SearchURL(zip string) string {
	q := url.Values{}
	q.Set("postalcode", zip)
	q.Set("country", "USA")
	q.Set("format", "json")
	q.Set("limit", "1")
	return fmt.Sprintf("%s/search?%s", n.opts.BaseURL, q.Encode())
}

// Resolve implements Resolver. Every failure wraps ErrNotFound.
func (n *NominatimResolver) Resolve(ctx context.Context, postalCode string) (geo.Location, error) {
	zip, err := NormalizeZIP(postalCode)
	if err != nil {
		return geo.Location{}, err
	}

	ctx, span := tracing.StartSpan(ctx, "geocode.nominatim",
		trace.WithAttributes(attribute.String(tracing.AttrPostalCode, zip)),
	)
	defer span.End()

	// The limiter wait and the request share one budget
	ctx, cancel := context.WithTimeout(ctx, n.opts.Timeout)
	defer cancel()

	if err := n.wait(ctx); err != nil {
		span.RecordError(err)
		return geo.Location{}, unavailable(postalCode, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.SearchURL(zip), nil)
	if err != nil {
		return geo.Location{}, notFound(postalCode, err)
	}
	req.Header.Set("User-Agent", n.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := core.WithRetry(ctx, req, n.opts.Client, n.opts.Retry)
	if err != nil {
		monitoring.RecordExternalServiceRequest(tracing.ServiceNominatim, "search", time.Since(start), false)
		span.RecordError(err)
		n.logger.Warn("geocoding request failed", "zip", zip, "error", err)
		return geo.Location{}, unavailable(postalCode, err)
	}
	defer resp.Body.Close()

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		monitoring.RecordExternalServiceRequest(tracing.ServiceNominatim, "search", time.Since(start), false)
		return geo.Location{}, notFound(postalCode, fmt.Errorf("decode search response: %w", err))
	}
	monitoring.RecordExternalServiceRequest(tracing.ServiceNominatim, "search", time.Since(start), true)

	if len(places) == 0 {
		n.logger.Debug("no geocoding results", "zip", zip)
		return geo.Location{}, notFound(postalCode, nil)
	}

	loc, err := places[0].location()
	if err != nil {
		return geo.Location{}, notFound(postalCode, err)
	}

	n.logger.Debug("resolved postal code", "zip", zip, "location", loc, "name", places[0].DisplayName)
	return loc, nil
}

func (p nominatimPlace) location() (geo.Location, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return geo.Location{}, fmt.Errorf("parse latitude %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return geo.Location{}, fmt.Errorf("parse longitude %q: %w", p.Lon, err)
	}
	loc := geo.Location{Latitude: lat, Longitude: lon}
	if err := loc.Validate(); err != nil {
		return geo.Location{}, err
	}
	return loc, nil
}

// wait blocks until the limiter admits a request.
func (n *NominatimResolver) wait(ctx context.Context) error {
	if n.limiter.Allow() {
		return nil
	}

	start := time.Now()
	tracing.AddEvent(ctx, "rate_limit_wait",
		trace.WithAttributes(attribute.String(tracing.AttrRateLimitService, tracing.ServiceNominatim)),
	)

	err := n.limiter.Wait(ctx)

	waited := time.Since(start)
	monitoring.RecordRateLimitWait(tracing.ServiceNominatim, waited)
	tracing.SetAttributes(ctx,
		attribute.String(tracing.AttrRateLimitService, tracing.ServiceNominatim),
		attribute.Int64(tracing.AttrRateLimitWaitMs, waited.Milliseconds()),
	)
	return err
}

// CheckHealth queries the /status endpoint.
func (n *NominatimResolver) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.opts.BaseURL+"/status", nil)
	if err != nil {
		return fmt.Errorf("failed to create nominatim health check request: %w", err)
	}
	req.Header.Set("User-Agent", n.opts.UserAgent)

	if err := n.wait(ctx); err != nil {
		return err
	}

	resp, err := n.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("nominatim health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nominatim health check returned status %d", resp.StatusCode)
	}
	return nil
}
