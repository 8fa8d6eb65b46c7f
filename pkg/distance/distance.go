// Package distance estimates truck distances between two coordinates.
//
// An Estimator first asks a Primary routing service for a driving distance.
// When that fails for any reason it falls back to the great-circle distance
// scaled by WindingFactor. Estimate therefore never fails for valid
// coordinates.
package distance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zaie-n/carbontool/pkg/cache"
	"github.com/zaie-n/carbontool/pkg/core"
	"github.com/zaie-n/carbontool/pkg/geo"
	"github.com/zaie-n/carbontool/pkg/monitoring"
	"github.com/zaie-n/carbontool/pkg/tracing"
)

// WindingFactor approximates the ratio of road distance to great-circle distance.
const WindingFactor = 1.2

// Strategy names reported in logs, metrics and traces.
const (
	StrategyRouted    = "routed"
	StrategyHaversine = "haversine"
)

// Fallback reasons.
const (
	ReasonTimeout  = "timeout"
	ReasonStatus   = "status"
	ReasonNetwork  = "network"
	ReasonDecode   = "decode"
	ReasonNoRoute  = "no_route"
	ReasonInvalid  = "invalid"
	ReasonDisabled = "disabled"
)

// Primary returns a driving distance in kilometers.
type Primary interface {
	RouteDistanceKm(ctx context.Context, from, to geo.Location) (float64, error)
}

// OSRMPrimary adapts an OSRM client to Primary.
type OSRMPrimary struct {
	Client *core.OSRMClient
}

// RouteDistanceKm converts the first route's distance from meters.
func (p OSRMPrimary) RouteDistanceKm(ctx context.Context, from, to geo.Location) (float64, error) {
	meters, err := p.Client.RouteDistanceMeters(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return meters / 1000.0, nil
}

// Options configures an Estimator.
type Options struct {
	// Primary may be nil, in which case every estimate uses the fallback.
	Primary Primary

	// Timeout bounds each primary call.
	Timeout time.Duration

	// RouteCache memoizes routed distances. Fallback values are never stored.
	RouteCache cache.Cache[string, float64]
}

// Estimator is a two-strategy distance estimator.
type Estimator struct {
	primary Primary
	timeout time.Duration
	routes  *cache.ReadThrough[float64]
	logger  *slog.Logger
}

// New creates an Estimator.
func New(opts Options) *Estimator {
	if opts.Timeout <= 0 {
		opts.Timeout = core.DefaultRoutingTimeout
	}
	return &Estimator{
		primary: opts.Primary,
		timeout: opts.Timeout,
		routes:  cache.NewReadThrough(tracing.CacheTypeRoute, opts.RouteCache),
		logger:  slog.Default().With("component", "distance"),
	}
}

// Offline reports whether the estimator has no primary strategy.
func (e *Estimator) Offline() bool {
	return e.primary == nil
}

// Estimate returns the routed distance if available, otherwise the fallback.
func (e *Estimator) Estimate(ctx context.Context, from, to geo.Location) float64 {
	ctx, span := tracing.StartSpan(ctx, "distance.estimate")
	defer span.End()

	if km, ok := e.TryPrimary(ctx, from, to); ok {
		monitoring.RecordDistanceEstimate(StrategyRouted)
		span.SetAttributes(
			attribute.String(tracing.AttrDistanceStrategy, StrategyRouted),
			attribute.Float64(tracing.AttrDistanceKm, km),
		)
		return km
	}

	km := e.Fallback(from, to)
	monitoring.RecordDistanceEstimate(StrategyHaversine)
	span.SetAttributes(
		attribute.String(tracing.AttrDistanceStrategy, StrategyHaversine),
		attribute.Float64(tracing.AttrDistanceKm, km),
	)
	return km
}

// TryPrimary asks the routing service for a distance. Any failure is
// absorbed and reported as ok == false.
func (e *Estimator) TryPrimary(ctx context.Context, from, to geo.Location) (float64, bool) {
	if e.primary == nil {
		e.fallback(ctx, ReasonDisabled, nil)
		return 0, false
	}

	km, hit, err := e.routes.Get(ctx, routeKey(from, to), func(ctx context.Context) (float64, error) {
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		km, err := e.primary.RouteDistanceKm(ctx, from, to)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(km) || math.IsInf(km, 0) || km < 0 {
			return 0, errInvalidDistance{km}
		}
		return km, nil
	})
	if err != nil {
		e.fallback(ctx, Classify(err), err)
		return 0, false
	}

	tracing.SetAttributes(ctx, tracing.CacheAttributes(tracing.CacheTypeRoute, hit)...)
	return km, true
}

// Fallback returns the great-circle distance scaled by WindingFactor.
func (e *Estimator) Fallback(from, to geo.Location) float64 {
	return FallbackKm(from, to)
}

// FallbackKm is the estimate used when routing is unavailable.
func FallbackKm(from, to geo.Location) float64 {
	return geo.HaversineKm(from, to) * WindingFactor
}

func (e *Estimator) fallback(ctx context.Context, reason string, err error) {
	monitoring.RecordDistanceFallback(reason)
	tracing.AddEvent(ctx, "distance_fallback",
		trace.WithAttributes(attribute.String(tracing.AttrFallbackReason, reason)),
	)
	if err != nil {
		e.logger.Info("routing unavailable, using great-circle estimate", "reason", reason, "error", err)
	}
}

func routeKey(from, to geo.Location) string {
	return from.String() + ";" + to.String()
}

type errInvalidDistance struct {
	km float64
}

func (e errInvalidDistance) Error() string {
	return fmt.Sprintf("routing service returned invalid distance %v", e.km)
}

// Classify names the kind of routing failure for metrics. Callers never
// branch on it; every failure takes the same fallback path.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var invalid errInvalidDistance
	if errors.As(err, &invalid) {
		return ReasonInvalid
	}

	var mcpErr *core.MCPError
	if errors.As(err, &mcpErr) {
		switch core.ErrorCode(mcpErr.Code) {
		case core.ErrServiceTimeout:
			return ReasonTimeout
		case core.ErrParseError:
			return ReasonDecode
		case core.ErrNoResults:
			return ReasonNoRoute
		case core.ErrNetworkError:
			return ReasonNetwork
		default:
			return ReasonStatus
		}
	}
	return ReasonNetwork
}
