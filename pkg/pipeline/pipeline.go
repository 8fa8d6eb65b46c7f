// Package pipeline computes the life-cycle carbon balance of a hempcrete
// wall from its area and destination postal code.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zaie-n/carbontool/pkg/emission"
	"github.com/zaie-n/carbontool/pkg/geo"
	"github.com/zaie-n/carbontool/pkg/geocode"
	"github.com/zaie-n/carbontool/pkg/monitoring"
	"github.com/zaie-n/carbontool/pkg/tracing"
)

// Origin is Port Newark, NJ, where every shipment starts.
var Origin = geo.Location{Latitude: 40.6840, Longitude: -74.1419}

var (
	// ErrInvalidInput reports a wall area that is not a positive finite number.
	ErrInvalidInput = errors.New("wall area must be a positive number of square feet")

	// ErrInvalidZip reports a postal code that could not be resolved.
	ErrInvalidZip = errors.New("postal code could not be resolved")
)

// Outcome labels for the calculations metric.
const (
	OutcomeSuccess      = "success"
	OutcomeInvalidInput = "invalid_input"
	OutcomeInvalidZip   = "invalid_zip"
)

// DistanceEstimator returns a truck distance in kilometers. It never fails.
type DistanceEstimator interface {
	Estimate(ctx context.Context, from, to geo.Location) float64
}

// Result is a complete carbon balance.
type Result struct {
	WallAreaSqFt  float64            `json:"wall_area_sqft"`
	PostalCode    string             `json:"postal_code"`
	DeclaredUnits float64            `json:"declared_units"`
	DistanceKm    float64            `json:"distance_km"`
	Origin        geo.Location       `json:"origin"`
	Destination   geo.Location       `json:"destination"`
	Breakdown     emission.Breakdown `json:"breakdown"`
	Total         float64            `json:"total_kgco2e"`
}

// Calculator runs the linear pipeline: validate, convert, resolve,
// estimate distance, apply the emission model.
type Calculator struct {
	resolver  geocode.Resolver
	estimator DistanceEstimator
	model     *emission.Model
	origin    geo.Location
	logger    *slog.Logger
}

// Option customizes a Calculator.
type Option func(*Calculator)

// WithOrigin overrides the shipment origin.
func WithOrigin(loc geo.Location) Option {
	return func(c *Calculator) { c.origin = loc }
}

// WithModel overrides the emission model.
func WithModel(m *emission.Model) Option {
	return func(c *Calculator) { c.model = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calculator) { c.logger = logger }
}

// NewCalculator wires a resolver and a distance estimator.
func NewCalculator(resolver geocode.Resolver, estimator DistanceEstimator, opts ...Option) *Calculator {
	c := &Calculator{
		resolver:  resolver,
		estimator: estimator,
		model:     emission.NewModel(),
		origin:    Origin,
		logger:    slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the emission model in use.
func (c *Calculator) Model() *emission.Model {
	return c.model
}

// Compute returns the carbon balance for wallAreaSqFt shipped to postalCode.
// The only errors are ErrInvalidInput and ErrInvalidZip.
func (c *Calculator) Compute(ctx context.Context, wallAreaSqFt float64, postalCode string) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.compute",
		trace.WithAttributes(tracing.CalculationAttributes(wallAreaSqFt, postalCode)...),
	)
	defer span.End()

	start := time.Now()

	if math.IsNaN(wallAreaSqFt) || math.IsInf(wallAreaSqFt, 0) || wallAreaSqFt <= 0 {
		monitoring.RecordCalculation(OutcomeInvalidInput, time.Since(start))
		span.SetStatus(codes.Error, "invalid input")
		return nil, fmt.Errorf("%w: got %v", ErrInvalidInput, wallAreaSqFt)
	}

	du := emission.DeclaredUnits(wallAreaSqFt)

	dest, err := c.resolver.Resolve(ctx, postalCode)
	if err != nil {
		monitoring.RecordCalculation(OutcomeInvalidZip, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid zip")
		c.logger.Info("postal code not resolved", "zip", postalCode, "error", err)
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidZip, postalCode, err)
	}

	km := c.estimator.Estimate(ctx, c.origin, dest)

	breakdown := c.model.Compute(du, km)
	total := breakdown.Total()

	span.SetAttributes(
		attribute.Float64(tracing.AttrDeclaredUnits, du),
		attribute.Float64(tracing.AttrDistanceKm, km),
		attribute.Float64(tracing.AttrTotalKgCO2e, total),
	)
	span.SetStatus(codes.Ok, "")
	monitoring.RecordCalculation(OutcomeSuccess, time.Since(start))

	c.logger.Debug("calculation complete",
		"area_sqft", wallAreaSqFt,
		"zip", postalCode,
		"du", du,
		"distance_km", km,
		"total_kgco2e", total,
	)

	return &Result{
		WallAreaSqFt:  wallAreaSqFt,
		PostalCode:    postalCode,
		DeclaredUnits: du,
		DistanceKm:    km,
		Origin:        c.origin,
		Destination:   dest,
		Breakdown:     breakdown,
		Total:         total,
	}, nil
}
