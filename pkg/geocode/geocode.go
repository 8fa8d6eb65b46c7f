// Package geocode resolves US postal codes to coordinates.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zaie-n/carbontool/pkg/geo"
)

// ErrNotFound is returned when a postal code cannot be turned into a coordinate.
// Resolvers wrap it so callers can test with errors.Is regardless of the cause.
var ErrNotFound = errors.New("postal code not found")

// ErrUnavailable marks a not-found result caused by the lookup service
// rather than by the code itself. It is always wrapped together with ErrNotFound.
var ErrUnavailable = errors.New("geocoding service unavailable")

// Resolver maps a postal code to a coordinate.
type Resolver interface {
	Resolve(ctx context.Context, postalCode string) (geo.Location, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, postalCode string) (geo.Location, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, postalCode string) (geo.Location, error) {
	return f(ctx, postalCode)
}

// NormalizeZIP returns the five digit form of a US ZIP or ZIP+4 code.
func NormalizeZIP(postalCode string) (string, error) {
	zip := strings.TrimSpace(postalCode)

	switch len(zip) {
	case 5:
	case 10:
		if zip[5] != '-' || !allDigits(zip[6:]) {
			return "", notFound(postalCode, errors.New("malformed ZIP+4 suffix"))
		}
		zip = zip[:5]
	default:
		return "", notFound(postalCode, fmt.Errorf("expected 5 digits, got %q", zip))
	}

	if !allDigits(zip) {
		return "", notFound(postalCode, fmt.Errorf("expected 5 digits, got %q", zip))
	}
	return zip, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// notFound wraps cause so that errors.Is matches both ErrNotFound and cause.
func notFound(postalCode string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %q", ErrNotFound, postalCode)
	}
	return fmt.Errorf("%w: %q: %w", ErrNotFound, postalCode, cause)
}

// unavailable is notFound for failures of the transport, limiter or caller context.
func unavailable(postalCode string, cause error) error {
	return notFound(postalCode, fmt.Errorf("%w: %w", ErrUnavailable, cause))
}

// TableResolver answers from a fixed in-memory table.
type TableResolver struct {
	mu    sync.RWMutex
	table map[string]geo.Location
}

// NewTableResolver copies entries, keyed by five digit ZIP.
func NewTableResolver(entries map[string]geo.Location) *TableResolver {
	t := &TableResolver{table: make(map[string]geo.Location, len(entries))}
	for zip, loc := range entries {
		t.Set(zip, loc)
	}
	return t
}

// Set adds or replaces an entry. Malformed codes are ignored.
func (t *TableResolver) Set(postalCode string, loc geo.Location) {
	zip, err := NormalizeZIP(postalCode)
	if err != nil {
		return
	}
	t.mu.Lock()
	t.table[zip] = loc
	t.mu.Unlock()
}

// Resolve looks up postalCode.
func (t *TableResolver) Resolve(_ context.Context, postalCode string) (geo.Location, error) {
	zip, err := NormalizeZIP(postalCode)
	if err != nil {
		return geo.Location{}, err
	}

	t.mu.RLock()
	loc, ok := t.table[zip]
	t.mu.RUnlock()
	if !ok {
		return geo.Location{}, notFound(postalCode, nil)
	}
	return loc, nil
}

// Len returns the number of entries.
func (t *TableResolver) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.table)
}
