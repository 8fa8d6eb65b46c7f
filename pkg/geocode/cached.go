package geocode

import (
	"context"
	"errors"

	"github.com/zaie-n/carbontool/pkg/cache"
	"github.com/zaie-n/carbontool/pkg/geo"
	"github.com/zaie-n/carbontool/pkg/tracing"
)

// CachedResolver memoizes successful lookups of another Resolver.
type CachedResolver struct {
	next  Resolver
	cache *cache.ReadThrough[geo.Location]
}

// NewCachedResolver fronts next with c. A nil c disables caching.
func NewCachedResolver(next Resolver, c cache.Cache[string, geo.Location]) *CachedResolver {
	return &CachedResolver{
		next:  next,
		cache: cache.NewReadThrough(tracing.CacheTypeGeocode, c),
	}
}

// Resolve normalizes the code, then answers from the cache or the wrapped resolver.
func (r *CachedResolver) Resolve(ctx context.Context, postalCode string) (geo.Location, error) {
	zip, err := NormalizeZIP(postalCode)
	if err != nil {
		return geo.Location{}, err
	}

	loc, hit, err := r.cache.Get(ctx, zip, func(ctx context.Context) (geo.Location, error) {
		return r.next.Resolve(ctx, zip)
	})
	tracing.SetAttributes(ctx, tracing.CacheAttributes(tracing.CacheTypeGeocode, hit)...)
	if err != nil && !errors.Is(err, ErrNotFound) {
		// Only the caller's own context ends a wait without a resolver error
		return geo.Location{}, unavailable(postalCode, err)
	}
	return loc, err
}
