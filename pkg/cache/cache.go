// Package cache provides injectable memoization for geocoding and routing
// results. Values stored here are pure functions of their keys, so a cache
// only ever saves work and never changes an answer.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/zaie-n/carbontool/pkg/monitoring"
)

// Cache maps keys to values. Implementations must be safe for concurrent use.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Add(key K, value V)
	Len() int
	Purge()
}

// LRU is a size-bounded cache whose entries expire after a TTL.
type LRU[K comparable, V any] struct {
	lru *expirable.LRU[K, V]
}

// NewLRU creates a cache holding at most size entries for ttl each.
// A ttl of zero disables expiry; a size of zero means unbounded.
func NewLRU[K comparable, V any](size int, ttl time.Duration) *LRU[K, V] {
	return &LRU[K, V]{lru: expirable.NewLRU[K, V](size, nil, ttl)}
}

// Get returns the cached value for key or calls load and caches its result.
// The boolean reports whether the value came from the cache.
//
// The shared load runs detached from any single caller's cancellation, so
// load must bound itself. Each caller still returns as soon as its own ctx
// is done.
func (r *ReadThrough[V]) Get(ctx context.Context, key string, load func(context.Context) (V, error)) (V, bool, error) {
	var zero V
	if v, ok := r.cache.Get(key); ok {
		monitoring.RecordCacheHit(r.name)
		return v, true, nil
	}
	monitoring.RecordCacheMiss(r.name)

	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		v, err := load(loadCtx)
		if err != nil {
			return v, err
		}
		r.cache.Add(key, v)
		monitoring.UpdateCacheSize(r.name, r.cache.Len())
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		return res.Val.(V), false, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}
