package store

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound is returned when no value is cached under a key.
	ErrNotFound = errors.New("no cached value for key")
)

// MemoryCache is a concurrency-safe in-memory cache that lives for the whole
// process. Entries are never evicted. Concurrent misses on the same key share
// a single load.
type MemoryCache[V any] struct {
	mu sync.RWMutex

	// key: caller supplied key, value: loaded value
	data map[string]V

	inflight singleflight.Group
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache[V any]() *MemoryCache[V] {
	return &MemoryCache[V]{
		data: make(map[string]V),
	}
}

// Get returns the value stored under key.
func (s *MemoryCache[V]) Get(key string) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	return v, nil
}

// Set stores value under key, replacing any previous value.
func (s *MemoryCache[V]) Set(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
}

// Len returns the number of cached entries.
func (s *MemoryCache[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}

// GetOrLoad returns the cached value for key, calling load on a miss and
// storing its result. The boolean reports whether the value came from the
// cache. Errors from load are returned to every waiting caller and are not
// cached.
//
// The load runs detached from the cancellation of the caller that triggered
// it, so one abandoned request does not fail the others waiting on the same
// key; load implementations are expected to bound themselves with timeouts.
func (s *MemoryCache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, bool, error) {
	if v, err := s.Get(key); err == nil {
		return v, true, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		// Another flight may have finished between our miss and this call.
		if v, err := s.Get(key); err == nil {
			return v, nil
		}
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		s.Set(key, v)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		v, ok := res.Val.(V)
		if !ok {
			return zero, false, errors.New("unexpected cached value type")
		}
		return v, false, nil
	}
}
