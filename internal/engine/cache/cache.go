// Package cache provides a TTL key-value store with pluggable backings.
package cache

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// Store is a TTL-bounded key-value store. Get returns (nil, nil) on a miss;
// expired entries are lazily evicted on access. Implementations must be safe
// for concurrent use; last-write-wins on racing sets is acceptable.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Cleanup bulk-deletes expired entries. Meant to run periodically, not
	// per request.
	Cleanup(ctx context.Context) error
	Close() error
}

// GetOrSetJSON returns the cached JSON value for key, or runs fetch and
// caches its result. Nil and empty-collection results are returned to the
// caller but never persisted, so "nothing found" stays retryable. A stored
// payload that no longer parses is evicted and treated as a miss.
func GetOrSetJSON[T any](ctx context.Context, s Store, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	raw, err := s.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	if raw != nil {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		// Corrupt payload: evict and fall through to the fetcher.
		_ = s.Delete(ctx, key)
	}

	v, err := fetch(ctx)
	if err != nil {
		return zero, err
	}
	if isEmptyResult(v) {
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	// Best effort: a failed write degrades to an uncached result.
	_ = s.Set(ctx, key, data, ttl)
	return v, nil
}

func isEmptyResult(v any) bool {
	// Struct results can flag themselves as "nothing found".
	if e, ok := v.(interface{ EmptyResult() bool }); ok && e.EmptyResult() {
		return true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	case reflect.Slice, reflect.Map:
		return rv.IsNil() || rv.Len() == 0
	}
	return false
}

// Janitor periodically sweeps expired entries out of a store.
type Janitor struct {
	store    Store
	interval time.Duration
	logger   *zap.Logger
}

func NewJanitor(store Store, interval time.Duration, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Janitor{store: store, interval: interval, logger: logger}
}

// Run sweeps on a ticker until ctx is canceled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.store.Cleanup(ctx); err != nil {
				j.logger.Warn("cache cleanup failed", zap.Error(err))
			}
		}
	}
}
