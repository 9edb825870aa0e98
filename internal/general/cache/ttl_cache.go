package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TTLCache is a typed, JSON-encoded view over a Store under one key prefix.
// It is owned by whoever constructs it; there is no package-level instance.
type TTLCache[T any] struct {
	store  Store
	prefix string
	ttl    time.Duration
}

func NewTTLCache[T any](store Store, prefix string, ttl time.Duration) *TTLCache[T] {
	return &TTLCache[T]{store: store, prefix: prefix, ttl: ttl}
}

func (c *TTLCache[T]) key(k string) string {
	return c.prefix + ":" + k
}

// Get returns the cached value. A corrupt entry counts as a miss and is removed.
func (c *TTLCache[T]) Get(ctx context.Context, k string) (T, bool, error) {
	var zero T
	raw, ok, err := c.store.Get(ctx, c.key(k))
	if err != nil || !ok {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		_ = c.store.Delete(ctx, c.key(k))
		return zero, false, nil
	}
	return v, true, nil
}

func (c *TTLCache[T]) Set(ctx context.Context, k string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", c.key(k), err)
	}
	return c.store.Set(ctx, c.key(k), raw, c.ttl)
}

func (c *TTLCache[T]) Invalidate(ctx context.Context, keys ...string) error {
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.key(k))
	}
	return c.store.Delete(ctx, full...)
}

// GetOrLoad serves from cache or calls load and stores its result.
// Store failures degrade to calling load; load errors are never cached.
func (c *TTLCache[T]) GetOrLoad(ctx context.Context, k string, load func(context.Context) (T, error)) (T, error) {
	if v, ok, err := c.Get(ctx, k); err == nil && ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	_ = c.Set(ctx, k, v)
	return v, nil
}
