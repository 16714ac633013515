// Package cache is a keyed TTL cache with a get-or-refresh contract.
//
// Entries stay fresh until ExpiresAt. Past that point a read triggers a
// refresh; if the refresh fails the expired entry is still served (flagged as
// stale) for as long as the backend retains it. Concurrent refreshes of the
// same key are collapsed into one call.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeStale = "stale"
	OutcomeError = "error"
)

type Entry struct {
	Value     json.RawMessage `json:"value"`
	StoredAt  time.Time       `json:"storedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set stores entry and keeps it readable for retain, which is at least
	// the entry's TTL so it can be served stale afterwards.
	Set(ctx context.Context, key string, entry Entry, retain time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Observer receives one outcome per GetOrRefresh call.
type Observer interface {
	CacheResult(cache, outcome string)
}

type Options struct {
	Name      string
	TTL       time.Duration
	Retention time.Duration
	Now       func() time.Time
	Observer  Observer
	// RefreshTimeout bounds a shared refresh. The refresh runs detached from
	// the caller that started it, so one caller giving up never fails the
	// others waiting on the same key.
	RefreshTimeout time.Duration
	// Fallback reports whether a refresh error may be answered with a stale
	// entry. Nil allows it for every error.
	Fallback func(error) bool
}

type Result[T any] struct {
	Value     T
	StoredAt  time.Time
	ExpiresAt time.Time
	Cached    bool
	Stale     bool
}

type Cache[T any] struct {
	backend   Backend
	name      string
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
	observer  Observer
	fallback  func(error) bool
	timeout   time.Duration
	group     singleflight.Group
}

func New[T any](backend Backend, opts Options) *Cache[T] {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Retention < opts.TTL {
		opts.Retention = opts.TTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 30 * time.Second
	}
	return &Cache[T]{
		backend:   backend,
		name:      opts.Name,
		ttl:       opts.TTL,
		retention: opts.Retention,
		now:       opts.Now,
		observer:  opts.Observer,
		fallback:  opts.Fallback,
		timeout:   opts.RefreshTimeout,
	}
}

func (c *Cache[T]) TTL() time.Duration {
	return c.ttl
}

// GetOrRefresh returns the fresh cached value for key, or calls refresh. When
// refresh fails and an older entry exists, the older entry is returned with
// Stale set and no error.
func (c *Cache[T]) GetOrRefresh(ctx context.Context, key string, refresh func(context.Context) (T, error)) (Result[T], error) {
	return c.get(ctx, key, refresh, false)
}

// Refresh reloads key even if the current entry is still fresh. The stale
// fallback rules of GetOrRefresh apply.
func (c *Cache[T]) Refresh(ctx context.Context, key string, refresh func(context.Context) (T, error)) (Result[T], error) {
	return c.get(ctx, key, refresh, true)
}

func (c *Cache[T]) get(ctx context.Context, key string, refresh func(context.Context) (T, error), force bool) (Result[T], error) {
	entry, found, err := c.backend.Get(ctx, key)
	if err != nil {
		slog.Warn("cache read failed", "cache", c.name, "key", key, "err", err)
		found = false
	}

	var cached T
	if found {
		if err := json.Unmarshal(entry.Value, &cached); err != nil {
			slog.Warn("cache entry decode failed", "cache", c.name, "key", key, "err", err)
			found = false
		}
	}
	if found && !force && c.now().Before(entry.ExpiresAt) {
		c.observe(OutcomeHit)
		return Result[T]{Value: cached, StoredAt: entry.StoredAt, ExpiresAt: entry.ExpiresAt, Cached: true}, nil
	}

	shared, err := c.refresh(ctx, key, refresh)
	if err != nil {
		if found && (c.fallback == nil || c.fallback(err)) {
			slog.Warn("cache refresh failed, serving stale entry", "cache", c.name, "key", key, "storedAt", entry.StoredAt, "err", err)
			c.observe(OutcomeStale)
			return Result[T]{Value: cached, StoredAt: entry.StoredAt, ExpiresAt: entry.ExpiresAt, Cached: true, Stale: true}, nil
		}
		c.observe(OutcomeError)
		return Result[T]{}, err
	}

	c.observe(OutcomeMiss)
	return shared.(Result[T]), nil
}

// refresh joins or starts the shared refresh for key and waits for it or for
// the caller's own context, whichever ends first.
func (c *Cache[T]) refresh(ctx context.Context, key string, refresh func(context.Context) (T, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		value, err := refresh(rctx)
		if err != nil {
			return nil, err
		}
		return c.store(rctx, key, value), nil
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache[T]) store(ctx context.Context, key string, value T) Result[T] {
	now := c.now()
	result := Result[T]{Value: value, StoredAt: now, ExpiresAt: now.Add(c.ttl)}
	payload, err := json.Marshal(value)
	if err != nil {
		slog.Warn("cache entry encode failed", "cache", c.name, "key", key, "err", err)
		return result
	}
	entry := Entry{Value: payload, StoredAt: result.StoredAt, ExpiresAt: result.ExpiresAt}
	if err := c.backend.Set(ctx, key, entry, c.retention); err != nil {
		slog.Warn("cache write failed", "cache", c.name, "key", key, "err", err)
	}
	return result
}

func (c *Cache[T]) Invalidate(ctx context.Context, keys ...string) error {
	return c.backend.Delete(ctx, keys...)
}

func (c *Cache[T]) InvalidatePrefix(ctx context.Context, prefix string) error {
	return c.backend.DeletePrefix(ctx, prefix)
}

func (c *Cache[T]) observe(outcome string) {
	if c.observer != nil {
		c.observer.CacheResult(c.name, outcome)
	}
}
