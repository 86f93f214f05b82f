// Package querycache serves keyed reads with per-read staleness windows, deduplicates
// concurrent fetches of the same key, and supports optimistic writes with exact rollback.
package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"charity-server/internal/metrics"
	"charity-server/internal/observability"

	"golang.org/x/sync/singleflight"
)

var ErrNilFetch = errors.New("querycache: nil fetch function")

// FetchFunc loads the authoritative value for a key.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Result is what a read returns. Stale is set when the value is older than the
// requested window; RefreshErr carries the error of a failed refresh that was
// papered over with the previous value.
type Result struct {
	Value      []byte
	Stale      bool
	StoredAt   time.Time
	RefreshErr error
}

type readOptions struct {
	staleWhileRevalidate bool
}

// ReadOption tunes a single Get.
type ReadOption func(*readOptions)

// StaleWhileRevalidate serves an expired entry immediately and refreshes it in the background.
func StaleWhileRevalidate() ReadOption {
	return func(o *readOptions) { o.staleWhileRevalidate = true }
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithFetchTimeout bounds a shared fetch, which outlives the callers that started it.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) { c.fetchTimeout = d }
}

// Cache is safe for concurrent use. Construct one per process and pass it to the services that read through it.
type Cache struct {
	backend      Backend
	logger       *observability.Logger
	group        singleflight.Group
	now          func() time.Time
	fetchTimeout time.Duration

	// epoch advances on every invalidation so fetches that started earlier are neither
	// joined by later readers nor stored as fresh.
	epoch atomic.Uint64

	txMu   sync.Mutex
	txSeq  uint64
	latest map[string]uint64
}

// New creates a cache over backend.
func New(backend Backend, logger *observability.Logger, opts ...Option) *Cache {
	c := &Cache{
		backend:      backend,
		logger:       logger,
		now:          time.Now,
		fetchTimeout: 30 * time.Second,
		latest:       make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) fresh(e Entry, staleness time.Duration) bool {
	return !e.Stale && c.now().Sub(e.StoredAt) < staleness
}

// Get returns the cached value for key when it is younger than staleness, otherwise it
// calls fetch. Concurrent callers missing on the same key share one fetch. If ctx ends
// first the caller gets ctx.Err() while the fetch still completes and populates the cache.
func (c *Cache) Get(ctx context.Context, key Key, staleness time.Duration, fetch FetchFunc, opts ...ReadOption) (Result, error) {
	if fetch == nil {
		return Result{}, ErrNilFetch
	}
	var ro readOptions
	for _, opt := range opts {
		opt(&ro)
	}

	k := key.String()
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "cache_key", Value: k},
	)

	cached, found, err := c.backend.Load(ctx, k)
	if err != nil {
		c.logger.Error(ctx, "failed to load cache entry, falling through to fetch", err)
		found = false
	}

	if found && c.fresh(cached, staleness) {
		metrics.RecordCacheLookup(key.Resource, metrics.CacheHit)
		return Result{Value: cached.Value, StoredAt: cached.StoredAt}, nil
	}

	if found && ro.staleWhileRevalidate {
		metrics.RecordCacheLookup(key.Resource, metrics.CacheStale)
		c.refresh(ctx, key, k, staleness, fetch)
		return Result{Value: cached.Value, StoredAt: cached.StoredAt, Stale: true}, nil
	}

	metrics.RecordCacheLookup(key.Resource, metrics.CacheMiss)
	select {
	case res := <-c.refresh(ctx, key, k, staleness, fetch):
		if res.Err != nil {
			metrics.RecordCacheLookup(key.Resource, metrics.CacheError)
			if found {
				c.logger.Warn(ctx, fmt.Sprintf("refresh failed, serving stale entry: %v", res.Err))
				return Result{Value: cached.Value, StoredAt: cached.StoredAt, Stale: true, RefreshErr: res.Err}, nil
			}
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// refresh starts, or joins, the shared fetch for k in the current epoch.
func (c *Cache) refresh(ctx context.Context, key Key, k string, staleness time.Duration, fetch FetchFunc) <-chan singleflight.Result {
	epoch := c.epoch.Load()
	flightKey := k + "#" + strconv.FormatUint(epoch, 10)
	detached := context.WithoutCancel(ctx)

	return c.group.DoChan(flightKey, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(detached, c.fetchTimeout)
		defer cancel()

		// A flight that finished just before this one started may already have stored a fresh entry.
		if e, ok, err := c.backend.Load(fctx, k); err == nil && ok && c.fresh(e, staleness) {
			return Result{Value: e.Value, StoredAt: e.StoredAt}, nil
		}

		start := time.Now()
		value, err := fetch(fctx)
		metrics.RecordCacheFetch(key.Resource, time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}

		entry := Entry{Value: value, StoredAt: c.now(), Stale: c.epoch.Load() != epoch}
		if err := c.backend.Store(fctx, k, entry); err != nil {
			c.logger.Error(fctx, "failed to store cache entry", err)
		}
		// An invalidation that marked k between the epoch check and the store was overwritten.
		if !entry.Stale && c.epoch.Load() != epoch {
			if err := c.backend.MarkStale(fctx, k); err != nil {
				c.logger.Error(fctx, "failed to mark raced cache entry stale", err)
			}
		}
		return Result{Value: value, StoredAt: entry.StoredAt}, nil
	})
}

// Peek returns the stored entry for key without fetching.
func (c *Cache) Peek(ctx context.Context, key Key) (Entry, bool, error) {
	return c.backend.Load(ctx, key.String())
}

// Invalidate marks the given keys stale so the next read revalidates.
func (c *Cache) Invalidate(ctx context.Context, keys ...Key) error {
	c.epoch.Add(1)
	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = k.String()
		metrics.RecordInvalidation(k.Resource)
	}
	if err := c.backend.MarkStale(ctx, raw...); err != nil {
		return fmt.Errorf("failed to invalidate keys: %w", err)
	}
	return nil
}

// InvalidateScope marks every key of resource under scope stale.
func (c *Cache) InvalidateScope(ctx context.Context, resource, scope string) error {
	return c.InvalidateTargets(ctx, ScopeTarget(resource, scope))
}

// InvalidateResource marks every key of resource stale.
func (c *Cache) InvalidateResource(ctx context.Context, resource string) error {
	return c.InvalidateTargets(ctx, ResourceTarget(resource))
}

// InvalidateTargets marks every key selected by targets stale. All targets are attempted; the errors are joined.
func (c *Cache) InvalidateTargets(ctx context.Context, targets ...Target) error {
	c.epoch.Add(1)
	var errs []error
	for _, t := range targets {
		n, err := c.backend.MarkStalePrefix(ctx, t.prefix())
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to invalidate %s: %w", t.prefix(), err))
			continue
		}
		metrics.RecordInvalidation(t.Resource)
		c.logger.Debug(ctx, fmt.Sprintf("invalidated %d entries under %s", n, t.prefix()))
	}
	return errors.Join(errs...)
}

// Fetch is Get for JSON-encoded values.
func Fetch[T any](ctx context.Context, c *Cache, key Key, staleness time.Duration, fetch func(ctx context.Context) (T, error), opts ...ReadOption) (T, Result, error) {
	var zero T
	res, err := c.Get(ctx, key, staleness, func(ctx context.Context) ([]byte, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}, opts...)
	if err != nil {
		return zero, res, err
	}

	var out T
	if err := json.Unmarshal(res.Value, &out); err != nil {
		return zero, res, fmt.Errorf("failed to decode cached %s: %w", key.Resource, err)
	}
	return out, res, nil
}
