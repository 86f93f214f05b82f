package querycache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"charity-server/internal/clients/redis"
)

const (
	fieldValue    = "v"
	fieldStoredAt = "t"
	fieldStale    = "s"
)

// RedisBackend stores each entry as a hash so staleness can be flipped without rewriting the value.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBackend creates a Redis-backed store. Entries expire ttl after their last write.
func NewRedisBackend(client *redis.Client, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl}
}

func (r *RedisBackend) Load(ctx context.Context, key string) (Entry, bool, error) {
	fields, err := r.client.HGetAll(ctx, key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to load cache entry %s: %w", key, err)
	}
	raw, ok := fields[fieldValue]
	if !ok {
		return Entry{}, false, nil
	}
	nanos, err := strconv.ParseInt(fields[fieldStoredAt], 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return Entry{
		Value:    []byte(raw),
		StoredAt: time.Unix(0, nanos),
		Stale:    fields[fieldStale] == "1",
	}, true, nil
}

func (r *RedisBackend) Store(ctx context.Context, key string, e Entry) error {
	stale := "0"
	if e.Stale {
		stale = "1"
	}
	err := r.client.HSetWithTTL(ctx, key, r.ttl, map[string]interface{}{
		fieldValue:    e.Value,
		fieldStoredAt: strconv.FormatInt(e.StoredAt.UnixNano(), 10),
		fieldStale:    stale,
	})
	if err != nil {
		return fmt.Errorf("failed to store cache entry %s: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key)
}

func (r *RedisBackend) MarkStale(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if err := r.client.HSetIfExists(ctx, k, fieldStale, "1"); err != nil {
			return fmt.Errorf("failed to mark %s stale: %w", k, err)
		}
	}
	return nil
}

func (r *RedisBackend) MarkStalePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := r.client.ScanPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if err := r.MarkStale(ctx, keys...); err != nil {
		return 0, err
	}
	return len(keys), nil
}
