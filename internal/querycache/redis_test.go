package querycache

import (
	"context"
	"testing"
	"time"

	redisclient "charity-server/internal/clients/redis"
	"charity-server/internal/observability"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBackend(t *testing.T, ttl time.Duration) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisBackend(redisclient.NewFromClient(rdb, observability.NewNopLogger()), ttl), mr
}

func TestRedisBackend_StoreLoad(t *testing.T) {
	b, mr := newRedisBackend(t, time.Hour)
	ctx := context.Background()

	stored := Entry{Value: []byte{0x00, 0x01, 0xfe, 'x'}, StoredAt: time.Unix(1700000000, 123)}
	require.NoError(t, b.Store(ctx, "qc:donations:global:-", stored))

	got, found, err := b.Load(ctx, "qc:donations:global:-")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, stored.Value, got.Value)
	assert.True(t, stored.StoredAt.Equal(got.StoredAt))
	assert.False(t, got.Stale)
	assert.Equal(t, time.Hour, mr.TTL("qc:donations:global:-"))

	_, found, err = b.Load(ctx, "qc:missing:global:-")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisBackend_MarkStale(t *testing.T) {
	b, mr := newRedisBackend(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, b.Store(ctx, "qc:donor_profile:donor=a:-", Entry{Value: []byte("a"), StoredAt: time.Now()}))
	require.NoError(t, b.Store(ctx, "qc:donor_profile:donor=b:-", Entry{Value: []byte("b"), StoredAt: time.Now()}))

	n, err := b.MarkStalePrefix(ctx, "qc:donor_profile:donor=a:")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a, _, _ := b.Load(ctx, "qc:donor_profile:donor=a:-")
	bb, _, _ := b.Load(ctx, "qc:donor_profile:donor=b:-")
	assert.True(t, a.Stale)
	assert.False(t, bb.Stale)

	// marking a missing key does not create it
	require.NoError(t, b.MarkStale(ctx, "qc:donor_profile:donor=z:-"))
	assert.False(t, mr.Exists("qc:donor_profile:donor=z:-"))
}

func TestRedisBackend_CacheRollback(t *testing.T) {
	b, _ := newRedisBackend(t, time.Hour)
	c := New(b, observability.NewNopLogger())
	ctx := context.Background()
	key := NewKey("campaign_stats", "campaign=5", "")

	_, err := c.Get(ctx, key, time.Minute, func(ctx context.Context) ([]byte, error) {
		return []byte(`{"raised":"100.00"}`), nil
	})
	require.NoError(t, err)

	tx, err := c.Begin(ctx, key, replaceWith(`{"raised":"150.00"}`))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	e, found, err := c.Peek(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte(`{"raised":"100.00"}`), e.Value)
	assert.True(t, e.Stale)
}
