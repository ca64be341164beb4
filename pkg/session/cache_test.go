package session

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/observability"
)

// countingStore counts reads hitting the inner store.
type countingStore struct {
	Store
	finds atomic.Int64
}

func (c *countingStore) FindBySessionID(ctx context.Context, id string) (*Session, error) {
	c.finds.Add(1)
	return c.Store.FindBySessionID(ctx, id)
}

func newCachedStore(t *testing.T) (*CachedStore, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	counting := &countingStore{Store: newTestStore(t)}
	return NewCachedStore(counting, client, time.Minute, nil), counting, mr
}

func TestCacheReadThrough(t *testing.T) {
	cached, counting, _ := newCachedStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, cached.Insert(ctx, testSession("s1", "u1", StateActive, now)))

	got, err := cached.FindBySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.EqualValues(t, 1, counting.finds.Load())

	// second read is served from redis
	got, err = cached.FindBySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, StateActive, got.State)
	assert.EqualValues(t, 1, counting.finds.Load())
}

func TestCacheMissOnUnknown(t *testing.T) {
	cached, _, _ := newCachedStore(t)
	_, err := cached.FindBySessionID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRevokeInvalidatesCache(t *testing.T) {
	cached, _, _ := newCachedStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, cached.Insert(ctx, testSession("s1", "u1", StateActive, now)))

	// warm the cache
	_, err := cached.FindBySessionID(ctx, "s1")
	require.NoError(t, err)

	changed, err := cached.Revoke(ctx, "s1", ReasonSecurity, now)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := cached.FindBySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StateRevokedSecurity, got.State, "stale active copy must not survive the revoke")
}

func TestValidateAfterRevokeThroughCache(t *testing.T) {
	cached, _, _ := newCachedStore(t)
	rec := audit.NewMemoryRecorder(100)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	m := NewManager(cached, audit.NewEmitter(rec, nil, logger, nil), logger, nil)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, createInput("u1"))
	require.NoError(t, err)

	// warm the cache on the hot path
	_, err = m.ValidateSession(ctx, sess.ID)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, sess.ID, ReasonManual))

	_, err = m.ValidateSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestMfaTransitionInvalidatesCache(t *testing.T) {
	cached, _, _ := newCachedStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, cached.Insert(ctx, testSession("s1", "u1", StatePendingMFA, now)))

	_, err := cached.FindBySessionID(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, cached.MarkMfaVerified(ctx, "s1"))

	got, err := cached.FindBySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StateActive, got.State)
}

func TestRevokeAllFlushesCache(t *testing.T) {
	cached, _, _ := newCachedStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, cached.Insert(ctx, testSession("s1", "u1", StateActive, now)))
	require.NoError(t, cached.Insert(ctx, testSession("s2", "u1", StateActive, now)))

	_, err := cached.FindBySessionID(ctx, "s1")
	require.NoError(t, err)
	_, err = cached.FindBySessionID(ctx, "s2")
	require.NoError(t, err)

	n, err := cached.RevokeAllForUser(ctx, "u1", "", ReasonSecurity, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"s1", "s2"} {
		got, err := cached.FindBySessionID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StateRevokedSecurity, got.State, "session %s", id)
	}
}

func TestCacheDegradesWhenRedisDown(t *testing.T) {
	cached, counting, mr := newCachedStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, cached.Insert(ctx, testSession("s1", "u1", StateActive, now)))

	mr.Close()

	got, err := cached.FindBySessionID(ctx, "s1")
	require.NoError(t, err, "redis outage falls back to the primary store")
	assert.Equal(t, "s1", got.ID)
	assert.EqualValues(t, 1, counting.finds.Load())
}
