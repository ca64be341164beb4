package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/wardenhq/warden/pkg/observability"
)

// DefaultCacheTTL bounds how stale a cached session can be. Kept short:
// revocations invalidate explicitly, but a missed invalidation must
// still age out quickly.
const DefaultCacheTTL = 30 * time.Second

// CachedStore is a Redis read-through cache in front of another Store.
// Reads on the validation hot path hit Redis first; every state
// mutation writes through and deletes the cached copy. Redis being down
// degrades to the inner store, never to an error.
type CachedStore struct {
	inner   Store
	redis   *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewCachedStore wraps a store. metrics may be nil.
func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration, metrics *observability.Metrics) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{inner: inner, redis: client, ttl: ttl, metrics: metrics}
}

func cacheKey(id string) string { return "warden:session:" + id }

func (c *CachedStore) Insert(ctx context.Context, s *Session) error {
	return c.inner.Insert(ctx, s)
}

func (c *CachedStore) FindBySessionID(ctx context.Context, id string) (*Session, error) {
	if cached, err := c.redis.Get(ctx, cacheKey(id)).Result(); err == nil {
		var sess Session
		if err := json.Unmarshal([]byte(cached), &sess); err == nil {
			if c.metrics != nil {
				c.metrics.CacheHitsTotal.Inc()
			}
			return &sess, nil
		}
	}
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}

	sess, err := c.inner.FindBySessionID(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(sess); err == nil {
		c.redis.Set(ctx, cacheKey(id), data, c.ttl)
	}
	return sess, nil
}

// FindByAccessTokenHash is not cached: callers cache the token-to-ID
// mapping themselves and come back through FindBySessionID.
func (c *CachedStore) FindByAccessTokenHash(ctx context.Context, hash string) (*Session, error) {
	return c.inner.FindByAccessTokenHash(ctx, hash)
}

// UpdateActivity does not invalidate: last_activity is advisory and the
// cached copy ages out within the TTL. Invalidation here would defeat
// the cache since every validation updates activity.
func (c *CachedStore) UpdateActivity(ctx context.Context, id string, at time.Time) error {
	return c.inner.UpdateActivity(ctx, id, at)
}

func (c *CachedStore) MarkMfaVerified(ctx context.Context, id string) error {
	err := c.inner.MarkMfaVerified(ctx, id)
	if err == nil {
		c.invalidate(ctx, id)
	}
	return err
}

func (c *CachedStore) MarkSuspicious(ctx context.Context, id string) error {
	err := c.inner.MarkSuspicious(ctx, id)
	if err == nil {
		c.invalidate(ctx, id)
	}
	return err
}

func (c *CachedStore) Revoke(ctx context.Context, id string, reason RevokeReason, at time.Time) (bool, error) {
	changed, err := c.inner.Revoke(ctx, id, reason, at)
	if err == nil {
		c.invalidate(ctx, id)
	}
	return changed, err
}

func (c *CachedStore) RevokeAllForUser(ctx context.Context, userID, exceptID string, reason RevokeReason, at time.Time) (int, error) {
	// The store does not know which session IDs it touched, so flush
	// the whole session keyspace for correctness over cleverness.
	n, err := c.inner.RevokeAllForUser(ctx, userID, exceptID, reason, at)
	if err == nil && n > 0 {
		c.flushSessions(ctx)
	}
	return n, err
}

func (c *CachedStore) CountActiveForUser(ctx context.Context, userID string) (int, error) {
	return c.inner.CountActiveForUser(ctx, userID)
}

func (c *CachedStore) FindExpired(ctx context.Context, now time.Time, limit int) ([]*Session, error) {
	return c.inner.FindExpired(ctx, now, limit)
}

func (c *CachedStore) FindInactive(ctx context.Context, threshold time.Time, limit int) ([]*Session, error) {
	return c.inner.FindInactive(ctx, threshold, limit)
}

func (c *CachedStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	n, err := c.inner.DeleteCreatedBefore(ctx, cutoff, limit)
	if err == nil && n > 0 {
		c.flushSessions(ctx)
	}
	return n, err
}

func (c *CachedStore) Close() error {
	return c.inner.Close()
}

func (c *CachedStore) invalidate(ctx context.Context, id string) {
	c.redis.Del(ctx, cacheKey(id))
}

func (c *CachedStore) flushSessions(ctx context.Context) {
	iter := c.redis.Scan(ctx, 0, cacheKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		c.redis.Del(ctx, iter.Val())
	}
}
