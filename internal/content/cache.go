package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
)

const (
	cacheKeyPrefix = "coach:content:"
	cacheTTL       = 24 * time.Hour
	sharedReadTTL  = 5 * time.Second
)

// Cache is the byte-oriented key value store behind CachedStore.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache implements Cache on go-redis.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache connects to addr and pings it once.
func NewRedisCache(ctx context.Context, addr, password string) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed for %s: %w", addr, err)
	}
	return &RedisCache{rdb: rdb}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// CachedStore serves terminal records from a cache. Terminal records never
// change, so a cached copy can never be stale; processing records always go
// to the underlying store. Concurrent lookups of the same request id
// (several pollers on one generation) share a single backend read.
type CachedStore struct {
	Store
	cache Cache
	group singleflight.Group
	log   *logger.Logger
}

// NewCachedStore wraps store with cache.
func NewCachedStore(store Store, cache Cache, log *logger.Logger) *CachedStore {
	return &CachedStore{
		Store: store,
		cache: cache,
		log:   log.With("component", "ContentCache"),
	}
}

// GetByRequestID returns the cached terminal record or falls back to the store.
func (s *CachedStore) GetByRequestID(ctx context.Context, requestID string) (*Record, error) {
	v, err, _ := s.group.Do(requestID, func() (interface{}, error) {
		// The read is shared by every joined caller, so it must outlive the
		// caller that happened to start it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedReadTTL)
		defer cancel()

		key := cacheKeyPrefix + requestID

		if raw, ok, err := s.cache.Get(ctx, key); err != nil {
			s.log.Warn("cache read failed", "request_id", requestID, "error", err)
		} else if ok {
			var rec Record
			if err := json.Unmarshal(raw, &rec); err == nil {
				return &rec, nil
			}
			s.log.Warn("discarding undecodable cache entry", "request_id", requestID)
		}

		rec, err := s.Store.GetByRequestID(ctx, requestID)
		if err != nil || rec == nil || !rec.IsTerminal() {
			return rec, err
		}

		if raw, err := json.Marshal(rec); err == nil {
			if err := s.cache.Set(ctx, key, raw, cacheTTL); err != nil {
				s.log.Warn("cache write failed", "request_id", requestID, "error", err)
			}
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	rec, _ := v.(*Record)
	if rec == nil {
		return nil, nil
	}
	// Callers must not share the singleflight result.
	cp := *rec
	return &cp, nil
}
