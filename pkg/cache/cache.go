// Package cache provides the two-tier (in-process + redis) string cache
// used by the universe registry lookup path: the in-memory tier is
// checked first, redis is the fallback, and Set writes through both.
// The calendar oracle does not use it; it memoises Snap in its own
// in-process go-cache.
package cache

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"aklineservice/pkg/log"
)

// API is the cache surface the registry lookup path consumes; a string
// value keeps the cache payload-agnostic (callers
// encode/decode their own values).
type API interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string)
	SetWithDuration(ctx context.Context, key string, value string, duration time.Duration)
}

// Manager checks the in-memory cache first, then redis.
type Manager struct {
	inmem *cache.Cache
	redis *redis.Client
}

// NewManager constructs a Manager over an in-memory cache and, optionally,
// a redis client (nil disables the redis tier, useful for tests and for
// deployments that don't run redis; the in-memory tier still works).
func NewManager(inmem *cache.Cache, redisClient *redis.Client) API {
	return &Manager{inmem: inmem, redis: redisClient}
}

func (m *Manager) Get(ctx context.Context, key string) (string, bool) {
	if v, present := m.inmem.Get(key); present {
		return v.(string), true
	}
	if m.redis == nil {
		return "", false
	}
	v, err := m.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn("cache: redis get failed for key %s: %v", key, err)
		}
		return "", false
	}
	return v, true
}

func (m *Manager) Set(ctx context.Context, key string, value string) {
	m.SetWithDuration(ctx, key, value, 10*time.Minute)
}

func (m *Manager) SetWithDuration(ctx context.Context, key string, value string, duration time.Duration) {
	m.inmem.Set(key, value, duration)
	if m.redis == nil {
		return
	}
	if err := m.redis.Set(ctx, key, value, duration).Err(); err != nil {
		log.Warn("cache: redis set failed for key %s: %v", key, err)
	}
}

// InMemConfig sizes the in-memory tier.
type InMemConfig struct {
	TTL        time.Duration
	CleanUpTTL time.Duration
}

// NewInMemoryCache constructs the in-process tier.
func NewInMemoryCache(cfg InMemConfig) *cache.Cache {
	return cache.New(cfg.TTL, cfg.CleanUpTTL)
}
