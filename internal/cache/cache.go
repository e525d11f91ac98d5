package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/settle/internal/domain"
)

// DefaultLocalTTL bounds how long the two-phase cache keeps an L1 copy.
const DefaultLocalTTL = 5 * time.Minute

// New creates the cache named by cfg.Type:
//   - "memory": an LRUCache
//   - "redis": a RedisCache, or a TwoPhaseCache when EnableTwoPhase is set
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache reads through a local LRU (L1) to Redis (L2). Redis is the
// source of truth; when it fails, reads and counters degrade to L1 so a
// Redis outage slows runs down instead of failing them.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg)
	if err != nil {
		return nil, err
	}

	l1TTL := cfg.LocalTTL
	if l1TTL <= 0 {
		l1TTL = DefaultLocalTTL
	}

	return &TwoPhaseCache{
		local:  NewLRUCache(cfg.LocalMaxSize),
		remote: remote,
		l1TTL:  l1TTL,
	}, nil
}

// Get checks L1, then L2, copying L2 hits into L1.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, tenantID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, tenantID, key)
	if err != nil {
		slog.Warn("cache L2 read failed, treating as miss",
			"tenant_id", tenantID,
			"key", key,
			"error", err,
		)
		return nil, nil
	}
	if val != nil {
		_ = c.local.Set(ctx, tenantID, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes L1 with the shorter of ttl and the L1 TTL, then L2 with ttl.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, tenantID, key, value, l1TTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, tenantID, key, value, ttl)
}

// Delete removes key from both phases.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, tenantID, key)
}

// IncrementCounter counts in Redis so limits hold across nodes. While Redis
// is unreachable the count is kept per node.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, tenantID string, key string, win time.Duration) (int64, error) {
	n, err := c.remote.IncrementCounter(ctx, tenantID, key, win)
	if err == nil {
		return n, nil
	}
	if tenantID == "" {
		return 0, err
	}
	slog.Warn("cache L2 counter failed, counting locally",
		"tenant_id", tenantID,
		"key", key,
		"error", err,
	)
	return c.local.IncrementCounter(ctx, tenantID, key, win)
}

// Ping reports L2 health; L1 cannot fail.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("cache L2 ping: %w", err)
	}
	return nil
}

// Close closes both phases.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 statistics.
func (c *TwoPhaseCache) Stats() domain.CacheStats {
	return c.local.Stats()
}
