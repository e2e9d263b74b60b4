package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/models"
)

const metricsCachePrefix = "wt:metrics"

// MetricsSource reads wallet metrics from the table of record
type MetricsSource interface {
	List(ctx context.Context) ([]models.WalletMetrics, error)
	Get(ctx context.Context, address string) (*models.WalletMetrics, error)
}

// CachedMetrics is a read-through Redis cache in front of a MetricsSource.
// Cache failures are logged and the source is read directly.
type CachedMetrics struct {
	next   MetricsSource
	redis  *RedisCache
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedMetrics creates a metrics cache
func NewCachedMetrics(next MetricsSource, cache *RedisCache, ttl time.Duration, logger *logging.Logger) *CachedMetrics {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CachedMetrics{
		next:   next,
		redis:  cache,
		ttl:    ttl,
		logger: logger.WithField("component", "metrics_cache"),
	}
}

// listKey and walletKey follow <prefix>:<kind>[:<param>]
func listKey() string {
	return metricsCachePrefix + ":list"
}

func walletKey(address string) string {
	return fmt.Sprintf("%s:wallet:%s", metricsCachePrefix, strings.ToLower(address))
}

// List returns every wallet's metrics
func (c *CachedMetrics) List(ctx context.Context) ([]models.WalletMetrics, error) {
	var cached []models.WalletMetrics
	if c.get(ctx, listKey(), &cached) {
		return cached, nil
	}

	rows, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, listKey(), rows)
	return rows, nil
}

// Get returns one wallet's metrics. Lookup errors are never cached.
func (c *CachedMetrics) Get(ctx context.Context, address string) (*models.WalletMetrics, error) {
	var cached models.WalletMetrics
	if c.get(ctx, walletKey(address), &cached) {
		return &cached, nil
	}

	m, err := c.next.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	c.set(ctx, walletKey(address), m)
	return m, nil
}

// Invalidate removes every cached metrics entry
func (c *CachedMetrics) Invalidate(ctx context.Context) error {
	keys, err := c.redis.client.Keys(ctx, metricsCachePrefix+":*").Result()
	if err != nil {
		return apperrors.NewCacheError("find metrics keys", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.client.Del(ctx, keys...).Err(); err != nil {
		return apperrors.NewCacheError("delete metrics keys", err)
	}
	return nil
}

// get reports whether key was found and decoded into dest
func (c *CachedMetrics) get(ctx context.Context, key string, dest interface{}) bool {
	data, err := c.redis.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.WithError(apperrors.NewCacheError("get", err)).WithField("key", key).Warn("Metrics cache read failed")
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Discarding undecodable cache entry")
		return false
	}
	return true
}

func (c *CachedMetrics) set(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Metrics cache encode failed")
		return
	}
	if err := c.redis.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(apperrors.NewCacheError("set", err)).WithField("key", key).Warn("Metrics cache write failed")
	}
}
