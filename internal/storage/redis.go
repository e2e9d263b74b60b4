package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/whale-tracker/internal/config"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/types"
)

// RedisCache wraps the Redis client
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// PriceCache keeps the latest reference price so readers do not need the price file
type PriceCache struct {
	cache *RedisCache
	key   string
	ttl   time.Duration
}

// NewPriceCache creates a price cache for one asset and quote currency
func NewPriceCache(cache *RedisCache, assetID, vsCurrency string, ttl time.Duration) *PriceCache {
	return &PriceCache{
		cache: cache,
		key:   fmt.Sprintf("wt:price:%s:%s", assetID, vsCurrency),
		ttl:   ttl,
	}
}

// SetLatest stores the latest price and the day it was observed
func (c *PriceCache) SetLatest(ctx context.Context, date types.Date, price float64) error {
	err := c.cache.client.HSet(ctx, c.key, map[string]interface{}{
		"date":  date.String(),
		"price": strconv.FormatFloat(price, 'f', -1, 64),
	}).Err()
	if err != nil {
		return apperrors.NewCacheError("set latest price", err)
	}
	if c.ttl > 0 {
		if err := c.cache.client.Expire(ctx, c.key, c.ttl).Err(); err != nil {
			return apperrors.NewCacheError("expire latest price", err)
		}
	}
	return nil
}

// Latest returns the cached price. ok is false on a cache miss.
func (c *PriceCache) Latest(ctx context.Context) (date types.Date, price float64, ok bool, err error) {
	values, err := c.cache.client.HGetAll(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(values) == 0) {
		return types.Date{}, 0, false, nil
	}
	if err != nil {
		return types.Date{}, 0, false, apperrors.NewCacheError("get latest price", err)
	}

	date, err = types.ParseDate(values["date"])
	if err != nil {
		return types.Date{}, 0, false, apperrors.NewCacheError("decode latest price date", err)
	}
	price, err = strconv.ParseFloat(values["price"], 64)
	if err != nil {
		return types.Date{}, 0, false, apperrors.NewCacheError("decode latest price", err)
	}
	return date, price, true, nil
}
