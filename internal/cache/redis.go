package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/gdmt-audit-server/internal/domain"
)

// RedisCache stores audits in Redis behind a circuit breaker. While the breaker is open every
// Get is a miss and every Set is dropped.
type RedisCache struct {
	client     *redis.Client
	breaker    *gobreaker.CircuitBreaker
	defaultTTL time.Duration
	logger     *logrus.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(config domain.CacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheWithClient(client, config.DefaultTTL, logger), nil
}

// NewRedisCacheWithClient wraps an existing client without pinging it.
func NewRedisCacheWithClient(client *redis.Client, defaultTTL time.Duration, logger *logrus.Logger) *RedisCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	if logger == nil {
		logger = logrus.New()
	}
	c := &RedisCache{
		client:     client,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-audit-cache",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return c
}

// Get returns a cached audit. Redis errors are logged and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (*domain.AuditResult, bool) {
	val, err := c.breaker.Execute(func() (interface{}, error) {
		s, err := c.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return s, err
	})
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Debug("Redis cache lookup failed")
		return nil, false
	}
	raw := val.(string)
	if raw == "" {
		return nil, false
	}

	var cached cachedAudit
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		c.client.Del(ctx, key)
		return nil, false
	}
	if cached.expired(time.Now()) {
		c.client.Del(ctx, key)
		return nil, false
	}
	return cached.Data, true
}

// Set stores an audit.
func (c *RedisCache) Set(ctx context.Context, key string, result *domain.AuditResult, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()
	data, err := json.Marshal(cachedAudit{Data: result, CachedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return fmt.Errorf("failed to marshal audit cache data: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, key, data, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to set audit cache: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Del(ctx, key).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to delete audit cache: %w", err)
	}
	return nil
}

// State reports the circuit breaker state.
func (c *RedisCache) State() gobreaker.State {
	return c.breaker.State()
}

// Ping checks Redis through the circuit breaker.
func (c *RedisCache) Ping(ctx context.Context) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Ping(ctx).Err()
	})
	if err != nil {
		return fmt.Errorf("redis unavailable: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
