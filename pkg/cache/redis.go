package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/asset-variants/pkg/backend"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	backendRedis = "redis"

	// redisKeyPrefix namespaces derived entries in a shared Redis.
	redisKeyPrefix = "asset-variant:"
)

// RedisStore handles caching operations with Redis backend. Entries are
// JSON-encoded and written with a single SET, which Redis applies atomically.
type RedisStore struct {
	redis   *redis.Client
	ttl     time.Duration
	timeout time.Duration
	retry   backend.RetryConfig
	logger  zerolog.Logger
}

// NewRedisStore creates a new cache store with Redis backend.
func NewRedisStore(redisClient *redis.Client, cfg backend.Config, logger zerolog.Logger) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:   redisClient,
		ttl:     cfg.Redis.TTL,
		timeout: cfg.CallTimeout(),
		retry:   cfg.Retry,
		logger:  logger.With().Str("backend", backendRedis).Logger(),
	}
}

func redisKey(key Key) string {
	return redisKeyPrefix + string(key)
}

func isRedisRetryable(err error) bool {
	return !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled)
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (s *RedisStore) Get(ctx context.Context, key Key) (*Entry, error) {
	var data []byte
	err := backend.Retry(ctx, s.retry, "redis_get", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		var err error
		data, err = s.redis.Get(callCtx, redisKey(key)).Bytes()
		return err
	}, isRedisRetryable)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(backendRedis).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(backendRedis, "get").Inc()
		return nil, unavailable("redis get", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	entry.Key = key

	CacheHits.WithLabelValues(backendRedis).Inc()
	return &entry, nil
}

// Put stores an entry, expiring it after the configured TTL (0 = never).
func (s *RedisStore) Put(ctx context.Context, key Key, data []byte, contentType string) error {
	payload, err := json.Marshal(&Entry{
		Key:         key,
		Data:        data,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	err = backend.Retry(ctx, s.retry, "redis_set", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.redis.Set(callCtx, redisKey(key), payload, s.ttl).Err()
	}, isRedisRetryable)
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return unavailable("redis set", err)
	}

	CacheBytesWritten.WithLabelValues(backendRedis).Add(float64(len(data)))
	s.logger.Debug().
		Str("cache_key", key.String()).
		Dur("ttl", s.ttl).
		Msg("Cached derivative")
	return nil
}

// Delete removes a cache entry.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, redisKey(key)).Err(); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "delete").Inc()
		return unavailable("redis del", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable("redis ping", err)
	}
	return nil
}
