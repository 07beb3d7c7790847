package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/asset-variants/pkg/backend"
	"github.com/rs/zerolog"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrUnavailable indicates the cache backend failed or timed out.
	ErrUnavailable = errors.New("cache unavailable")

	// ErrInvalidEntry indicates the stored entry is corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store gets and puts derived assets by key. A key is either absent or bound
// to one complete payload: readers never observe a partially written entry.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns ErrCacheMiss when the key is absent and an error wrapping
	// ErrUnavailable when the backend fails.
	Get(ctx context.Context, key Key) (*Entry, error)

	// Put stores data under key. Writing the same key twice is safe; the last
	// complete write wins.
	Put(ctx context.Context, key Key, data []byte, contentType string) error
}

// Pinger is implemented by stores that support readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New builds the cache store selected by cfg.Type.
func New(ctx context.Context, cfg backend.Config, logger zerolog.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cache backend: %w", err)
	}

	switch cfg.Kind() {
	case backend.TypeFilesystem:
		return NewFilesystemStore(cfg, logger)
	case backend.TypeS3:
		client, err := backend.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("cache backend: %w", err)
		}
		return NewS3Store(client, cfg, logger), nil
	case backend.TypeRedis:
		return NewRedisStore(backend.NewRedisClient(cfg.Redis), cfg, logger), nil
	default:
		return nil, fmt.Errorf("cache backend: unsupported type %q", cfg.Type)
	}
}

// unavailable wraps a backend failure with ErrUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
