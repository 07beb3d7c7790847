package backend

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for backend retries.
var (
	backendRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_backend_retries_total",
		Help: "Total number of backend retry attempts by operation",
	}, []string{"operation"})

	backendRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "asset_backend_retry_backoff_seconds",
		Help:    "Backoff duration for backend retries by operation",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"operation"})

	backendRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_backend_retry_exhausted_total",
		Help: "Total number of backend operations that exhausted their retry attempts",
	}, []string{"operation"})
)

// ErrRetryExhausted is wrapped when all attempts failed.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryConfig holds the configuration for adapter-level retries.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first call).
	MaxAttempts int `yaml:"max_attempts"`

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        500 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 50 * time.Millisecond
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 1
	}
	return c
}

// Retry executes fn with exponential backoff. Errors for which retryable
// returns false are returned immediately. Context cancellation stops waiting.
func Retry(ctx context.Context, cfg RetryConfig, operation string, fn func(ctx context.Context) error, retryable func(error) bool) error {
	cfg = cfg.normalized()

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Debug().
					Str("operation", operation).
					Int("attempt", attempt).
					Msg("Backend call succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if retryable != nil && !retryable(err) {
			return err
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		backendRetriesTotal.WithLabelValues(operation).Inc()

		// ±20% jitter
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		backendRetryBackoffSeconds.WithLabelValues(operation).Observe(jitter.Seconds())

		log.Debug().
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Err(err).
			Msg("Retrying backend call after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ctx.Err(), lastErr)
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	if cfg.MaxAttempts == 1 {
		return lastErr
	}

	backendRetryExhaustedTotal.WithLabelValues(operation).Inc()
	log.Warn().
		Str("operation", operation).
		Int("max_attempts", cfg.MaxAttempts).
		Err(lastErr).
		Msg("Backend retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, lastErr)
}
