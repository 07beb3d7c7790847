// Package coalesce runs at most one computation per key at a time and hands
// its outcome to every caller that asked for the key while it was running.
//
// A key is either absent or computing. The first caller for an absent key
// becomes the leader and starts the computation; later callers join it. When
// the computation finishes, successfully or not, the key is absent again and
// the next caller starts afresh.
//
// The computation does not inherit the leader's cancellation: a caller that
// gives up returns ctx.Err() while the computation keeps running for the
// others, bounded by Config.ComputeTimeout.
package coalesce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrPanic is wrapped when a computation panicked.
var ErrPanic = errors.New("computation panicked")

// Config configures a Group.
type Config struct {
	// ComputeTimeout bounds a single computation regardless of its callers.
	ComputeTimeout time.Duration `yaml:"compute_timeout"`
}

// DefaultConfig returns a 30s compute timeout.
func DefaultConfig() Config {
	return Config{ComputeTimeout: 30 * time.Second}
}

// Outcome describes how a caller took part in a computation.
type Outcome struct {
	// Leader is true for the caller that started the computation.
	Leader bool

	// Shared is true when the result was delivered to more than one caller.
	Shared bool

	// FlightID identifies the computation in logs.
	FlightID string
}

type flight struct {
	id          string
	subscribers int
	started     time.Time
}

// Group coalesces computations producing T.
type Group[T any] struct {
	config Config
	logger zerolog.Logger
	sf     singleflight.Group

	// mu orders registry changes with singleflight membership: a key is in
	// flights exactly while singleflight holds a call for it.
	mu      sync.Mutex
	flights map[string]*flight
}

// New creates a Group.
func New[T any](cfg Config, logger zerolog.Logger) *Group[T] {
	if cfg.ComputeTimeout <= 0 {
		cfg.ComputeTimeout = DefaultConfig().ComputeTimeout
	}
	return &Group[T]{
		config:  cfg,
		logger:  logger.With().Str("component", "coalesce").Logger(),
		flights: make(map[string]*flight),
	}
}

// Do runs fn for key unless a computation for key is already running, in
// which case it waits for that computation's result instead.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (T, Outcome, error) {
	var zero T

	g.mu.Lock()
	f, joined := g.flights[key]
	if !joined {
		f = &flight{id: uuid.NewString(), started: time.Now()}
		g.flights[key] = f
		FlightsStarted.Inc()
		FlightsInProgress.Inc()
	} else {
		Joins.Inc()
	}
	f.subscribers++
	ch := g.sf.DoChan(key, func() (any, error) {
		return g.run(ctx, key, f, fn)
	})
	g.mu.Unlock()

	outcome := Outcome{Leader: !joined, FlightID: f.id}

	select {
	case res := <-ch:
		outcome.Shared = res.Shared
		if res.Err != nil {
			return zero, outcome, res.Err
		}
		v, _ := res.Val.(T)
		return v, outcome, nil

	case <-ctx.Done():
		g.mu.Lock()
		if g.flights[key] == f {
			f.subscribers--
		}
		g.mu.Unlock()
		WaiterCancellations.Inc()
		g.logger.Debug().
			Str("flight_id", f.id).
			Str("cache_key", key).
			Bool("leader", outcome.Leader).
			Msg("Caller left running computation")
		return zero, outcome, ctx.Err()
	}
}

// run executes fn for the leader and removes the key once fn returns.
func (g *Group[T]) run(ctx context.Context, key string, f *flight, fn func(ctx context.Context) (T, error)) (val any, err error) {
	computeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.config.ComputeTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			val = nil
			g.logger.Error().
				Str("flight_id", f.id).
				Str("cache_key", key).
				Interface("panic", r).
				Msg("Computation panicked")
		}

		g.mu.Lock()
		delete(g.flights, key)
		g.sf.Forget(key)
		subscribers := f.subscribers
		g.mu.Unlock()

		FlightsInProgress.Dec()
		FlightDuration.Observe(time.Since(f.started).Seconds())
		g.logger.Debug().
			Str("flight_id", f.id).
			Str("cache_key", key).
			Int("subscribers", subscribers).
			Err(err).
			Msg("Computation finished")
	}()

	return fn(computeCtx)
}

// InFlight returns the number of running computations.
func (g *Group[T]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.flights)
}

// Subscribers returns the number of callers waiting on key, or 0 when no
// computation for key is running.
func (g *Group[T]) Subscribers(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if f, ok := g.flights[key]; ok {
		return f.subscribers
	}
	return 0
}
