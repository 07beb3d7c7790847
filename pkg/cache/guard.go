package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrGuardOpen is wrapped (together with ErrUnavailable) while the guard
// bypasses the backend.
var ErrGuardOpen = errors.New("cache backend bypassed after repeated failures")

// GuardConfig configures a GuardedStore.
type GuardConfig struct {
	// FailureThreshold is the number of consecutive unavailable errors that
	// opens the guard.
	FailureThreshold int `yaml:"failure_threshold"`

	// Cooldown is how long the backend is bypassed once the guard opens.
	Cooldown time.Duration `yaml:"cooldown"`
}

// DefaultGuardConfig returns a guard that opens after 5 failures for 10s.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		FailureThreshold: 5,
		Cooldown:         10 * time.Second,
	}
}

// GuardedStore wraps a Store and stops calling it for a cool-down window after
// repeated ErrUnavailable failures, so a dead cache backend costs one fast
// error per request instead of one timeout. After the window a single call is
// let through; its outcome closes or re-opens the guard.
type GuardedStore struct {
	next   Store
	config GuardConfig
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	failures  int
	openUntil time.Time
	probing   bool
}

// NewGuardedStore wraps next.
func NewGuardedStore(next Store, cfg GuardConfig, logger zerolog.Logger) *GuardedStore {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultGuardConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultGuardConfig().Cooldown
	}
	return &GuardedStore{
		next:   next,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Get forwards to the wrapped store unless the guard is open.
func (g *GuardedStore) Get(ctx context.Context, key Key) (*Entry, error) {
	if !g.allow() {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ErrGuardOpen)
	}
	entry, err := g.next.Get(ctx, key)
	g.record(ctx, err)
	return entry, err
}

// Put forwards to the wrapped store unless the guard is open.
func (g *GuardedStore) Put(ctx context.Context, key Key, data []byte, contentType string) error {
	if !g.allow() {
		return fmt.Errorf("%w: %w", ErrUnavailable, ErrGuardOpen)
	}
	err := g.next.Put(ctx, key, data, contentType)
	g.record(ctx, err)
	return err
}

// Ping forwards to the wrapped store when it supports readiness checks.
func (g *GuardedStore) Ping(ctx context.Context) error {
	if p, ok := g.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// IsOpen reports whether the backend is currently bypassed.
func (g *GuardedStore) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now().Before(g.openUntil)
}

func (g *GuardedStore) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.openUntil.IsZero() {
		return true
	}
	if g.now().Before(g.openUntil) || g.probing {
		return false
	}
	// Half-open: let one call through.
	g.probing = true
	return true
}

// record updates the guard with the outcome of one backend call. Calls cut
// short by the caller's context say nothing about the backend.
func (g *GuardedStore) record(ctx context.Context, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.probing = false
	if ctx.Err() != nil {
		return
	}

	if err == nil || !errors.Is(err, ErrUnavailable) {
		if !g.openUntil.IsZero() {
			g.logger.Info().Msg("Cache backend recovered, guard closed")
			GuardOpen.Set(0)
		}
		g.failures = 0
		g.openUntil = time.Time{}
		return
	}

	g.failures++
	if g.failures >= g.config.FailureThreshold {
		g.openUntil = g.now().Add(g.config.Cooldown)
		GuardOpen.Set(1)
		g.logger.Warn().
			Err(err).
			Int("failures", g.failures).
			Dur("cooldown", g.config.Cooldown).
			Msg("Cache backend failing, bypassing until cooldown expires")
	}
}
