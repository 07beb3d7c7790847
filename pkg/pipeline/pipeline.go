// Package pipeline resolves asset variants: it parses the transform request,
// looks the derivative up in the cache and, on a miss, derives it once from
// the original no matter how many callers ask for it at the same time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/asset-variants/pkg/cache"
	"github.com/Sternrassler/asset-variants/pkg/coalesce"
	"github.com/Sternrassler/asset-variants/pkg/imaging"
	"github.com/Sternrassler/asset-variants/pkg/origin"
	"github.com/Sternrassler/asset-variants/pkg/transform"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for variant resolution.
var (
	resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_resolve_total",
		Help: "Total variant resolutions by cache status",
	}, []string{"status"})

	resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "asset_resolve_duration_seconds",
		Help:    "Variant resolution duration in seconds by cache status",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"status"})

	resolveErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_resolve_errors_total",
		Help: "Total failed variant resolutions by error kind",
	}, []string{"kind"})

	cacheDegradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_cache_degraded_total",
		Help: "Total cache failures absorbed by the pipeline by operation",
	}, []string{"operation"})
)

// Status reports where a variant came from.
type Status string

const (
	// StatusHit means the variant was read from the cache.
	StatusHit Status = "hit"

	// StatusMiss means the variant was derived for this request or for a
	// concurrent request it joined.
	StatusMiss Status = "miss"
)

// Result is a resolved variant.
type Result struct {
	Data        []byte
	ContentType string
	Status      Status

	// Shared is true when the derivation served several concurrent callers.
	Shared bool

	Key     cache.Key
	Version string
}

// Config holds the pipeline configuration.
type Config struct {
	// MaxDimension bounds requested widths and heights.
	MaxDimension int `yaml:"max_dimension"`

	// Coalesce configures the per-key computation group.
	Coalesce coalesce.Config `yaml:"coalesce"`

	// WarmConcurrency bounds parallel derivations within one Warm call.
	WarmConcurrency int `yaml:"warm_concurrency"`
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxDimension:    transform.DefaultMaxDimension,
		Coalesce:        coalesce.DefaultConfig(),
		WarmConcurrency: 4,
	}
}

// derived is the outcome of one computation, shared by all its callers.
type derived struct {
	data        []byte
	contentType string
	key         cache.Key
	version     string

	// cached is set when another computation stored the variant after this
	// caller's lookup.
	cached bool
}

// Pipeline is the entry point of the HTTP layer.
type Pipeline struct {
	parser  *transform.Parser
	origin  origin.Store
	cache   cache.Store
	engine  imaging.Engine
	flights *coalesce.Group[*derived]
	config  Config
	logger  zerolog.Logger
}

// New creates a Pipeline.
func New(cfg Config, originStore origin.Store, cacheStore cache.Store, engine imaging.Engine) (*Pipeline, error) {
	if originStore == nil {
		return nil, fmt.Errorf("origin store is required")
	}
	if cacheStore == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("transform engine is required")
	}
	if cfg.MaxDimension < 0 {
		return nil, fmt.Errorf("max_dimension must not be negative (got %d)", cfg.MaxDimension)
	}
	if cfg.WarmConcurrency <= 0 {
		cfg.WarmConcurrency = DefaultConfig().WarmConcurrency
	}

	logger := log.With().Str("component", "pipeline").Logger()

	return &Pipeline{
		parser:  transform.NewParser(cfg.MaxDimension),
		origin:  originStore,
		cache:   cacheStore,
		engine:  engine,
		flights: coalesce.New[*derived](cfg.Coalesce, logger),
		config:  cfg,
		logger:  logger,
	}, nil
}

// Resolve returns the variant of asset id described by params (typically
// url.Values). Every step runs at most once; cache failures degrade to a
// recomputation and are never returned.
func (p *Pipeline) Resolve(ctx context.Context, id string, params map[string][]string) (*Result, error) {
	spec, err := p.parser.Parse(params)
	if err != nil {
		return nil, p.fail(time.Now(), invalidSpec(id, err))
	}
	return p.resolve(ctx, id, spec)
}

func (p *Pipeline) resolve(ctx context.Context, id string, spec transform.Spec) (*Result, error) {
	startTime := time.Now()

	// Step 1: Current origin version
	version, err := p.origin.StatVersion(ctx, id)
	if err != nil {
		return nil, p.fail(startTime, originError(id, err))
	}
	key := cache.NewKey(id, version, spec)

	// Step 2: Cache lookup
	entry, err := p.cache.Get(ctx, key)
	switch {
	case err == nil:
		p.logger.Debug().
			Str("asset_id", id).
			Str("cache_key", key.String()).
			Str("cache_status", string(StatusHit)).
			Msg("Cache hit")
		p.observe(startTime, StatusHit)
		return &Result{
			Data:        entry.Data,
			ContentType: entry.ContentType,
			Status:      StatusHit,
			Key:         key,
			Version:     version,
		}, nil
	case errors.Is(err, cache.ErrCacheMiss):
	default:
		cacheDegradedTotal.WithLabelValues("get").Inc()
		p.logger.Warn().
			Err(err).
			Str("asset_id", id).
			Str("cache_key", key.String()).
			Msg("Cache get failed, deriving without cache")
	}

	// Step 3: Derive once per key
	d, outcome, err := p.flights.Do(ctx, key.String(), func(ctx context.Context) (*derived, error) {
		return p.derive(ctx, id, spec, version, key)
	})
	if err != nil {
		var perr *Error
		if !errors.As(err, &perr) {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				// Caller left; the computation continues for the others.
				return nil, err
			}
			perr = &Error{Kind: KindTransformFailed, AssetID: id, Err: err}
		}
		return nil, p.fail(startTime, perr)
	}

	status := StatusMiss
	if d.cached {
		status = StatusHit
	}
	p.logger.Debug().
		Str("asset_id", id).
		Str("cache_key", d.key.String()).
		Str("flight_id", outcome.FlightID).
		Bool("leader", outcome.Leader).
		Bool("shared", outcome.Shared).
		Str("cache_status", string(status)).
		Msg("Variant resolved")
	p.observe(startTime, status)

	return &Result{
		Data:        d.data,
		ContentType: d.contentType,
		Status:      status,
		Shared:      outcome.Shared,
		Key:         d.key,
		Version:     d.version,
	}, nil
}

// derive runs in the leader's computation: origin fetch, transform and a
// best-effort cache write.
func (p *Pipeline) derive(ctx context.Context, id string, spec transform.Spec, version string, key cache.Key) (*derived, error) {
	// A computation that finished between the caller's lookup and this flight
	// may already have stored the variant. Failures count as a miss.
	if entry, err := p.cache.Get(ctx, key); err == nil {
		return &derived{
			data:        entry.Data,
			contentType: entry.ContentType,
			key:         key,
			version:     version,
			cached:      true,
		}, nil
	}

	rec, err := p.origin.Fetch(ctx, id)
	if err != nil {
		return nil, originError(id, err)
	}

	if rec.Version != "" && rec.Version != version {
		// The original changed between stat and fetch; key what we derive
		// by what we actually read.
		p.logger.Info().
			Str("asset_id", id).
			Str("version", version).
			Str("fetched_version", rec.Version).
			Msg("Origin changed during resolution")
		version = rec.Version
		key = cache.NewKey(id, version, spec)
	}

	out, err := p.engine.Apply(ctx, rec.Data, rec.ContentType, spec)
	if err != nil {
		kind := KindTransformFailed
		if errors.Is(err, imaging.ErrUnsupportedSourceFormat) {
			kind = KindUnsupportedSourceFormat
		}
		p.logger.Error().
			Err(err).
			Str("asset_id", id).
			Str("version", version).
			Str("spec", spec.Canonical()).
			Str("content_type", rec.ContentType).
			Msg("Transform failed")
		return nil, &Error{Kind: kind, AssetID: id, Err: err}
	}

	if err := p.cache.Put(ctx, key, out.Data, out.ContentType); err != nil {
		cacheDegradedTotal.WithLabelValues("put").Inc()
		p.logger.Warn().
			Err(err).
			Str("asset_id", id).
			Str("cache_key", key.String()).
			Msg("Cache put failed, serving uncached result")
	}

	p.logger.Info().
		Str("asset_id", id).
		Str("spec", spec.Canonical()).
		Str("cache_key", key.String()).
		Int("bytes", len(out.Data)).
		Msg("Derived variant")

	return &derived{
		data:        out.Data,
		contentType: out.ContentType,
		key:         key,
		version:     version,
	}, nil
}

func (p *Pipeline) observe(startTime time.Time, status Status) {
	resolveTotal.WithLabelValues(string(status)).Inc()
	resolveDuration.WithLabelValues(string(status)).Observe(time.Since(startTime).Seconds())
}

func (p *Pipeline) fail(startTime time.Time, err *Error) error {
	resolveTotal.WithLabelValues("error").Inc()
	resolveDuration.WithLabelValues("error").Observe(time.Since(startTime).Seconds())
	resolveErrorsTotal.WithLabelValues(string(err.Kind)).Inc()
	return err
}

func invalidSpec(id string, err error) *Error {
	e := &Error{Kind: KindInvalidTransformSpec, AssetID: id, Err: err}
	var perr *transform.ParseError
	if errors.As(err, &perr) {
		e.Param = perr.Param
	}
	return e
}

func originError(id string, err error) *Error {
	switch {
	case errors.Is(err, origin.ErrNotFound), errors.Is(err, origin.ErrInvalidID):
		return &Error{Kind: KindOriginNotFound, AssetID: id, Err: err}
	default:
		return &Error{Kind: KindOriginUnavailable, AssetID: id, Err: err}
	}
}
