package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/asset-variants/pkg/backend"
	"github.com/Sternrassler/asset-variants/pkg/logging"
)

// LookupFunc reads one environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg from ASSET_* environment variables.
//
//	ASSET_ADDR, ASSET_LOG_LEVEL, ASSET_LOG_PRETTY
//	ASSET_ORIGIN_TYPE, ASSET_ORIGIN_ROOT, ASSET_ORIGIN_VERSION_STRATEGY, ASSET_ORIGIN_TIMEOUT
//	ASSET_ORIGIN_S3_{BUCKET,PREFIX,REGION,ENDPOINT,ACCESS_KEY,SECRET_KEY,PATH_STYLE}
//	ASSET_CACHE_TYPE, ASSET_CACHE_ROOT, ASSET_CACHE_TIMEOUT
//	ASSET_CACHE_S3_{BUCKET,PREFIX,REGION,ENDPOINT,ACCESS_KEY,SECRET_KEY,PATH_STYLE}
//	ASSET_CACHE_REDIS_{ADDR,PASSWORD,DB,TTL}
//	ASSET_MAX_DIMENSION, ASSET_MAX_SOURCE_PIXELS, ASSET_TRANSFORM_CONCURRENCY
//	ASSET_COMPUTE_TIMEOUT, ASSET_WARM_CONCURRENCY
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("ASSET_ADDR", &cfg.Server.Addr)
	if v, ok := e.get("ASSET_LOG_LEVEL"); ok {
		cfg.Logging.Level = logging.LogLevel(v)
	}
	e.boolean("ASSET_LOG_PRETTY", &cfg.Logging.Pretty)

	e.backend("ASSET_ORIGIN", &cfg.Origin)
	e.str("ASSET_ORIGIN_VERSION_STRATEGY", &cfg.Origin.Filesystem.VersionStrategy)

	e.backend("ASSET_CACHE", &cfg.Cache.Config)
	e.str("ASSET_CACHE_REDIS_ADDR", &cfg.Cache.Redis.Addr)
	e.str("ASSET_CACHE_REDIS_PASSWORD", &cfg.Cache.Redis.Password)
	e.integer("ASSET_CACHE_REDIS_DB", &cfg.Cache.Redis.DB)
	e.duration("ASSET_CACHE_REDIS_TTL", &cfg.Cache.Redis.TTL)

	e.integer("ASSET_MAX_DIMENSION", &cfg.Pipeline.MaxDimension)
	e.integer("ASSET_WARM_CONCURRENCY", &cfg.Pipeline.WarmConcurrency)
	e.duration("ASSET_COMPUTE_TIMEOUT", &cfg.Pipeline.Coalesce.ComputeTimeout)
	e.integer("ASSET_TRANSFORM_CONCURRENCY", &cfg.Transform.MaxConcurrent)
	if v, ok := e.get("ASSET_MAX_SOURCE_PIXELS"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail("ASSET_MAX_SOURCE_PIXELS", v, err)
		} else {
			cfg.Transform.MaxSourcePixels = n
		}
	}

	return e.err
}

type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("environment %s=%q: %w", key, value, err)
	}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) backend(prefix string, cfg *backend.Config) {
	if v, ok := e.get(prefix + "_TYPE"); ok {
		cfg.Type = backend.Type(v)
	}
	e.str(prefix+"_ROOT", &cfg.Filesystem.Root)
	e.duration(prefix+"_TIMEOUT", &cfg.Timeout)

	e.str(prefix+"_S3_BUCKET", &cfg.S3.Bucket)
	e.str(prefix+"_S3_PREFIX", &cfg.S3.Prefix)
	e.str(prefix+"_S3_REGION", &cfg.S3.Region)
	e.str(prefix+"_S3_ENDPOINT", &cfg.S3.Endpoint)
	e.str(prefix+"_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	e.str(prefix+"_S3_SECRET_KEY", &cfg.S3.SecretKey)
	e.boolean(prefix+"_S3_PATH_STYLE", &cfg.S3.UsePathStyle)
}
