// Package config assembles the process configuration once at startup:
// defaults, then an optional YAML file, then ASSET_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Sternrassler/asset-variants/pkg/backend"
	"github.com/Sternrassler/asset-variants/pkg/cache"
	"github.com/Sternrassler/asset-variants/pkg/imaging"
	"github.com/Sternrassler/asset-variants/pkg/logging"
	"github.com/Sternrassler/asset-variants/pkg/pipeline"
	"gopkg.in/yaml.v3"
)

// Config is the complete process configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   logging.Config  `yaml:"logging"`
	Origin    backend.Config  `yaml:"origin"`
	Cache     CacheConfig     `yaml:"cache"`
	Transform imaging.Config  `yaml:"transform"`
	Pipeline  pipeline.Config `yaml:"pipeline"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxWarmVariants bounds the variants accepted by one warm request.
	MaxWarmVariants int `yaml:"max_warm_variants"`
}

// CacheConfig is a backend plus the health guard wrapped around it.
type CacheConfig struct {
	backend.Config `yaml:",inline"`

	Guard cache.GuardConfig `yaml:"guard"`
}

// Default returns a configuration that serves ./data/originals and caches
// into ./data/variants.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxWarmVariants: 32,
		},
		Logging: logging.Config{
			Level:   logging.LevelInfo,
			Service: "asset-proxy",
		},
		Origin: backend.DefaultConfig("./data/originals"),
		Cache: CacheConfig{
			Config: backend.DefaultConfig("./data/variants"),
			Guard:  cache.DefaultGuardConfig(),
		},
		Transform: imaging.DefaultConfig(),
		Pipeline:  pipeline.DefaultConfig(),
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// decodeYAML overlays data onto cfg, rejecting unknown fields.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the configuration for values the process cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.MaxWarmVariants < 0 {
		errs = append(errs, errors.New("server.max_warm_variants must not be negative"))
	}
	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level %q is unknown", c.Logging.Level))
	}

	if err := c.Origin.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("origin: %w", err))
	} else if c.Origin.Kind() == backend.TypeRedis {
		errs = append(errs, errors.New("origin: redis cannot store originals"))
	}
	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	if c.Cache.Guard.FailureThreshold < 0 || c.Cache.Guard.Cooldown < 0 {
		errs = append(errs, errors.New("cache.guard values must not be negative"))
	}

	if c.Pipeline.MaxDimension <= 0 {
		errs = append(errs, errors.New("pipeline.max_dimension must be positive"))
	}
	if c.Transform.MaxSourcePixels < 0 {
		errs = append(errs, errors.New("transform.max_source_pixels must not be negative"))
	}
	if c.Transform.MaxConcurrent < 0 {
		errs = append(errs, errors.New("transform.max_concurrent must not be negative"))
	}

	return errors.Join(errs...)
}
