// Package backend holds the configuration and shared plumbing for storage
// backends: the object-storage client, the Redis client and the retry policy
// used by every adapter. Origin and cache stores are built from a Config.
package backend

import (
	"fmt"
	"strings"
	"time"
)

// Type names a storage backend implementation.
type Type string

const (
	// TypeFilesystem stores objects below a local root directory.
	TypeFilesystem Type = "filesystem"

	// TypeS3 stores objects in an S3-compatible bucket.
	TypeS3 Type = "s3"

	// TypeRedis stores objects in Redis (cache only).
	TypeRedis Type = "redis"
)

// Config selects and configures one backend.
type Config struct {
	Type Type `yaml:"type"`

	// Timeout bounds every single backend call. Exceeding it surfaces as the
	// store's unavailable error.
	Timeout time.Duration `yaml:"timeout"`

	Retry      RetryConfig      `yaml:"retry"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
	S3         S3Config         `yaml:"s3"`
	Redis      RedisConfig      `yaml:"redis"`
}

// FilesystemConfig configures the local filesystem backend.
type FilesystemConfig struct {
	// Root is the base directory.
	Root string `yaml:"root"`

	// VersionStrategy is "hash" (content SHA-256, memoized per size+mtime) or
	// "stat" (size+mtime only). Origin stores only.
	VersionStrategy string `yaml:"version_strategy"`
}

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// TTL expires cache entries; 0 keeps them until evicted by Redis.
	TTL time.Duration `yaml:"ttl"`
}

// DefaultConfig returns a filesystem backend rooted at root.
func DefaultConfig(root string) Config {
	return Config{
		Type:    TypeFilesystem,
		Timeout: 10 * time.Second,
		Retry:   DefaultRetryConfig(),
		Filesystem: FilesystemConfig{
			Root:            root,
			VersionStrategy: "hash",
		},
	}
}

// Kind returns the normalized backend type.
func (c Config) Kind() Type {
	return Type(strings.ToLower(strings.TrimSpace(string(c.Type))))
}

// Validate checks the options of the selected backend type.
func (c Config) Validate() error {
	switch c.Kind() {
	case TypeFilesystem:
		if strings.TrimSpace(c.Filesystem.Root) == "" {
			return fmt.Errorf("filesystem backend: root is required")
		}
		switch c.Filesystem.VersionStrategy {
		case "", "hash", "stat":
		default:
			return fmt.Errorf("filesystem backend: unknown version_strategy %q", c.Filesystem.VersionStrategy)
		}
	case TypeS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3 backend: bucket is required")
		}
	case TypeRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis backend: addr is required")
		}
	default:
		return fmt.Errorf("unknown backend type %q", c.Type)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// CallTimeout returns the per-call timeout, defaulting to 10s when unset.
func (c Config) CallTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}
