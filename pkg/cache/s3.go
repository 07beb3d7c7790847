package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/Sternrassler/asset-variants/pkg/backend"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const backendS3 = "s3"

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store stores derivatives as objects under <prefix>/<ab>/<cd>/<key>.
// S3 makes a PUT visible only once complete.
type S3Store struct {
	client  S3API
	bucket  string
	prefix  string
	timeout time.Duration
	retry   backend.RetryConfig
	logger  zerolog.Logger
}

// NewS3Store creates an S3-backed cache store.
func NewS3Store(client S3API, cfg backend.Config, logger zerolog.Logger) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  cfg.S3.Bucket,
		prefix:  strings.Trim(cfg.S3.Prefix, "/"),
		timeout: cfg.CallTimeout(),
		retry:   cfg.Retry,
		logger:  logger.With().Str("backend", backendS3).Str("bucket", cfg.S3.Bucket).Logger(),
	}
}

// ObjectKey returns the object key for a cache key.
func (s *S3Store) ObjectKey(key Key) string {
	return path.Join(s.prefix, key.Shard(), string(key))
}

// Get retrieves an entry by key.
func (s *S3Store) Get(ctx context.Context, key Key) (*Entry, error) {
	var entry *Entry
	err := backend.Retry(ctx, s.retry, "s3_get", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		out, err := s.client.GetObject(callCtx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.ObjectKey(key)),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()

		data, err := io.ReadAll(out.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		entry = &Entry{
			Key:         key,
			Data:        data,
			ContentType: aws.ToString(out.ContentType),
		}
		if out.LastModified != nil {
			entry.CreatedAt = *out.LastModified
		}
		return nil
	}, backend.IsS3Retryable)
	if err != nil {
		if backend.IsS3NotFound(err) {
			CacheMisses.WithLabelValues(backendS3).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(backendS3, "get").Inc()
		return nil, unavailable("s3 get", err)
	}

	CacheHits.WithLabelValues(backendS3).Inc()
	return entry, nil
}

// Put uploads an entry.
func (s *S3Store) Put(ctx context.Context, key Key, data []byte, contentType string) error {
	err := backend.Retry(ctx, s.retry, "s3_put", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		_, err := s.client.PutObject(callCtx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(s.ObjectKey(key)),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(contentType),
			CacheControl:  aws.String("public, max-age=31536000, immutable"),
		})
		return err
	}, backend.IsS3Retryable)
	if err != nil {
		CacheErrors.WithLabelValues(backendS3, "put").Inc()
		return unavailable("s3 put", err)
	}

	CacheBytesWritten.WithLabelValues(backendS3).Add(float64(len(data)))
	s.logger.Debug().
		Str("cache_key", key.String()).
		Int("bytes", len(data)).
		Msg("Cached derivative")
	return nil
}

// Ping checks that the bucket is reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.client.HeadBucket(callCtx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return unavailable("s3 head bucket", err)
	}
	return nil
}
