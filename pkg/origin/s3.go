package origin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
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
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store reads originals from a bucket. The object ETag is the version tag,
// so StatVersion is a single HEAD request.
type S3Store struct {
	client  S3API
	bucket  string
	prefix  string
	timeout time.Duration
	retry   backend.RetryConfig
	logger  zerolog.Logger
}

// NewS3Store creates an S3-backed origin store.
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

// ObjectKey returns the object key for an asset identifier.
func (s *S3Store) ObjectKey(id string) (string, error) {
	cleaned, err := sanitizeID(id)
	if err != nil {
		return "", err
	}
	return path.Join(s.prefix, cleaned), nil
}

// StatVersion returns the object's ETag.
func (s *S3Store) StatVersion(ctx context.Context, id string) (version string, err error) {
	defer func() { observe(backendS3, "stat", err) }()

	objectKey, err := s.ObjectKey(id)
	if err != nil {
		return "", err
	}

	err = backend.Retry(ctx, s.retry, "s3_head_origin", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		out, err := s.client.HeadObject(callCtx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectKey),
		})
		if err != nil {
			return err
		}
		version = normalizeETag(aws.ToString(out.ETag))
		return nil
	}, backend.IsS3Retryable)
	if err != nil {
		return "", s.classify(id, "head object", err)
	}
	if version == "" {
		return "", unavailable("head object", fmt.Errorf("object %s has no ETag", objectKey))
	}
	return version, nil
}

// Fetch downloads the object.
func (s *S3Store) Fetch(ctx context.Context, id string) (record *Record, err error) {
	defer func() { observe(backendS3, "fetch", err) }()

	objectKey, err := s.ObjectKey(id)
	if err != nil {
		return nil, err
	}

	err = backend.Retry(ctx, s.retry, "s3_get_origin", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		out, err := s.client.GetObject(callCtx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectKey),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()

		data, err := io.ReadAll(out.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		record = &Record{
			ID:          id,
			Data:        data,
			ContentType: detectContentType(aws.ToString(out.ContentType), objectKey, data),
			Size:        int64(len(data)),
			Version:     normalizeETag(aws.ToString(out.ETag)),
		}
		return nil
	}, backend.IsS3Retryable)
	if err != nil {
		return nil, s.classify(id, "get object", err)
	}

	if record.Version == "" {
		sum := sha256.Sum256(record.Data)
		record.Version = hex.EncodeToString(sum[:])
	}
	OriginBytesRead.WithLabelValues(backendS3).Add(float64(len(record.Data)))
	return record, nil
}

// Ping checks that the bucket is reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.client.HeadBucket(callCtx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return unavailable("head bucket", err)
	}
	return nil
}

func (s *S3Store) classify(id, op string, err error) error {
	if backend.IsS3NotFound(err) {
		return notFound(id)
	}
	s.logger.Warn().
		Err(err).
		Str("asset_id", id).
		Str("operation", op).
		Msg("Origin request failed")
	return unavailable(op, err)
}

func normalizeETag(etag string) string {
	etag = strings.TrimPrefix(strings.TrimSpace(etag), "W/")
	return strings.Trim(etag, `"`)
}
