// Package origin reads immutable original assets from a storage backend.
//
// Every backend reports a version tag that changes whenever the stored bytes
// change. The tag is folded into the cache key, so replacing an original
// orphans all of its cached derivatives without an explicit purge.
package origin

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/Sternrassler/asset-variants/pkg/backend"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound indicates the asset does not exist. Not retryable.
	ErrNotFound = errors.New("origin asset not found")

	// ErrUnavailable indicates the backend failed or timed out. Retryable.
	ErrUnavailable = errors.New("origin unavailable")

	// ErrInvalidID indicates an identifier that cannot name an asset.
	ErrInvalidID = errors.New("invalid asset identifier")
)

// Record is an original asset as read from the backend.
type Record struct {
	ID          string
	Data        []byte
	ContentType string
	Size        int64

	// Version changes if and only if Data changes.
	Version string
}

// Store reads originals. Implementations must be safe for concurrent use.
type Store interface {
	// Fetch reads the full asset.
	Fetch(ctx context.Context, id string) (*Record, error)

	// StatVersion returns the current version tag without transferring the
	// content where the backend allows it.
	StatVersion(ctx context.Context, id string) (string, error)
}

// New builds the origin store selected by cfg.Type.
func New(ctx context.Context, cfg backend.Config, logger zerolog.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("origin backend: %w", err)
	}

	switch cfg.Kind() {
	case backend.TypeFilesystem:
		return NewFilesystemStore(cfg, logger)
	case backend.TypeS3:
		client, err := backend.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("origin backend: %w", err)
		}
		return NewS3Store(client, cfg, logger), nil
	default:
		return nil, fmt.Errorf("origin backend: unsupported type %q", cfg.Type)
	}
}

// unavailable wraps a backend failure with ErrUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".avif": "image/avif",
}

// detectContentType resolves the content type of an asset: declared metadata
// first, then the file extension, then content sniffing.
func detectContentType(declared, id string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "binary/octet-stream" && declared != "application/octet-stream" {
		return declared
	}

	ext := strings.ToLower(path.Ext(id))
	if ct, ok := imageExtensions[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	if isAVIF(data) {
		return "image/avif"
	}
	return http.DetectContentType(data)
}

// isAVIF checks the ISO-BMFF ftyp brand, which http.DetectContentType does
// not know.
func isAVIF(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "avif" || brand == "avis"
}
