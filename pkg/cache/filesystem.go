package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/asset-variants/pkg/backend"
	"github.com/rs/zerolog"
)

const backendFilesystem = "filesystem"

// FilesystemStore keeps one blob file per key below root/<ab>/<cd>/<key>.
// A blob is the content type, a newline, then the payload. Blobs are written
// to a temporary file in the target directory and renamed into place, so a
// reader sees either the previous complete blob or the new one.
type FilesystemStore struct {
	root   string
	logger zerolog.Logger
}

// NewFilesystemStore creates the root directory if needed.
func NewFilesystemStore(cfg backend.Config, logger zerolog.Logger) (*FilesystemStore, error) {
	root := strings.TrimSpace(cfg.Filesystem.Root)
	if root == "" {
		return nil, errors.New("filesystem cache: root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("filesystem cache: ensure root: %w", err)
	}
	return &FilesystemStore{
		root:   root,
		logger: logger.With().Str("backend", backendFilesystem).Logger(),
	}, nil
}

// Path returns the blob path for key.
func (s *FilesystemStore) Path(key Key) string {
	return filepath.Join(s.root, filepath.FromSlash(key.Shard()), string(key))
}

// Get retrieves an entry by key.
func (s *FilesystemStore) Get(ctx context.Context, key Key) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get", err)
	}
	if !key.Valid() {
		return nil, fmt.Errorf("%w: malformed key %q", ErrInvalidEntry, key)
	}

	path := s.Path(key)
	blob, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			CacheMisses.WithLabelValues(backendFilesystem).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(backendFilesystem, "get").Inc()
		return nil, unavailable("read blob", err)
	}

	contentType, data, ok := bytes.Cut(blob, []byte{'\n'})
	if !ok {
		CacheErrors.WithLabelValues(backendFilesystem, "get").Inc()
		return nil, fmt.Errorf("%w: %s has no header", ErrInvalidEntry, path)
	}

	entry := &Entry{
		Key:         key,
		Data:        data,
		ContentType: string(contentType),
	}
	if info, err := os.Stat(path); err == nil {
		entry.CreatedAt = info.ModTime()
	}

	CacheHits.WithLabelValues(backendFilesystem).Inc()
	return entry, nil
}

// Put stores an entry atomically.
func (s *FilesystemStore) Put(ctx context.Context, key Key, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("put", err)
	}
	if !key.Valid() {
		return fmt.Errorf("%w: malformed key %q", ErrInvalidEntry, key)
	}
	if strings.ContainsAny(contentType, "\r\n") {
		return fmt.Errorf("%w: content type contains a newline", ErrInvalidEntry)
	}

	path := s.Path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		CacheErrors.WithLabelValues(backendFilesystem, "put").Inc()
		return unavailable("create shard directory", err)
	}

	tmp, err := os.CreateTemp(dir, string(key)+".tmp-*")
	if err != nil {
		CacheErrors.WithLabelValues(backendFilesystem, "put").Inc()
		return unavailable("create temp file", err)
	}
	tmpName := tmp.Name()

	writeErr := func() error {
		if _, err := tmp.WriteString(contentType + "\n"); err != nil {
			return err
		}
		if _, err := tmp.Write(data); err != nil {
			return err
		}
		if err := tmp.Sync(); err != nil {
			return err
		}
		return tmp.Close()
	}()
	if writeErr != nil {
		tmp.Close()
		os.Remove(tmpName)
		CacheErrors.WithLabelValues(backendFilesystem, "put").Inc()
		return unavailable("write temp file", writeErr)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		CacheErrors.WithLabelValues(backendFilesystem, "put").Inc()
		return unavailable("commit blob", err)
	}

	CacheBytesWritten.WithLabelValues(backendFilesystem).Add(float64(len(data)))
	s.logger.Debug().
		Str("cache_key", key.String()).
		Int("bytes", len(data)).
		Msg("Cached derivative")
	return nil
}

// Ping checks that the root directory is reachable.
func (s *FilesystemStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return unavailable("stat root", err)
	}
	if !info.IsDir() {
		return unavailable("stat root", fmt.Errorf("%s is not a directory", s.root))
	}
	return nil
}
