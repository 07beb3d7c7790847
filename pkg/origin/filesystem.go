package origin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/asset-variants/pkg/backend"
	"github.com/rs/zerolog"
)

const backendFilesystem = "filesystem"

// Version strategies of the filesystem backend.
const (
	// VersionHash tags a file with the SHA-256 of its content. The hash is
	// memoized per (path, size, mtime), so StatVersion costs one os.Stat as
	// long as the file is unchanged and one full read after it changes.
	VersionHash = "hash"

	// VersionStat tags a file with its size and mtime. It never reads the
	// content, but touching a file changes the tag without a content change.
	VersionStat = "stat"
)

type versionMemo struct {
	size    int64
	modTime time.Time
	version string
}

// FilesystemStore reads originals below a root directory. Identifiers are
// slash-separated paths relative to the root.
type FilesystemStore struct {
	root     string
	strategy string
	logger   zerolog.Logger

	mu   sync.Mutex
	memo map[string]versionMemo
}

// NewFilesystemStore creates an origin store rooted at cfg.Filesystem.Root.
// The root must exist.
func NewFilesystemStore(cfg backend.Config, logger zerolog.Logger) (*FilesystemStore, error) {
	root := strings.TrimSpace(cfg.Filesystem.Root)
	if root == "" {
		return nil, errors.New("filesystem origin: root is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("filesystem origin: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("filesystem origin: %s is not a directory", root)
	}

	strategy := cfg.Filesystem.VersionStrategy
	if strategy == "" {
		strategy = VersionHash
	}
	if strategy != VersionHash && strategy != VersionStat {
		return nil, fmt.Errorf("filesystem origin: unknown version strategy %q", strategy)
	}

	return &FilesystemStore{
		root:     root,
		strategy: strategy,
		logger:   logger.With().Str("backend", backendFilesystem).Logger(),
		memo:     make(map[string]versionMemo),
	}, nil
}

// sanitizeID normalizes an identifier and prevents escaping the root.
func sanitizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.ContainsRune(id, 0) {
		return "", fmt.Errorf("%w: contains NUL", ErrInvalidID)
	}
	id = strings.ReplaceAll(id, "\\", "/")
	id = strings.TrimPrefix(id, "./")
	id = strings.TrimLeft(id, "/")
	cleaned := filepath.ToSlash(filepath.Clean(id))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return cleaned, nil
}

func (s *FilesystemStore) path(id string) (string, error) {
	cleaned, err := sanitizeID(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

func (s *FilesystemStore) stat(p, id string) (fs.FileInfo, error) {
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(id)
		}
		return nil, unavailable("stat", err)
	}
	if !info.Mode().IsRegular() {
		return nil, notFound(id)
	}
	return info, nil
}

// StatVersion returns the version tag of id.
func (s *FilesystemStore) StatVersion(ctx context.Context, id string) (version string, err error) {
	defer func() { observe(backendFilesystem, "stat", err) }()

	if err := ctx.Err(); err != nil {
		return "", unavailable("stat", err)
	}
	p, err := s.path(id)
	if err != nil {
		return "", err
	}
	info, err := s.stat(p, id)
	if err != nil {
		return "", err
	}

	if s.strategy == VersionStat {
		return statVersion(info), nil
	}
	if v, ok := s.memoized(p, info); ok {
		return v, nil
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", notFound(id)
		}
		return "", unavailable("open", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", unavailable("hash", err)
	}
	VersionHashes.Inc()

	v := hex.EncodeToString(h.Sum(nil))
	s.remember(p, info, v)
	return v, nil
}

// Fetch reads id in full.
func (s *FilesystemStore) Fetch(ctx context.Context, id string) (record *Record, err error) {
	defer func() { observe(backendFilesystem, "fetch", err) }()

	if err := ctx.Err(); err != nil {
		return nil, unavailable("fetch", err)
	}
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	info, err := s.stat(p, id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(id)
		}
		return nil, unavailable("read", err)
	}
	OriginBytesRead.WithLabelValues(backendFilesystem).Add(float64(len(data)))

	var version string
	if s.strategy == VersionStat {
		version = statVersion(info)
	} else {
		sum := sha256.Sum256(data)
		version = hex.EncodeToString(sum[:])
		if int64(len(data)) == info.Size() {
			s.remember(p, info, version)
		}
	}

	return &Record{
		ID:          id,
		Data:        data,
		ContentType: detectContentType("", p, data),
		Size:        int64(len(data)),
		Version:     version,
	}, nil
}

// Ping checks that the root directory is reachable.
func (s *FilesystemStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.root); err != nil {
		return unavailable("stat root", err)
	}
	return nil
}

func statVersion(info fs.FileInfo) string {
	return strconv.FormatInt(info.Size(), 16) + "-" + strconv.FormatInt(info.ModTime().UnixNano(), 16)
}

func (s *FilesystemStore) memoized(p string, info fs.FileInfo) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memo[p]
	if !ok || m.size != info.Size() || !m.modTime.Equal(info.ModTime()) {
		return "", false
	}
	return m.version, true
}

func (s *FilesystemStore) remember(p string, info fs.FileInfo, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memo[p] = versionMemo{size: info.Size(), modTime: info.ModTime(), version: version}
}
