package origin

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/asset-variants/pkg/backend"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilesystemStore(t *testing.T, strategy string) (*FilesystemStore, string) {
	t.Helper()
	root := t.TempDir()
	cfg := backend.DefaultConfig(root)
	cfg.Filesystem.VersionStrategy = strategy
	store, err := NewFilesystemStore(cfg, zerolog.Nop())
	require.NoError(t, err)
	return store, root
}

func writeFile(t *testing.T, root, rel string, data []byte) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "products/shoe.jpg", want: "products/shoe.jpg"},
		{in: "/products/shoe.jpg", want: "products/shoe.jpg"},
		{in: "./a.png", want: "a.png"},
		{in: `dir\a.png`, want: "dir/a.png"},
		{in: "a/../b.png", want: "b.png"},
		{in: "", wantErr: true},
		{in: "..", wantErr: true},
		{in: "../etc/passwd", wantErr: true},
		{in: "a/../../etc/passwd", wantErr: true},
		{in: "/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := sanitizeID(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewFilesystemStore_Errors(t *testing.T) {
	_, err := NewFilesystemStore(backend.Config{Type: backend.TypeFilesystem}, zerolog.Nop())
	assert.Error(t, err, "empty root")

	_, err = NewFilesystemStore(backend.DefaultConfig(filepath.Join(t.TempDir(), "missing")), zerolog.Nop())
	assert.Error(t, err, "missing root")

	cfg := backend.DefaultConfig(t.TempDir())
	cfg.Filesystem.VersionStrategy = "mtime"
	_, err = NewFilesystemStore(cfg, zerolog.Nop())
	assert.Error(t, err, "unknown strategy")
}

func TestFilesystemStore_Fetch(t *testing.T) {
	store, root := newTestFilesystemStore(t, VersionHash)
	writeFile(t, root, "products/shoe.png", []byte("\x89PNG\r\n\x1a\nrest"))

	rec, err := store.Fetch(context.Background(), "products/shoe.png")
	require.NoError(t, err)

	assert.Equal(t, "products/shoe.png", rec.ID)
	assert.Equal(t, "image/png", rec.ContentType)
	assert.Equal(t, int64(12), rec.Size)
	assert.Len(t, rec.Version, 64)

	version, err := store.StatVersion(context.Background(), "products/shoe.png")
	require.NoError(t, err)
	assert.Equal(t, rec.Version, version, "fetch and stat must agree")
}

func TestFilesystemStore_NotFound(t *testing.T) {
	store, root := newTestFilesystemStore(t, VersionHash)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir"), 0o750))
	ctx := context.Background()

	for _, id := range []string{"missing.png", "dir"} {
		_, err := store.Fetch(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound, "Fetch(%q)", id)

		_, err = store.StatVersion(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound, "StatVersion(%q)", id)
	}
}

func TestFilesystemStore_Traversal(t *testing.T) {
	store, _ := newTestFilesystemStore(t, VersionHash)

	_, err := store.Fetch(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestFilesystemStore_HashVersionFollowsContent(t *testing.T) {
	store, root := newTestFilesystemStore(t, VersionHash)
	ctx := context.Background()
	p := writeFile(t, root, "a.png", []byte("first"))

	v1, err := store.StatVersion(ctx, "a.png")
	require.NoError(t, err)

	// Touching without changing content keeps the tag.
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(p, later, later))
	v2, err := store.StatVersion(ctx, "a.png")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	require.NoError(t, os.WriteFile(p, []byte("second"), 0o644))
	require.NoError(t, os.Chtimes(p, later.Add(time.Hour), later.Add(time.Hour)))
	v3, err := store.StatVersion(ctx, "a.png")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v3)
}

func TestFilesystemStore_HashIsMemoized(t *testing.T) {
	store, root := newTestFilesystemStore(t, VersionHash)
	ctx := context.Background()
	writeFile(t, root, "memo.png", []byte("content"))

	before := testutil.ToFloat64(VersionHashes)
	for i := 0; i < 5; i++ {
		_, err := store.StatVersion(ctx, "memo.png")
		require.NoError(t, err)
	}
	assert.Equal(t, before+1, testutil.ToFloat64(VersionHashes))
}

func TestFilesystemStore_StatVersion(t *testing.T) {
	store, root := newTestFilesystemStore(t, VersionStat)
	ctx := context.Background()
	p := writeFile(t, root, "a.png", []byte("same"))

	v1, err := store.StatVersion(ctx, "a.png")
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(p, later, later))
	v2, err := store.StatVersion(ctx, "a.png")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2, "stat strategy follows mtime")

	rec, err := store.Fetch(ctx, "a.png")
	require.NoError(t, err)
	assert.Equal(t, v2, rec.Version)
}

func TestFilesystemStore_ConcurrentStat(t *testing.T) {
	store, root := newTestFilesystemStore(t, VersionHash)
	writeFile(t, root, "a.png", []byte("content"))

	var wg sync.WaitGroup
	versions := make([]string, 16)
	for i := range versions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := store.StatVersion(context.Background(), "a.png")
			assert.NoError(t, err)
			versions[i] = v
		}(i)
	}
	wg.Wait()

	for _, v := range versions {
		assert.Equal(t, versions[0], v)
	}
}

func TestDetectContentType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	avif := []byte("\x00\x00\x00\x1cftypavif\x00\x00\x00\x00")

	tests := []struct {
		name     string
		declared string
		id       string
		data     []byte
		want     string
	}{
		{"declared wins", "image/webp", "a.png", png, "image/webp"},
		{"generic declared ignored", "binary/octet-stream", "a.jpg", png, "image/jpeg"},
		{"extension", "", "photo.JPEG", nil, "image/jpeg"},
		{"avif extension", "", "photo.avif", nil, "image/avif"},
		{"sniffed png", "", "noext", png, "image/png"},
		{"sniffed avif", "", "noext", avif, "image/avif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectContentType(tt.declared, tt.id, tt.data))
		})
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	store, err := New(context.Background(), backend.DefaultConfig(t.TempDir()), zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &FilesystemStore{}, store)

	_, err = New(context.Background(), backend.Config{Type: backend.TypeRedis, Redis: backend.RedisConfig{Addr: "localhost:6379"}}, zerolog.Nop())
	assert.Error(t, err, "redis cannot serve originals")
}
