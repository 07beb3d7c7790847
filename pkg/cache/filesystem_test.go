package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Sternrassler/asset-variants/pkg/backend"
	"github.com/Sternrassler/asset-variants/pkg/transform"
	"github.com/rs/zerolog"
)

func newTestFilesystemStore(t *testing.T) *FilesystemStore {
	t.Helper()
	store, err := NewFilesystemStore(backend.DefaultConfig(t.TempDir()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}
	return store
}

func testKey(id string) Key {
	return NewKey(id, "v1", transform.Spec{Mode: transform.ModeCrop, Width: 10, Height: 10})
}

func TestNewFilesystemStore_RequiresRoot(t *testing.T) {
	if _, err := NewFilesystemStore(backend.Config{Type: backend.TypeFilesystem}, zerolog.Nop()); err == nil {
		t.Error("NewFilesystemStore with empty root should return error")
	}
}

func TestFilesystemStore_PutAndGet(t *testing.T) {
	store := newTestFilesystemStore(t)
	ctx := context.Background()
	key := testKey("a.png")

	if err := store.Put(ctx, key, []byte("derived bytes"), "image/webp"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entry, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(entry.Data) != "derived bytes" {
		t.Errorf("Data = %q, want %q", entry.Data, "derived bytes")
	}
	if entry.ContentType != "image/webp" {
		t.Errorf("ContentType = %q, want image/webp", entry.ContentType)
	}
	if entry.Key != key {
		t.Errorf("Key = %s, want %s", entry.Key, key)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestFilesystemStore_Get_CacheMiss(t *testing.T) {
	store := newTestFilesystemStore(t)

	_, err := store.Get(context.Background(), testKey("missing.png"))
	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestFilesystemStore_ShardedLayout(t *testing.T) {
	store := newTestFilesystemStore(t)
	key := testKey("a.png")

	if err := store.Put(context.Background(), key, []byte("x"), "image/png"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	want := filepath.Join(store.root, string(key)[0:2], string(key)[2:4], string(key))
	if _, err := os.Stat(want); err != nil {
		t.Errorf("blob not found at %s: %v", want, err)
	}

	entries, err := os.ReadDir(filepath.Dir(want))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestFilesystemStore_PutOverwrite(t *testing.T) {
	store := newTestFilesystemStore(t)
	ctx := context.Background()
	key := testKey("a.png")

	for _, payload := range []string{"first", "first", "second"} {
		if err := store.Put(ctx, key, []byte(payload), "image/png"); err != nil {
			t.Fatalf("Put(%q) failed: %v", payload, err)
		}
	}

	entry, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(entry.Data) != "second" {
		t.Errorf("Data = %q, want last write %q", entry.Data, "second")
	}
}

// TestFilesystemStore_ConcurrentPutGet checks readers only ever see complete
// payloads while writers race on the same key.
func TestFilesystemStore_ConcurrentPutGet(t *testing.T) {
	store := newTestFilesystemStore(t)
	ctx := context.Background()
	key := testKey("race.png")

	payloads := map[string]bool{}
	for i := 0; i < 4; i++ {
		payloads[strings.Repeat(fmt.Sprint(i), 64*1024)] = true
	}

	var wg sync.WaitGroup
	for p := range payloads {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := store.Put(ctx, key, []byte(p), "image/png"); err != nil {
					t.Errorf("Put failed: %v", err)
					return
				}
			}
		}(p)
	}

	for i := 0; i < 50; i++ {
		entry, err := store.Get(ctx, key)
		if errors.Is(err, ErrCacheMiss) {
			continue
		}
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !payloads[string(entry.Data)] {
			t.Fatalf("observed torn payload of %d bytes", len(entry.Data))
		}
	}
	wg.Wait()
}

func TestFilesystemStore_RejectsMalformedKey(t *testing.T) {
	store := newTestFilesystemStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, Key("../../escape"), []byte("x"), "image/png"); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Put with malformed key error = %v, want ErrInvalidEntry", err)
	}
	if _, err := store.Get(ctx, Key("../../escape")); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Get with malformed key error = %v, want ErrInvalidEntry", err)
	}
}

func TestFilesystemStore_CancelledContext(t *testing.T) {
	store := newTestFilesystemStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Get(ctx, testKey("a.png")); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get with cancelled context error = %v, want ErrUnavailable", err)
	}
}

func TestFilesystemStore_Ping(t *testing.T) {
	store := newTestFilesystemStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	os.RemoveAll(store.root)
	if err := store.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Ping() after removing root error = %v, want ErrUnavailable", err)
	}
}
