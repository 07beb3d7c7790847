package cache

import (
	"net/http"
	"testing"
)

func TestETag(t *testing.T) {
	key := Key("b269c57fab421fddcd529c873f1f15bde30c42da4850902e96db0179d0b4a98b")
	want := `"b269c57fab421fddcd529c873f1f15bde30c42da4850902e96db0179d0b4a98b"`
	if got := ETag(key); got != want {
		t.Errorf("ETag() = %v, want %v", got, want)
	}
}

func TestMatchesETag(t *testing.T) {
	etag := `"abc123"`

	tests := []struct {
		name        string
		ifNoneMatch string
		want        bool
	}{
		{name: "no header", ifNoneMatch: "", want: false},
		{name: "exact match", ifNoneMatch: `"abc123"`, want: true},
		{name: "weak match", ifNoneMatch: `W/"abc123"`, want: true},
		{name: "list match", ifNoneMatch: `"zzz", "abc123"`, want: true},
		{name: "wildcard", ifNoneMatch: "*", want: true},
		{name: "different", ifNoneMatch: `"def456"`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "https://example.com/assets/a.png", nil)
			if tt.ifNoneMatch != "" {
				req.Header.Set("If-None-Match", tt.ifNoneMatch)
			}
			if got := MatchesETag(req, etag); got != tt.want {
				t.Errorf("MatchesETag() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchesETag_NilInputs(t *testing.T) {
	// Should not panic with nil inputs
	if MatchesETag(nil, `"x"`) {
		t.Error("nil request matched")
	}
	req, _ := http.NewRequest("GET", "https://example.com", nil)
	req.Header.Set("If-None-Match", "*")
	if MatchesETag(req, "") {
		t.Error("empty etag matched")
	}
}

func TestSetVariantHeaders(t *testing.T) {
	key := Key("abcd")

	tests := []struct {
		name      string
		hit       bool
		wantCache string
	}{
		{name: "hit", hit: true, wantCache: "HIT"},
		{name: "miss", hit: false, wantCache: "MISS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			SetVariantHeaders(h, key, "image/webp", tt.hit)

			if got := h.Get("X-Cache"); got != tt.wantCache {
				t.Errorf("X-Cache = %v, want %v", got, tt.wantCache)
			}
			if got := h.Get("Content-Type"); got != "image/webp" {
				t.Errorf("Content-Type = %v, want image/webp", got)
			}
			if got := h.Get("ETag"); got != `"abcd"` {
				t.Errorf("ETag = %v, want %q", got, `"abcd"`)
			}
			if got := h.Get("Cache-Control"); got != ImmutableCacheControl {
				t.Errorf("Cache-Control = %v, want %v", got, ImmutableCacheControl)
			}
		})
	}
}
