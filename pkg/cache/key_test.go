package cache

import (
	"testing"

	"github.com/Sternrassler/asset-variants/pkg/transform"
)

func TestKeyInput_Canonical(t *testing.T) {
	tests := []struct {
		name  string
		input KeyInput
		want  string
	}{
		{
			name: "crop webp",
			input: KeyInput{
				AssetID: "products/shoe.jpg",
				Version: "abc123",
				Spec:    transform.Spec{Mode: transform.ModeCrop, Width: 100, Height: 100, Format: transform.FormatWebP},
			},
			want: "asset-variants/v1|17:products/shoe.jpg|6:abc123|v1;mode=crop;w=100;h=100;fmt=webp",
		},
		{
			name: "identity",
			input: KeyInput{
				AssetID: "a.png",
				Version: "1",
				Spec:    transform.Spec{Mode: transform.ModeIdentity},
			},
			want: "asset-variants/v1|5:a.png|1:1|v1;mode=identity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.input.Canonical(); got != tt.want {
				t.Errorf("Canonical() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestKeyInput_Golden pins the digest so keys stay stable across releases.
func TestKeyInput_Golden(t *testing.T) {
	tests := []struct {
		input KeyInput
		want  Key
	}{
		{
			input: KeyInput{
				AssetID: "products/shoe.jpg",
				Version: "abc123",
				Spec:    transform.Spec{Mode: transform.ModeCrop, Width: 100, Height: 100, Format: transform.FormatWebP},
			},
			want: "b269c57fab421fddcd529c873f1f15bde30c42da4850902e96db0179d0b4a98b",
		},
		{
			input: KeyInput{AssetID: "a.png", Version: "1", Spec: transform.Spec{Mode: transform.ModeIdentity}},
			want:  "b7f83dcb84a62bad7f1b166d22053be9b09db874a85a9111e7c5a39fe132a911",
		},
	}

	for _, tt := range tests {
		got := tt.input.Key()
		if got != tt.want {
			t.Errorf("Key(%q) = %s, want %s", tt.input.Canonical(), got, tt.want)
		}
		if !got.Valid() {
			t.Errorf("Key %s is not valid", got)
		}
	}
}

// TestNewKey_Determinism ensures same input always produces same key
func TestNewKey_Determinism(t *testing.T) {
	spec := transform.Spec{Mode: transform.ModeContain, Width: 640, Quality: 70, Format: transform.FormatJPEG}

	first := NewKey("hero.png", "v1", spec)
	for i := 0; i < 10; i++ {
		if got := NewKey("hero.png", "v1", spec); got != first {
			t.Errorf("iteration %d: key = %s, want %s (not deterministic)", i, got, first)
		}
	}
}

func TestNewKey_FieldsChangeKey(t *testing.T) {
	spec := transform.Spec{Mode: transform.ModeCrop, Width: 100, Height: 100}
	base := NewKey("hero.png", "etag-1", spec)

	variants := map[string]Key{
		"version":  NewKey("hero.png", "etag-2", spec),
		"asset":    NewKey("hero2.png", "etag-1", spec),
		"spec":     NewKey("hero.png", "etag-1", transform.Spec{Mode: transform.ModeCrop, Width: 100, Height: 101}),
		"quality":  NewKey("hero.png", "etag-1", transform.Spec{Mode: transform.ModeCrop, Width: 100, Height: 100, Quality: 50}),
		"boundary": NewKey("hero.pn", "getag-1", spec),
	}

	for name, key := range variants {
		if key == base {
			t.Errorf("changing %s did not change the key", name)
		}
	}
}

func TestKey_Shard(t *testing.T) {
	key := Key("b269c57fab421fddcd529c873f1f15bde30c42da4850902e96db0179d0b4a98b")
	if got := key.Shard(); got != "b2/69" {
		t.Errorf("Shard() = %q, want %q", got, "b2/69")
	}
	if got := Key("ab").Shard(); got != "00/00" {
		t.Errorf("Shard() of short key = %q, want %q", got, "00/00")
	}
	if Key("../../etc/passwd").Valid() {
		t.Error("path-like key reported valid")
	}
}
