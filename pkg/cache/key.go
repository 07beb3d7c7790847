package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/Sternrassler/asset-variants/pkg/transform"
)

// keyNamespace prefixes every key derivation input.
const keyNamespace = "asset-variants/v1"

// Key is the hex SHA-256 digest identifying one derived asset.
type Key string

// KeyInput is the triple a derived asset is identified by.
type KeyInput struct {
	// AssetID names the origin asset.
	AssetID string

	// Version is the origin version tag (content hash or ETag).
	Version string

	// Spec is the canonical transformation.
	Spec transform.Spec
}

// Canonical returns the digest input. The format is a stable external
// contract because keys are persisted out of process:
//
//	asset-variants/v1|<len(id)>:<id>|<len(version)>:<version>|<spec canonical>
//
// Lengths are decimal byte counts, so no choice of id or version can make two
// different triples serialize identically.
//
// Example:
//
//	asset-variants/v1|17:products/shoe.jpg|6:abc123|v1;mode=crop;w=100;h=100;fmt=webp
func (k KeyInput) Canonical() string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(len(k.AssetID)))
	b.WriteByte(':')
	b.WriteString(k.AssetID)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(len(k.Version)))
	b.WriteByte(':')
	b.WriteString(k.Version)
	b.WriteByte('|')
	b.WriteString(k.Spec.Canonical())
	return b.String()
}

// Key derives the cache key.
func (k KeyInput) Key() Key {
	sum := sha256.Sum256([]byte(k.Canonical()))
	return Key(hex.EncodeToString(sum[:]))
}

// NewKey derives the cache key for (assetID, version, spec).
func NewKey(assetID, version string, spec transform.Spec) Key {
	return KeyInput{AssetID: assetID, Version: version, Spec: spec}.Key()
}

// String returns the hex digest.
func (k Key) String() string {
	return string(k)
}

// Shard returns a two-level prefix ("ab/cd") used to spread entries over
// directories or object prefixes.
func (k Key) Shard() string {
	s := string(k)
	if len(s) < 4 {
		return "00/00"
	}
	return s[0:2] + "/" + s[2:4]
}

// Valid reports whether k looks like a derived key.
func (k Key) Valid() bool {
	if len(k) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(string(k))
	return err == nil
}
