package cache

import (
	"net/http"
	"strings"
)

// ImmutableCacheControl is sent with derivatives: a key is bound permanently
// to one payload, so clients may cache it indefinitely.
const ImmutableCacheControl = "public, max-age=31536000, immutable"

// ETag returns the strong entity tag for a derivative.
func ETag(key Key) string {
	return `"` + string(key) + `"`
}

// MatchesETag reports whether the request's If-None-Match header names etag
// (or "*"), i.e. the client already holds the derivative.
func MatchesETag(req *http.Request, etag string) bool {
	if req == nil || etag == "" {
		return false
	}
	header := req.Header.Get("If-None-Match")
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		// Weak comparison per RFC 9110 for If-None-Match.
		if strings.TrimPrefix(candidate, "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}

// SetVariantHeaders writes the response headers for a derivative.
func SetVariantHeaders(h http.Header, key Key, contentType string, hit bool) {
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	h.Set("ETag", ETag(key))
	h.Set("Cache-Control", ImmutableCacheControl)
	if hit {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}
}
