// Package cache stores derived asset variants under content-addressed keys.
//
// A Key is the SHA-256 digest of the asset identity, the origin version and
// the canonical transform spec. Publishing a new origin version therefore
// changes every key derived from it; nothing is ever invalidated in place.
//
// # Backends
//
//   - FilesystemStore: one blob per key below <root>/<ab>/<cd>/<key>,
//     written to a temp file and renamed into place
//   - S3Store: one object per key below <prefix>/<ab>/<cd>/<key>
//   - RedisStore: one JSON value per key, written with a single SET
//
// All of them report an absent key as ErrCacheMiss and a failing backend as
// an error wrapping ErrUnavailable. GuardedStore wraps any Store and skips it
// for a cool-down window after repeated ErrUnavailable failures.
//
// # Basic Usage
//
//	store, err := cache.New(ctx, cfg.Cache, logger)
//	if err != nil {
//		return err
//	}
//	store = cache.NewGuardedStore(store, cache.DefaultGuardConfig(), logger)
//
//	key := cache.NewKey("products/shoe.jpg", version, spec)
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// derive, then store.Put(ctx, key, data, contentType)
//	}
//
// # HTTP Helpers
//
// ETag, MatchesETag and SetVariantHeaders serve cached variants with a strong
// ETag derived from the key and an immutable Cache-Control header.
//
// # Metrics
//
//   - asset_cache_hits_total{backend}
//   - asset_cache_misses_total{backend}
//   - asset_cache_errors_total{backend,operation}
//   - asset_cache_bytes_written_total{backend}
//   - asset_cache_guard_open
package cache
