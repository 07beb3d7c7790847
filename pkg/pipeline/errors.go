package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a failed resolution.
type Kind string

const (
	// KindInvalidTransformSpec is a client error detected before any storage
	// access.
	KindInvalidTransformSpec Kind = "invalid_transform_spec"

	// KindOriginNotFound means the asset does not exist.
	KindOriginNotFound Kind = "origin_not_found"

	// KindOriginUnavailable is a transient origin failure. Callers may retry;
	// the pipeline itself does not.
	KindOriginUnavailable Kind = "origin_unavailable"

	// KindUnsupportedSourceFormat means the original cannot be decoded.
	KindUnsupportedSourceFormat Kind = "unsupported_source_format"

	// KindTransformFailed means decoding, resampling or encoding failed.
	KindTransformFailed Kind = "transform_failed"

	// KindCacheUnavailable labels cache degradation in logs and metrics. It
	// is never returned by Resolve.
	KindCacheUnavailable Kind = "cache_unavailable"
)

// Error is returned by Resolve for every failure except caller cancellation.
type Error struct {
	Kind    Kind
	AssetID string

	// Param names the offending parameter for KindInvalidTransformSpec.
	Param string

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s (asset %q, param %s): %v", e.Kind, e.AssetID, e.Param, e.Err)
	}
	return fmt.Sprintf("%s (asset %q): %v", e.Kind, e.AssetID, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the request may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindOriginUnavailable
}

// KindOf returns the Kind of a pipeline error, or "" for other errors.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}
