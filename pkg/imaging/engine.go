// Package imaging applies canonical transform specs to encoded images.
//
// Processor decodes JPEG, PNG, GIF, WebP and AVIF sources, resamples with a
// Catmull-Rom kernel and encodes JPEG, PNG, GIF, WebP or AVIF. Requests that
// leave the pixels and the format untouched return the source bytes as-is.
package imaging

import (
	"context"
	"errors"

	"github.com/Sternrassler/asset-variants/pkg/transform"
)

var (
	// ErrUnsupportedSourceFormat indicates a source the engine cannot decode.
	// It is fatal for the request and never retried.
	ErrUnsupportedSourceFormat = errors.New("unsupported source format")

	// ErrTransformFailed indicates the source could not be decoded, exceeded
	// the configured limits or could not be encoded.
	ErrTransformFailed = errors.New("transform failed")
)

// Result is an encoded derivative.
type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Engine applies a transform to origin bytes.
type Engine interface {
	Apply(ctx context.Context, data []byte, contentType string, spec transform.Spec) (*Result, error)
}
