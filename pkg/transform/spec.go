// Package transform parses raw transformation parameters into a canonical,
// order-independent Spec.
//
// Two requests that mean the same thing (parameters permuted, defaults spelled
// out or omitted) always produce the same Spec and therefore the same
// Canonical() serialization. The serialization feeds the cache key digest and
// is part of the persisted cache contract: changing it invalidates every
// stored derivative.
package transform

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode selects how the target box is applied to the source image.
type Mode string

const (
	// ModeIdentity keeps the source dimensions.
	ModeIdentity Mode = "identity"

	// ModeCrop scales and crops to exactly Width x Height.
	ModeCrop Mode = "crop"

	// ModeContain scales to fit inside the box, preserving all content.
	ModeContain Mode = "contain"

	// ModePad is ModeContain followed by letterboxing onto a Width x Height canvas.
	ModePad Mode = "pad"
)

// Format is the requested output encoding.
type Format string

const (
	FormatSource Format = "source"
	FormatJPEG   Format = "jpeg"
	FormatPNG    Format = "png"
	FormatWebP   Format = "webp"
	FormatAVIF   Format = "avif"
	FormatGIF    Format = "gif"
)

const (
	// DefaultMaxDimension bounds w and h when the parser is not configured.
	DefaultMaxDimension = 4096

	// DefaultQuality is the lossy encoder quality used when q is omitted.
	DefaultQuality = 80

	// DefaultBackground fills the letterbox area in pad mode.
	DefaultBackground = "ffffff"

	// SerializationVersion prefixes Canonical(). Bump it only together with a
	// deliberate cache invalidation.
	SerializationVersion = "v1"
)

// FocalPoint is a normalized point of interest in [0,1]².
type FocalPoint struct {
	X float64
	Y float64
}

// Spec is a canonical transformation request. Zero values mean "default":
// Width/Height 0 = unset, Quality 0 = encoder default, Focal nil = centre,
// Background "" = white.
type Spec struct {
	Mode       Mode
	Width      int
	Height     int
	Format     Format
	Quality    int
	Focal      *FocalPoint
	Background string
}

// Canonical returns the fixed-order serialization of the spec.
//
// Format: v1;mode=<m>[;w=<n>][;h=<n>][;fmt=<f>][;q=<n>][;fp=<x>,<y>][;bg=<rrggbb>]
func (s Spec) Canonical() string {
	var b strings.Builder
	b.WriteString(SerializationVersion)
	b.WriteString(";mode=")
	b.WriteString(string(s.Mode))
	if s.Width > 0 {
		b.WriteString(";w=")
		b.WriteString(strconv.Itoa(s.Width))
	}
	if s.Height > 0 {
		b.WriteString(";h=")
		b.WriteString(strconv.Itoa(s.Height))
	}
	if s.Format != "" && s.Format != FormatSource {
		b.WriteString(";fmt=")
		b.WriteString(string(s.Format))
	}
	if s.Quality > 0 {
		b.WriteString(";q=")
		b.WriteString(strconv.Itoa(s.Quality))
	}
	if s.Focal != nil {
		fmt.Fprintf(&b, ";fp=%.4f,%.4f", s.Focal.X, s.Focal.Y)
	}
	if s.Background != "" {
		b.WriteString(";bg=")
		b.WriteString(s.Background)
	}
	return b.String()
}

// String implements fmt.Stringer for log fields.
func (s Spec) String() string {
	return s.Canonical()
}

// IsPassthrough reports whether the spec asks for the origin bytes unchanged.
func (s Spec) IsPassthrough() bool {
	return s.Mode == ModeIdentity && s.OutputFormat() == FormatSource && s.Quality == 0
}

// OutputFormat returns the explicit output format or FormatSource.
func (s Spec) OutputFormat() Format {
	if s.Format == "" {
		return FormatSource
	}
	return s.Format
}

// FocalOrCenter returns the focal point, defaulting to the geometric centre.
func (s Spec) FocalOrCenter() FocalPoint {
	if s.Focal == nil {
		return FocalPoint{X: 0.5, Y: 0.5}
	}
	return *s.Focal
}

// BackgroundOrDefault returns the pad colour as rrggbb.
func (s Spec) BackgroundOrDefault() string {
	if s.Background == "" {
		return DefaultBackground
	}
	return s.Background
}

// ContentType returns the MIME type for an encoded format. FormatSource has none.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	case FormatGIF:
		return "image/gif"
	default:
		return ""
	}
}

// Lossy reports whether the quality setting affects the encoding.
func (f Format) Lossy() bool {
	switch f {
	case FormatJPEG, FormatWebP, FormatAVIF:
		return true
	default:
		return false
	}
}

// FormatFromContentType maps a MIME type (parameters ignored) to a Format.
// It returns "" for types the pipeline cannot decode.
func FormatFromContentType(contentType string) Format {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return FormatJPEG
	case "image/png", "image/x-png":
		return FormatPNG
	case "image/webp":
		return FormatWebP
	case "image/avif":
		return FormatAVIF
	case "image/gif":
		return FormatGIF
	default:
		return ""
	}
}
