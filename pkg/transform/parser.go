package transform

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidSpec is wrapped by every ParseError.
var ErrInvalidSpec = errors.New("invalid transform spec")

// Recognized parameter names.
const (
	ParamWidth      = "w"
	ParamHeight     = "h"
	ParamMode       = "mode"
	ParamFormat     = "format"
	ParamQuality    = "q"
	ParamFocalX     = "fpx"
	ParamFocalY     = "fpy"
	ParamBackground = "bg"
)

// ParseError reports the offending parameter of a rejected request.
type ParseError struct {
	Param  string
	Value  string
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid transform spec: %s: %s", e.Param, e.Reason)
	}
	return fmt.Sprintf("invalid transform spec: %s=%q: %s", e.Param, e.Value, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidSpec.
func (e *ParseError) Unwrap() error {
	return ErrInvalidSpec
}

// Parser validates and canonicalizes raw parameters.
type Parser struct {
	// MaxDimension bounds w and h (DefaultMaxDimension when <= 0).
	MaxDimension int

	// DefaultQuality is dropped from canonical specs (DefaultQuality when <= 0).
	DefaultQuality int
}

// NewParser creates a parser with the given dimension limit.
func NewParser(maxDimension int) *Parser {
	return &Parser{MaxDimension: maxDimension, DefaultQuality: DefaultQuality}
}

var modeAliases = map[string]Mode{
	"identity":       ModeIdentity,
	"none":           ModeIdentity,
	"crop":           ModeCrop,
	"resize-crop":    ModeCrop,
	"contain":        ModeContain,
	"resize-contain": ModeContain,
	"pad":            ModePad,
	"resize-pad":     ModePad,
}

var formatAliases = map[string]Format{
	"source": FormatSource,
	"jpeg":   FormatJPEG,
	"jpg":    FormatJPEG,
	"png":    FormatPNG,
	"webp":   FormatWebP,
	"avif":   FormatAVIF,
}

// ParseMap is Parse for single-valued parameter maps.
func (p *Parser) ParseMap(params map[string]string) (Spec, error) {
	multi := make(map[string][]string, len(params))
	for k, v := range params {
		multi[k] = []string{v}
	}
	return p.Parse(multi)
}

// Parse validates raw parameters (e.g. url.Values) and returns the canonical
// spec. Unknown parameters are ignored. For repeated parameters the first
// value wins, matching url.Values.Get.
func (p *Parser) Parse(params map[string][]string) (Spec, error) {
	get := func(name string) (string, bool) {
		vs, ok := params[name]
		if !ok || len(vs) == 0 {
			return "", false
		}
		v := strings.TrimSpace(vs[0])
		return v, v != ""
	}

	maxDim := p.MaxDimension
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	defaultQuality := p.DefaultQuality
	if defaultQuality <= 0 {
		defaultQuality = DefaultQuality
	}

	var spec Spec

	for _, dim := range []struct {
		name string
		dst  *int
	}{{ParamWidth, &spec.Width}, {ParamHeight, &spec.Height}} {
		raw, ok := get(dim.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Spec{}, &ParseError{Param: dim.name, Value: raw, Reason: "must be an integer"}
		}
		if n <= 0 {
			return Spec{}, &ParseError{Param: dim.name, Value: raw, Reason: "must be positive"}
		}
		if n > maxDim {
			return Spec{}, &ParseError{Param: dim.name, Value: raw, Reason: fmt.Sprintf("exceeds maximum %d", maxDim)}
		}
		*dim.dst = n
	}

	if raw, ok := get(ParamMode); ok {
		mode, known := modeAliases[strings.ToLower(raw)]
		if !known {
			return Spec{}, &ParseError{Param: ParamMode, Value: raw, Reason: "unknown mode"}
		}
		spec.Mode = mode
	} else if spec.Width > 0 || spec.Height > 0 {
		spec.Mode = ModeContain
	} else {
		spec.Mode = ModeIdentity
	}

	switch spec.Mode {
	case ModeCrop, ModePad:
		if spec.Width == 0 || spec.Height == 0 {
			return Spec{}, &ParseError{Param: ParamMode, Value: string(spec.Mode), Reason: "requires both w and h"}
		}
	case ModeContain:
		if spec.Width == 0 && spec.Height == 0 {
			return Spec{}, &ParseError{Param: ParamMode, Value: string(spec.Mode), Reason: "requires w or h"}
		}
	case ModeIdentity:
		if spec.Width > 0 || spec.Height > 0 {
			return Spec{}, &ParseError{Param: ParamMode, Value: string(spec.Mode), Reason: "does not accept w or h"}
		}
	}

	spec.Format = FormatSource
	if raw, ok := get(ParamFormat); ok {
		f, known := formatAliases[strings.ToLower(raw)]
		if !known {
			return Spec{}, &ParseError{Param: ParamFormat, Value: raw, Reason: "unknown format"}
		}
		spec.Format = f
	}

	if raw, ok := get(ParamQuality); ok {
		q, err := strconv.Atoi(raw)
		if err != nil {
			return Spec{}, &ParseError{Param: ParamQuality, Value: raw, Reason: "must be an integer"}
		}
		if q < 1 || q > 100 {
			return Spec{}, &ParseError{Param: ParamQuality, Value: raw, Reason: "must be between 1 and 100"}
		}
		spec.Quality = q
	}
	if spec.Quality == defaultQuality {
		spec.Quality = 0
	}
	if spec.Format != FormatSource && !spec.Format.Lossy() {
		spec.Quality = 0
	}

	fx, hasX, err := parseUnit(get, ParamFocalX)
	if err != nil {
		return Spec{}, err
	}
	fy, hasY, err := parseUnit(get, ParamFocalY)
	if err != nil {
		return Spec{}, err
	}
	if spec.Mode == ModeCrop && (hasX || hasY) {
		fp := FocalPoint{X: quantize(fx), Y: quantize(fy)}
		if fp.X != 0.5 || fp.Y != 0.5 {
			spec.Focal = &fp
		}
	}

	if raw, ok := get(ParamBackground); ok {
		bg, err := normalizeColor(raw)
		if err != nil {
			return Spec{}, err
		}
		if spec.Mode == ModePad && bg != DefaultBackground {
			spec.Background = bg
		}
	}

	return spec, nil
}

// parseUnit reads a coordinate in [0,1]; absent values default to 0.5.
func parseUnit(get func(string) (string, bool), name string) (float64, bool, error) {
	raw, ok := get(name)
	if !ok {
		return 0.5, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, &ParseError{Param: name, Value: raw, Reason: "must be a number"}
	}
	if v < 0 || v > 1 {
		return 0, false, &ParseError{Param: name, Value: raw, Reason: "must be between 0 and 1"}
	}
	return v, true, nil
}

func quantize(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func normalizeColor(raw string) (string, error) {
	c := strings.ToLower(strings.TrimPrefix(raw, "#"))
	if len(c) != 6 {
		return "", &ParseError{Param: ParamBackground, Value: raw, Reason: "must be 6 hex digits"}
	}
	if _, err := strconv.ParseUint(c, 16, 32); err != nil {
		return "", &ParseError{Param: ParamBackground, Value: raw, Reason: "must be 6 hex digits"}
	}
	return c, nil
}
