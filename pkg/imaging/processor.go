package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"strconv"
	"time"

	"github.com/Sternrassler/asset-variants/pkg/transform"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	"golang.org/x/sync/semaphore"
)

// Config bounds the work a Processor accepts.
type Config struct {
	// MaxSourcePixels rejects sources larger than this many pixels before
	// decoding them.
	MaxSourcePixels int64 `yaml:"max_source_pixels"`

	// MaxConcurrent bounds simultaneous decode/encode work.
	MaxConcurrent int `yaml:"max_concurrent"`

	// AVIFSpeed trades AVIF encode time for size (0 slowest, 10 fastest).
	AVIFSpeed int `yaml:"avif_speed"`
}

// DefaultConfig returns limits suitable for web-sized originals.
func DefaultConfig() Config {
	return Config{
		MaxSourcePixels: 50_000_000,
		MaxConcurrent:   runtime.GOMAXPROCS(0),
		AVIFSpeed:       8,
	}
}

// Processor is the default Engine.
type Processor struct {
	config Config
	sem    *semaphore.Weighted
	logger zerolog.Logger
}

// NewProcessor creates a Processor. Zero config fields take their defaults.
func NewProcessor(cfg Config, logger zerolog.Logger) *Processor {
	defaults := DefaultConfig()
	if cfg.MaxSourcePixels <= 0 {
		cfg.MaxSourcePixels = defaults.MaxSourcePixels
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaults.MaxConcurrent
	}
	if cfg.AVIFSpeed <= 0 || cfg.AVIFSpeed > 10 {
		cfg.AVIFSpeed = defaults.AVIFSpeed
	}
	return &Processor{
		config: cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger: logger.With().Str("component", "imaging").Logger(),
	}
}

// Apply transforms data according to spec.
func (p *Processor) Apply(ctx context.Context, data []byte, contentType string, spec transform.Spec) (*Result, error) {
	srcFormat := transform.FormatFromContentType(contentType)
	if srcFormat == "" {
		TransformErrors.WithLabelValues("unsupported").Inc()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSourceFormat, contentType)
	}
	srcCodec, err := lookupCodec(srcFormat)
	if err != nil {
		TransformErrors.WithLabelValues("unsupported").Inc()
		return nil, err
	}

	cfg, err := srcCodec.decodeConfig(bytes.NewReader(data))
	if err != nil {
		TransformErrors.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("%w: read %s header: %w", ErrTransformFailed, srcFormat, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > p.config.MaxSourcePixels {
		TransformErrors.WithLabelValues("too_large").Inc()
		return nil, fmt.Errorf("%w: source is %dx%d, limit is %d pixels", ErrTransformFailed, cfg.Width, cfg.Height, p.config.MaxSourcePixels)
	}

	if spec.IsPassthrough() {
		Passthroughs.Inc()
		return &Result{Data: data, ContentType: srcFormat.ContentType(), Width: cfg.Width, Height: cfg.Height}, nil
	}

	outFormat := spec.OutputFormat()
	if outFormat == transform.FormatSource {
		outFormat = srcFormat
	}
	outCodec, err := lookupCodec(outFormat)
	if err != nil {
		TransformErrors.WithLabelValues("unsupported").Inc()
		return nil, err
	}

	// Source format, same pixels, default quality: nothing to re-encode. An
	// explicit output format is always re-encoded.
	if spec.OutputFormat() == transform.FormatSource && spec.Quality == 0 && !changesPixels(spec, cfg.Width, cfg.Height) {
		Passthroughs.Inc()
		return &Result{Data: data, ContentType: srcFormat.ContentType(), Width: cfg.Width, Height: cfg.Height}, nil
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		TransformErrors.WithLabelValues("cancelled").Inc()
		return nil, fmt.Errorf("%w: waiting for worker: %w", ErrTransformFailed, err)
	}
	defer p.sem.Release(1)
	TransformsActive.Inc()
	defer TransformsActive.Dec()

	start := time.Now()

	src, err := srcCodec.decode(bytes.NewReader(data))
	if err != nil {
		TransformErrors.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("%w: decode %s: %w", ErrTransformFailed, srcFormat, err)
	}
	if err := ctx.Err(); err != nil {
		TransformErrors.WithLabelValues("cancelled").Inc()
		return nil, fmt.Errorf("%w: %w", ErrTransformFailed, err)
	}

	dst := render(src, spec)

	quality := spec.Quality
	if quality == 0 {
		quality = transform.DefaultQuality
	}
	out, err := encode(outCodec, dst, quality, p.config)
	if err != nil {
		TransformErrors.WithLabelValues("encode").Inc()
		return nil, fmt.Errorf("%w: encode %s: %w", ErrTransformFailed, outFormat, err)
	}

	elapsed := time.Since(start)
	TransformDuration.WithLabelValues(string(outFormat)).Observe(elapsed.Seconds())

	b := dst.Bounds()
	p.logger.Debug().
		Str("spec", spec.Canonical()).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Int("bytes", len(out)).
		Dur("duration", elapsed).
		Msg("Transformed image")

	return &Result{Data: out, ContentType: outFormat.ContentType(), Width: b.Dx(), Height: b.Dy()}, nil
}

// changesPixels reports whether spec alters a srcW x srcH image.
func changesPixels(spec transform.Spec, srcW, srcH int) bool {
	switch spec.Mode {
	case transform.ModeIdentity:
		return false
	case transform.ModeContain:
		w, h := ContainSize(srcW, srcH, spec.Width, spec.Height)
		return w != srcW || h != srcH
	default:
		return spec.Width != srcW || spec.Height != srcH
	}
}

// render applies the geometry of spec to src.
func render(src image.Image, spec transform.Spec) image.Image {
	sb := src.Bounds()
	srcW, srcH := sb.Dx(), sb.Dy()

	switch spec.Mode {
	case transform.ModeCrop:
		window := CropWindow(srcW, srcH, spec.Width, spec.Height, spec.FocalOrCenter())
		dst := image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, window.Add(sb.Min), draw.Src, nil)
		return dst

	case transform.ModeContain:
		w, h := ContainSize(srcW, srcH, spec.Width, spec.Height)
		if w == srcW && h == srcH {
			return src
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
		return dst

	case transform.ModePad:
		dst := image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
		draw.Draw(dst, dst.Bounds(), image.NewUniform(parseColor(spec.BackgroundOrDefault())), image.Point{}, draw.Src)
		target := PadLayout(srcW, srcH, spec.Width, spec.Height)
		draw.CatmullRom.Scale(dst, target, src, sb, draw.Over, nil)
		return dst

	default:
		return src
	}
}

// parseColor reads an rrggbb string produced by the parser.
func parseColor(hex string) color.RGBA {
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil || len(hex) != 6 {
		return color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
