package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/Sternrassler/asset-variants/pkg/transform"
	"github.com/gen2brain/avif"
	genwebp "github.com/gen2brain/webp"
	"golang.org/x/image/webp"
)

type codec struct {
	decode       func(io.Reader) (image.Image, error)
	decodeConfig func(io.Reader) (image.Config, error)
	encode       func(w io.Writer, img image.Image, quality int, opts Config) error
}

var codecs = map[transform.Format]codec{
	transform.FormatJPEG: {
		decode:       jpeg.Decode,
		decodeConfig: jpeg.DecodeConfig,
		encode: func(w io.Writer, img image.Image, quality int, _ Config) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
		},
	},
	transform.FormatPNG: {
		decode:       png.Decode,
		decodeConfig: png.DecodeConfig,
		encode: func(w io.Writer, img image.Image, _ int, _ Config) error {
			enc := png.Encoder{CompressionLevel: png.BestSpeed}
			return enc.Encode(w, img)
		},
	},
	transform.FormatGIF: {
		decode:       gif.Decode,
		decodeConfig: gif.DecodeConfig,
		encode: func(w io.Writer, img image.Image, _ int, _ Config) error {
			return gif.Encode(w, img, nil)
		},
	},
	transform.FormatWebP: {
		decode:       webp.Decode,
		decodeConfig: webp.DecodeConfig,
		encode: func(w io.Writer, img image.Image, quality int, _ Config) error {
			return genwebp.Encode(w, img, genwebp.Options{Quality: quality})
		},
	},
	transform.FormatAVIF: {
		decode:       avif.Decode,
		decodeConfig: avif.DecodeConfig,
		encode: func(w io.Writer, img image.Image, quality int, opts Config) error {
			return avif.Encode(w, img, avif.Options{Quality: quality, Speed: opts.AVIFSpeed})
		},
	},
}

func lookupCodec(f transform.Format) (codec, error) {
	c, ok := codecs[f]
	if !ok {
		return codec{}, fmt.Errorf("%w: %s", ErrUnsupportedSourceFormat, f)
	}
	return c, nil
}

func encode(c codec, img image.Image, quality int, opts Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.encode(&buf, img, quality, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
