package imaging

import (
	"image"
	"math"

	"github.com/Sternrassler/asset-variants/pkg/transform"
)

// CropWindow returns the largest rectangle of aspect w/h inside a srcW x srcH
// source, centred on the focal point and shifted back inside the source where
// centring would overflow it.
func CropWindow(srcW, srcH, w, h int, focal transform.FocalPoint) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || w <= 0 || h <= 0 {
		return image.Rectangle{}
	}

	winW, winH := srcW, srcH
	if srcW*h > srcH*w {
		// Source is wider than the target aspect.
		winW = clampInt(int(math.Round(float64(srcH)*float64(w)/float64(h))), 1, srcW)
	} else {
		winH = clampInt(int(math.Round(float64(srcW)*float64(h)/float64(w))), 1, srcH)
	}

	x0 := int(math.Round(focal.X*float64(srcW) - float64(winW)/2))
	y0 := int(math.Round(focal.Y*float64(srcH) - float64(winH)/2))
	x0 = clampInt(x0, 0, srcW-winW)
	y0 = clampInt(y0, 0, srcH-winH)

	return image.Rect(x0, y0, x0+winW, y0+winH)
}

// ContainSize scales srcW x srcH to fit inside a w x h box, keeping the aspect
// ratio. A zero w or h leaves that axis unbounded. Images are never enlarged.
func ContainSize(srcW, srcH, w, h int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0
	}

	scale := math.Inf(1)
	if w > 0 {
		scale = float64(w) / float64(srcW)
	}
	if h > 0 {
		scale = math.Min(scale, float64(h)/float64(srcH))
	}
	if scale >= 1 {
		return srcW, srcH
	}

	dw := max(1, int(math.Round(float64(srcW)*scale)))
	dh := max(1, int(math.Round(float64(srcH)*scale)))
	if w > 0 {
		dw = min(dw, w)
	}
	if h > 0 {
		dh = min(dh, h)
	}
	return dw, dh
}

// PadLayout returns where the contained image lands on a w x h canvas.
func PadLayout(srcW, srcH, w, h int) image.Rectangle {
	dw, dh := ContainSize(srcW, srcH, w, h)
	x0 := (w - dw) / 2
	y0 := (h - dh) / 2
	return image.Rect(x0, y0, x0+dw, y0+dh)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
