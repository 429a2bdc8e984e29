// Package imaging provides the pure image helpers behind the photo cache:
// a cheap resident-size estimate and the downscale/thumbnail transforms.
//
// All functions are deterministic and never mutate their input.
package imaging

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Estimate approximates the resident memory footprint of a decoded image as
// bytes-per-row times height. It is a conservative over-estimate: stride
// padding counts, color-model overhead does not. A nil or degenerate image
// estimates to zero.
func Estimate(img image.Image) int64 {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	h := int64(b.Dy())
	if h <= 0 || b.Dx() <= 0 {
		return 0
	}
	switch m := img.(type) {
	case *image.RGBA:
		return int64(m.Stride) * h
	case *image.NRGBA:
		return int64(m.Stride) * h
	case *image.Gray:
		return int64(m.Stride) * h
	case *image.CMYK:
		return int64(m.Stride) * h
	case *image.YCbCr:
		// Planar layout; sum the planes instead of a single stride.
		return int64(len(m.Y) + len(m.Cb) + len(m.Cr))
	default:
		// Assume 4 bytes per pixel for unknown representations.
		return int64(b.Dx()) * 4 * h
	}
}

// Downscale returns img resampled so its longest edge equals maxDim, with
// aspect ratio preserved. Images that already fit are returned unchanged.
func Downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if maxDim <= 0 || longest <= maxDim {
		return img
	}
	scale := float64(maxDim) / float64(longest)
	return resample(img, scaled(w, scale), scaled(h, scale))
}

// Thumbnail returns img resampled to fit entirely within a boxW x boxH
// bounding box, with aspect ratio preserved. Sources smaller than the box
// are enlarged to fill it, so every thumbnail fills its grid cell.
func Thumbnail(img image.Image, boxW, boxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 || boxW <= 0 || boxH <= 0 {
		return img
	}
	scale := math.Min(float64(boxW)/float64(w), float64(boxH)/float64(h))
	return resample(img, scaled(w, scale), scaled(h, scale))
}

// scaled rounds a scaled dimension, never below one pixel. The edge that
// determined the scale factor rounds back to its exact target.
func scaled(dim int, scale float64) int {
	out := int(math.Round(float64(dim) * scale))
	if out < 1 {
		return 1
	}
	return out
}

func resample(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
