package main

import (
	"image"
	"image/color"
	"math"
	"os"

	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// previewImage maps the xyz of every texel to 16-bit RGB, each channel normalized over its own range
// across the whole texture. The w channel is dropped: it is 0 or 1 for affine matrices.
func previewImage(tex *vat.Texture) *image.NRGBA64 {
	var lo, hi [3]float64
	for c := range 3 {
		lo[c], hi[c] = math.Inf(1), math.Inf(-1)
	}
	for i := 0; i < len(tex.Pixels); i += 4 {
		for c := range 3 {
			v := float64(tex.Pixels[i+c])
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo[c] = math.Min(lo[c], v)
			hi[c] = math.Max(hi[c], v)
		}
	}

	img := image.NewNRGBA64(image.Rect(0, 0, tex.Width, tex.Height))
	for y := range tex.Height {
		for x := range tex.Width {
			texel := tex.Texel(x, y)
			var rgb [3]uint16
			for c := range 3 {
				rgb[c] = normalize16(float64(texel[c]), lo[c], hi[c])
			}
			img.SetNRGBA64(x, y, color.NRGBA64{R: rgb[0], G: rgb[1], B: rgb[2], A: math.MaxUint16})
		}
	}
	return img
}

func normalize16(v, lo, hi float64) uint16 {
	switch {
	case math.IsNaN(v):
		return 0
	case hi <= lo:
		return math.MaxUint16 / 2
	}
	f := (v - lo) / (hi - lo)
	return uint16(math.Round(math.Max(0, math.Min(1, f)) * math.MaxUint16))
}

// scaleImage magnifies src by an integer factor without blending neighbouring texels.
func scaleImage(src image.Image, scale int) image.Image {
	if scale <= 1 {
		return src
	}
	b := src.Bounds()
	dst := image.NewNRGBA64(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func writePreview(path string, tex *vat.Texture, scale int) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	img := scaleImage(previewImage(tex), scale)
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		return errors.Wrapf(err, "encoding %s", path)
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}
