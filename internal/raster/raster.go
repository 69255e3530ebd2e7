// Package raster loads source images into a flat RGBA buffer and resizes them.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/h2non/filetype"
	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var ErrUnsupported = errors.New("raster: unsupported image type")

// Raster is a non-premultiplied RGBA image, row-major, four bytes per cell.
// It is never mutated once built; Resize returns a new one.
type Raster struct {
	Width  int
	Height int
	Pix    []uint8
}

// New wraps pix, which must hold exactly 4*w*h bytes.
func New(w, h int, pix []uint8) (*Raster, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("raster: invalid size %dx%d", w, h)
	}
	if len(pix) != 4*w*h {
		return nil, fmt.Errorf("raster: buffer has %d bytes, want %d", len(pix), 4*w*h)
	}
	return &Raster{Width: w, Height: h, Pix: pix}, nil
}

// FromImage copies img into a Raster.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return fromNRGBA(dst)
}

func fromNRGBA(img *image.NRGBA) *Raster {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	pix := make([]uint8, 4*w*h)
	for y := 0; y < h; y++ {
		copy(pix[y*w*4:(y+1)*w*4], img.Pix[y*img.Stride:y*img.Stride+w*4])
	}
	return &Raster{Width: w, Height: h, Pix: pix}
}

// Decode reads a PNG, JPEG, GIF, WebP or BMP stream.
func Decode(r io.Reader) (*Raster, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if !filetype.IsImage(data) {
		return nil, ErrUnsupported
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return FromImage(img), nil
}

// Load decodes the image file at path.
func Load(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// RGBA returns the samples at (x, y).
func (r *Raster) RGBA(x, y int) (rgb [3]uint8, alpha uint8) {
	i := (y*r.Width + x) * 4
	return [3]uint8{r.Pix[i], r.Pix[i+1], r.Pix[i+2]}, r.Pix[i+3]
}

// Image exposes the buffer as an image.NRGBA without copying.
func (r *Raster) Image() *image.NRGBA {
	return &image.NRGBA{Pix: r.Pix, Stride: 4 * r.Width, Rect: image.Rect(0, 0, r.Width, r.Height)}
}

// Resize scales the raster to w x h with bilinear filtering.
func (r *Raster) Resize(w, h int) (*Raster, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("raster: invalid size %dx%d", w, h)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), r.Image(), r.Image().Bounds(), xdraw.Src, nil)
	return fromNRGBA(dst), nil
}

// ClampSize bounds each side to [lo, hi].
func ClampSize(w, h, lo, hi int) (int, int) {
	return clamp(w, lo, hi), clamp(h, lo, hi)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
