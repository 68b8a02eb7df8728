// Package imaging holds the host side of a benchmark: decoding images into
// RGBA pixel buffers, repacking them for device upload and the CPU reference
// grayscale transform.
package imaging

import (
	"errors"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// BytesPerPixel is the size of one RGBA8 pixel.
const BytesPerPixel = 4

var (
	// ErrEmptyImage is returned for images with no pixels.
	ErrEmptyImage = errors.New("image has no pixels")
	// ErrShortBuffer is returned when Pix or Stride cannot hold Width x Height.
	ErrShortBuffer = errors.New("pixel buffer too short")
)

// PixelBuffer is a row-major RGBA8 pixel array. Rows start every Stride
// bytes; Stride may exceed Width*4 when rows are padded.
type PixelBuffer struct {
	Pix    []byte
	Stride int
	Width  int
	Height int
}

// FromImage returns the pixels of img in non-premultiplied RGBA order.
// An *image.NRGBA is used in place, including its stride; anything else is
// converted into a new tight buffer.
func FromImage(img image.Image) *PixelBuffer {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok {
		return &PixelBuffer{Pix: n.Pix, Stride: n.Stride, Width: b.Dx(), Height: b.Dy()}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return &PixelBuffer{Pix: dst.Pix, Stride: dst.Stride, Width: b.Dx(), Height: b.Dy()}
}

// FromTight wraps a tightly packed pixel slice.
func FromTight(pix []byte, width, height int) *PixelBuffer {
	return &PixelBuffer{Pix: pix, Stride: width * BytesPerPixel, Width: width, Height: height}
}

// Len returns the number of pixels.
func (p *PixelBuffer) Len() int {
	return p.Width * p.Height
}

// ByteCount returns the size of the pixels once tightly packed.
func (p *PixelBuffer) ByteCount() int {
	return p.Width * p.Height * BytesPerPixel
}

// Validate checks that Stride and Pix cover every row of Width pixels.
func (p *PixelBuffer) Validate() error {
	row := p.Width * BytesPerPixel
	switch {
	case p.Width <= 0 || p.Height <= 0:
		return ErrEmptyImage
	case p.Stride < row:
		return fmt.Errorf("%w: stride %d below row size %d", ErrShortBuffer, p.Stride, row)
	case len(p.Pix) < (p.Height-1)*p.Stride+row:
		return fmt.Errorf("%w: %d bytes for %dx%d at stride %d", ErrShortBuffer, len(p.Pix), p.Width, p.Height, p.Stride)
	}
	return nil
}

// IsTight reports whether rows follow each other without padding.
func (p *PixelBuffer) IsTight() bool {
	return p.Stride == p.Width*BytesPerPixel && len(p.Pix) >= p.ByteCount()
}

// Tight returns the pixels without row padding, always ByteCount bytes long.
// A buffer that is already tight is returned as is; a padded one is copied
// row by row. Bytes a buffer failing Validate does not hold are left zero.
func (p *PixelBuffer) Tight() []byte {
	n := p.ByteCount()
	if p.IsTight() {
		return p.Pix[:n]
	}

	row := p.Width * BytesPerPixel
	out := make([]byte, n)
	for y := 0; y < p.Height; y++ {
		start := y * p.Stride
		if start >= len(p.Pix) {
			break
		}
		copy(out[y*row:(y+1)*row], p.Pix[start:min(start+row, len(p.Pix))])
	}
	return out
}

// ToNRGBA returns the buffer as an image anchored at the origin.
func (p *PixelBuffer) ToNRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    p.Tight(),
		Stride: p.Width * BytesPerPixel,
		Rect:   image.Rect(0, 0, p.Width, p.Height),
	}
}
