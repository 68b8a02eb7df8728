package imaging

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
)

// Load decodes a PNG, JPEG or BMP file into a tight NRGBA image anchored at
// the origin.
func Load(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Decode reads a PNG, JPEG or BMP image from r.
func Decode(r io.Reader) (*image.NRGBA, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmptyImage
	}

	slog.Debug("Image decoded", "format", format, "width", b.Dx(), "height", b.Dy())
	return FromImage(img).ToNRGBA(), nil
}

// Save encodes img as PNG. The file is written next to path and renamed
// into place.
func Save(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close output: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename output: %w", err)
	}
	return nil
}
