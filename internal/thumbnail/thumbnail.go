// Package thumbnail renders the cover image of a short-form video.
package thumbnail

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
)

// Quality is the JPEG quality used for thumbnails.
const Quality = 90

// FrameExtractor decodes a single frame of a clip.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, path string, at float64) (image.Image, error)
}

// Extract writes the first frame of the clip at clipPath to dst as a JPEG.
// Any alpha channel is flattened onto black so the file is plain 8-bit RGB.
// The parent directory of dst is created if needed.
func Extract(ctx context.Context, frames FrameExtractor, clipPath, dst string) error {
	frame, err := frames.ExtractFrame(ctx, clipPath, 0)
	if err != nil {
		return fmt.Errorf("extract first frame: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return fmt.Errorf("create thumbnail directory: %w", err)
	}

	f, err := os.Create(dst) // #nosec G304 - dst is built by the storage layer
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}

	if err := jpeg.Encode(f, Opaque(frame), &jpeg.Options{Quality: Quality}); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("close thumbnail: %w", err)
	}
	return nil
}

// Opaque returns img composited over black with every pixel fully opaque.
func Opaque(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out
}
