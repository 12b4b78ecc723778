// Package media provides the video engine used by the render pipeline:
// probing, frame normalization, frame extraction, timeline assembly and
// encoding. The ffmpeg CLI does the actual decoding and encoding.
package media

import (
	"context"
	"image"
)

// Size is a pixel frame size.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Aspect returns Width/Height.
func (s Size) Aspect() float64 {
	return float64(s.Width) / float64(s.Height)
}

// Valid returns true if both dimensions are positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// ClipInfo describes a decodable clip on disk.
type ClipInfo struct {
	// Path is the file holding the clip.
	Path string
	// Width and Height are the pixel dimensions of the video stream.
	Width  int
	Height int
	// Duration is the playable length in seconds.
	Duration float64
	// HasAudio is set when the file carries an audio stream.
	HasAudio bool
}

// Size returns the clip's frame size.
func (c ClipInfo) Size() Size {
	return Size{Width: c.Width, Height: c.Height}
}

// Range is a sub-range of a clip in seconds.
type Range struct {
	Start    float64
	Duration float64
}

// End returns Start + Duration.
func (r Range) End() float64 {
	return r.Start + r.Duration
}

// Processor defines the media operations the render pipeline needs.
type Processor interface {
	// Probe decodes container metadata for the file at path.
	Probe(ctx context.Context, path string) (ClipInfo, error)

	// Normalize extracts r from src and fits it into a target-sized frame,
	// letterboxed or pillarboxed over black, keeping the source audio.
	// The result is written to dst.
	Normalize(ctx context.Context, src ClipInfo, r Range, target Size, dst string) (ClipInfo, error)

	// ExtractFrame decodes the frame at the given time as an image.
	ExtractFrame(ctx context.Context, path string, at float64) (image.Image, error)

	// Encode renders an assembled timeline to dst.
	Encode(ctx context.Context, tl *Timeline, dst string, opts EncodeOptions) error
}
