package media

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// DefaultFPS is the constant frame rate of normalized clips.
const DefaultFPS = 30

// Layout places a scaled clip inside a target frame.
type Layout struct {
	// Scaled is the clip size after aspect-preserving scaling.
	Scaled Size
	// OffsetX and OffsetY center Scaled inside the target frame.
	OffsetX int
	OffsetY int
	// Target is the full frame size.
	Target Size
}

// Fit computes the aspect-preserving layout of a src-sized clip in target.
// A clip wider than the target is scaled to the target width; anything
// else is scaled to the target height.
func Fit(src, target Size) (Layout, error) {
	if !src.Valid() || !target.Valid() {
		return Layout{}, fmt.Errorf("%w: src=%dx%d, target=%dx%d",
			ErrInvalidDimensions, src.Width, src.Height, target.Width, target.Height)
	}

	clipAspect := src.Aspect()
	var scaled Size
	if clipAspect > target.Aspect() {
		scaled.Width = target.Width
		scaled.Height = int(math.Round(float64(target.Width) / clipAspect))
	} else {
		scaled.Height = target.Height
		scaled.Width = int(math.Round(float64(target.Height) * clipAspect))
	}
	scaled.Width = min(max(scaled.Width, 1), target.Width)
	scaled.Height = min(max(scaled.Height, 1), target.Height)

	return Layout{
		Scaled:  scaled,
		OffsetX: (target.Width - scaled.Width) / 2,
		OffsetY: (target.Height - scaled.Height) / 2,
		Target:  target,
	}, nil
}

// Filter returns the ffmpeg video filter chain that scales, centers the clip
// over black and fixes the frame rate and pixel format.
func (l Layout) Filter(fps int) string {
	return fmt.Sprintf("scale=%d:%d,setsar=1,pad=%d:%d:%d:%d:black,fps=%d,format=yuv420p",
		l.Scaled.Width, l.Scaled.Height,
		l.Target.Width, l.Target.Height, l.OffsetX, l.OffsetY,
		fps,
	)
}

// normalizeArgs builds the ffmpeg invocation for Normalize.
func normalizeArgs(src ClipInfo, r Range, layout Layout, fps int, dst string) []string {
	out := ffmpeg.KwArgs{
		"vf":      layout.Filter(fps),
		"c:v":     "libx264",
		"preset":  "veryfast",
		"crf":     "18",
		"threads": "0",
	}
	if src.HasAudio {
		out["c:a"] = "aac"
		out["b:a"] = "192k"
		out["ar"] = "44100"
		out["ac"] = "2"
	}

	return ffmpeg.Input(src.Path, ffmpeg.KwArgs{
		"ss": seconds(r.Start),
		"t":  seconds(r.Duration),
	}).Output(dst, out).OverWriteOutput().GetArgs()
}

// Normalize extracts r from src and renders it at exactly target size,
// letterboxed or pillarboxed over black, with the source audio kept for the
// same span. The reported duration is r.Duration, shortened only when the
// source ends first.
func (p *FFmpegProcessor) Normalize(ctx context.Context, src ClipInfo, r Range, target Size, dst string) (ClipInfo, error) {
	if r.Start < 0 || r.Duration <= 0 {
		return ClipInfo{}, fmt.Errorf("%w: start=%.2f, duration=%.2f", ErrInvalidRange, r.Start, r.Duration)
	}

	layout, err := Fit(src.Size(), target)
	if err != nil {
		return ClipInfo{}, err
	}

	duration := r.Duration
	if src.Duration > 0 {
		duration = min(duration, src.Duration-r.Start)
	}
	if duration <= 0 {
		return ClipInfo{}, fmt.Errorf("%w: start %.2f is past the clip end %.2f", ErrInvalidRange, r.Start, src.Duration)
	}

	args := normalizeArgs(src, Range{Start: r.Start, Duration: duration}, layout, p.fps, dst)
	if err := p.runFFmpeg(ctx, args); err != nil {
		return ClipInfo{}, errors.Wrap(err, "normalize clip")
	}

	return ClipInfo{
		Path:     dst,
		Width:    target.Width,
		Height:   target.Height,
		Duration: duration,
		HasAudio: src.HasAudio,
	}, nil
}
