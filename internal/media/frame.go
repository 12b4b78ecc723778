package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// frameArgs builds the ffmpeg invocation that writes one PNG frame to stdout.
func frameArgs(path string, at float64) []string {
	return ffmpeg.Input(path, ffmpeg.KwArgs{"ss": seconds(at)}).
		Output("pipe:1", ffmpeg.KwArgs{
			"frames:v": "1",
			"f":        "image2pipe",
			"c:v":      "png",
		}).GetArgs()
}

// ExtractFrame decodes the frame at time at (seconds) from the clip at path.
func (p *FFmpegProcessor) ExtractFrame(ctx context.Context, path string, at float64) (image.Image, error) {
	if at < 0 {
		return nil, fmt.Errorf("%w: frame time %.2f", ErrInvalidRange, at)
	}

	out, err := p.runFFmpegOutput(ctx, frameArgs(path, at))
	if err != nil {
		return nil, errors.Wrapf(err, "extract frame at %.2fs", at)
	}
	if len(out) == 0 {
		return nil, errors.Errorf("extract frame at %.2fs: ffmpeg produced no image", at)
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, errors.Wrap(err, "decode extracted frame")
	}
	return img, nil
}
