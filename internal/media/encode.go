package media

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// EncodeOptions configures the final encode.
type EncodeOptions struct {
	// VideoBitrate is an ffmpeg bitrate such as "3446k".
	VideoBitrate string
	// AudioBitrate defaults to "128k".
	AudioBitrate string
	// Threads is passed to the encoder; zero lets ffmpeg decide.
	Threads    int
	VideoCodec string
	AudioCodec string
}

func (o EncodeOptions) withDefaults() EncodeOptions {
	if o.AudioBitrate == "" {
		o.AudioBitrate = "128k"
	}
	if o.VideoCodec == "" {
		o.VideoCodec = "libx264"
	}
	if o.AudioCodec == "" {
		o.AudioCodec = "aac"
	}
	return o
}

// EncodeArgs builds the ffmpeg arguments that render tl to dst.
// The filter graph spans several inputs, which is why the argument list is
// assembled directly instead of through a single-input stream builder.
func EncodeArgs(tl *Timeline, dst string, opts EncodeOptions) ([]string, error) {
	if tl == nil || len(tl.Clips) == 0 {
		return nil, ErrEmptyTimeline
	}
	if opts.VideoBitrate == "" {
		return nil, fmt.Errorf("encode: video bitrate is required")
	}
	opts = opts.withDefaults()

	args := make([]string, 0, 2*len(tl.Clips)+24)
	for _, c := range tl.Clips {
		args = append(args, "-i", c.Path)
	}
	args = append(args,
		"-filter_complex", tl.FilterGraph(),
		"-map", "["+videoOutLabel+"]",
		"-map", "["+audioOutLabel+"]",
		"-c:v", opts.VideoCodec,
		"-b:v", opts.VideoBitrate,
		"-pix_fmt", "yuv420p",
		"-c:a", opts.AudioCodec,
		"-b:a", opts.AudioBitrate,
	)
	if opts.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(opts.Threads))
	}
	args = append(args,
		"-t", seconds(tl.Duration),
		"-movflags", "+faststart",
		"-y", dst,
	)
	return args, nil
}

// Encode renders the timeline to an MP4 file at dst.
func (p *FFmpegProcessor) Encode(ctx context.Context, tl *Timeline, dst string, opts EncodeOptions) error {
	args, err := EncodeArgs(tl, dst, opts)
	if err != nil {
		return err
	}
	if err := p.runFFmpeg(ctx, args); err != nil {
		return errors.Wrap(err, "encode timeline")
	}
	return nil
}
