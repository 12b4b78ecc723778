package media

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// DefaultProbeTimeout bounds an ffprobe run when the context has no deadline.
const DefaultProbeTimeout = 30 * time.Second

// probeResult matches the ffprobe JSON output fields we read.
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		Duration   string `json:"duration"`
		NbFrames   string `json:"nb_frames"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Probe runs ffprobe on path and returns the clip's dimensions, duration and
// whether it carries audio.
func (p *FFmpegProcessor) Probe(ctx context.Context, path string) (ClipInfo, error) {
	if err := ctx.Err(); err != nil {
		return ClipInfo{}, errors.Wrap(err, "probe cancelled")
	}

	out, err := ffmpeg.ProbeWithTimeout(path, probeTimeout(ctx, time.Now()), ffmpeg.KwArgs{})
	if err != nil {
		return ClipInfo{}, errors.Wrapf(err, "probe %s", path)
	}

	info, err := parseProbe([]byte(out))
	if err != nil {
		return ClipInfo{}, errors.Wrapf(err, "probe %s", path)
	}
	info.Path = path
	return info, nil
}

// probeTimeout returns the time left before ctx's deadline, or
// DefaultProbeTimeout when there is none. An expired deadline yields a tiny
// positive timeout so ffprobe is killed at once rather than run unbounded.
func probeTimeout(ctx context.Context, now time.Time) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return DefaultProbeTimeout
	}
	if left := deadline.Sub(now); left > 0 {
		return left
	}
	return time.Nanosecond
}

// Duration implements clip.Prober.
func (p *FFmpegProcessor) Duration(ctx context.Context, path string) (float64, error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// parseProbe extracts ClipInfo from ffprobe JSON. Duration comes from the
// container, then the video stream, then frame count over frame rate.
func parseProbe(data []byte) (ClipInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(data, &probe); err != nil {
		return ClipInfo{}, errors.Wrap(err, "parse ffprobe output")
	}

	var info ClipInfo
	videoFound := false
	var streamDuration, nbFrames float64
	var frameRate string

	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if videoFound {
				continue
			}
			videoFound = true
			info.Width = s.Width
			info.Height = s.Height
			streamDuration = parseFloat(s.Duration)
			nbFrames = parseFloat(s.NbFrames)
			frameRate = s.RFrameRate
		case "audio":
			info.HasAudio = true
		}
	}

	if !videoFound || info.Width <= 0 || info.Height <= 0 {
		return ClipInfo{}, ErrNoVideoStream
	}

	info.Duration = parseFloat(probe.Format.Duration)
	if info.Duration <= 0 {
		info.Duration = streamDuration
	}
	if info.Duration <= 0 {
		if fps := parseFrameRate(frameRate); fps > 0 && nbFrames > 0 {
			info.Duration = nbFrames / fps
		}
	}
	if info.Duration <= 0 {
		return ClipInfo{}, ErrUnknownDuration
	}

	return info, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseFrameRate converts an ffprobe rational such as "30000/1001".
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return parseFloat(num) / d
}
