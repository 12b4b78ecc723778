// Package bitrate computes the video bitrate budget that keeps an encoded
// file under a size ceiling.
package bitrate

import (
	"errors"
	"fmt"
)

// LowQualityThresholdKbps is the video bitrate under which output quality
// is expected to suffer noticeably.
const LowQualityThresholdKbps = 500

// ErrInvalidDuration is returned when the total duration is not positive.
var ErrInvalidDuration = errors.New("invalid duration: must be positive")

// Params are the inputs to Plan.
type Params struct {
	// TotalDurationSeconds is the length of the assembled timeline.
	TotalDurationSeconds float64
	// MaxFileSizeMB is the output size ceiling in MiB.
	MaxFileSizeMB float64
	// SafetyMargin is the share of the ceiling the encoder may target.
	SafetyMargin float64
	// AudioBitrateKbps is reserved for the audio stream.
	AudioBitrateKbps float64
}

// DefaultParams returns the stock 0.85 margin and 128 kbps audio reservation.
func DefaultParams(totalDuration, maxFileSizeMB float64) Params {
	return Params{
		TotalDurationSeconds: totalDuration,
		MaxFileSizeMB:        maxFileSizeMB,
		SafetyMargin:         0.85,
		AudioBitrateKbps:     128,
	}
}

// Budget is the result of Plan.
type Budget struct {
	// TotalKbps is the overall bitrate that fills the ceiling.
	TotalKbps float64
	// VideoKbps is TotalKbps minus the audio reservation.
	VideoKbps float64
	// LowQuality is set when VideoKbps is under LowQualityThresholdKbps.
	LowQuality bool
}

// EncoderArg formats the video bitrate as an ffmpeg -b:v value, truncating
// to whole kilobits.
func (b Budget) EncoderArg() string {
	return fmt.Sprintf("%dk", int(b.VideoKbps))
}

// Plan computes
//
//	videoKbps = maxMB * margin * 1024 * 8 / duration - audioKbps
//
// A low result is flagged but never clamped.
func Plan(p Params) (Budget, error) {
	if p.TotalDurationSeconds <= 0 {
		return Budget{}, fmt.Errorf("%w: got %.2f", ErrInvalidDuration, p.TotalDurationSeconds)
	}

	total := p.MaxFileSizeMB * p.SafetyMargin * 1024 * 8 / p.TotalDurationSeconds
	video := total - p.AudioBitrateKbps

	return Budget{
		TotalKbps:  total,
		VideoKbps:  video,
		LowQuality: video < LowQualityThresholdKbps,
	}, nil
}
