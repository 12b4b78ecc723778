package media

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseProbe(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		want     ClipInfo
		wantErr  error
		hasError bool
	}{
		{
			name: "format duration with audio",
			json: `{"format":{"duration":"30.500"},"streams":[
				{"codec_type":"video","width":1920,"height":1080,"duration":"30.4"},
				{"codec_type":"audio","codec_name":"aac"}]}`,
			want: ClipInfo{Width: 1920, Height: 1080, Duration: 30.5, HasAudio: true},
		},
		{
			name: "stream duration fallback",
			json: `{"format":{},"streams":[{"codec_type":"video","width":720,"height":1280,"duration":"12.25"}]}`,
			want: ClipInfo{Width: 720, Height: 1280, Duration: 12.25},
		},
		{
			name: "frame count fallback",
			json: `{"format":{"duration":"N/A"},"streams":[
				{"codec_type":"video","width":640,"height":480,"nb_frames":"300","r_frame_rate":"30000/1001"}]}`,
			want: ClipInfo{Width: 640, Height: 480, Duration: 300 / (30000.0 / 1001.0)},
		},
		{
			name:    "audio only",
			json:    `{"format":{"duration":"5"},"streams":[{"codec_type":"audio"}]}`,
			wantErr: ErrNoVideoStream,
		},
		{
			name:    "no duration",
			json:    `{"format":{},"streams":[{"codec_type":"video","width":10,"height":10}]}`,
			wantErr: ErrUnknownDuration,
		},
		{
			name:     "garbage",
			json:     `not json`,
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProbe([]byte(tt.json))
			if tt.wantErr != nil || tt.hasError {
				if err == nil {
					t.Fatal("expected an error")
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseProbe failed: %v", err)
			}
			if got.Width != tt.want.Width || got.Height != tt.want.Height || got.HasAudio != tt.want.HasAudio {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
			if math.Abs(got.Duration-tt.want.Duration) > 1e-6 {
				t.Errorf("expected duration %.4f, got %.4f", tt.want.Duration, got.Duration)
			}
		})
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := map[string]float64{
		"30/1":       30,
		"30000/1001": 30000.0 / 1001.0,
		"25":         25,
		"0/0":        0,
		"":           0,
	}
	for in, want := range tests {
		if got := parseFrameRate(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("parseFrameRate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestProbeTimeout(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	if got := probeTimeout(context.Background(), now); got != DefaultProbeTimeout {
		t.Errorf("no deadline: got %v, want %v", got, DefaultProbeTimeout)
	}

	ctx, cancel := context.WithDeadline(context.Background(), now.Add(5*time.Second))
	defer cancel()
	if got := probeTimeout(ctx, now); got != 5*time.Second {
		t.Errorf("deadline ahead: got %v, want 5s", got)
	}

	if got := probeTimeout(ctx, now.Add(time.Minute)); got <= 0 || got > time.Millisecond {
		t.Errorf("deadline passed: got %v, want a tiny positive timeout", got)
	}
}
