package render

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/maauso/shortform/internal/bitrate"
)

// Result describes one render attempt. It is returned for failed renders
// too, with State set to StateFailed and Error holding the user message.
type Result struct {
	// ID correlates log lines of one render.
	ID string `json:"id"`
	// State is the last state reached.
	State State `json:"state"`
	// Clips is the number of clips rendered.
	Clips int `json:"clips"`
	// Duration is the assembled timeline length in seconds.
	Duration float64 `json:"duration"`
	// Budget is the planned bitrate.
	Budget bitrate.Budget `json:"budget"`
	// VideoPath and ThumbnailPath are the local artifact paths.
	VideoPath     string `json:"video_path,omitempty"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
	// VideoURL and ThumbnailURL are set when artifacts were published to S3.
	VideoURL     string `json:"video_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	// SizeMB is the encoded file size in MiB.
	SizeMB float64 `json:"size_mb"`
	// Progress holds one line per processed clip.
	Progress []string `json:"progress"`
	// Warnings are non-fatal notices such as a low bitrate.
	Warnings []string `json:"warnings,omitempty"`
	// Error is the user-facing message of a failed render.
	Error string `json:"error,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Succeeded returns true when the render reached StateDone.
func (r *Result) Succeeded() bool {
	return r.State == StateDone
}

// VideoName returns the base name of the video artifact.
func (r *Result) VideoName() string {
	if r.VideoPath == "" {
		return ""
	}
	return filepath.Base(r.VideoPath)
}

// ThumbnailName returns the base name of the thumbnail artifact.
func (r *Result) ThumbnailName() string {
	if r.ThumbnailPath == "" {
		return ""
	}
	return filepath.Base(r.ThumbnailPath)
}

// Clone creates a copy safe to hand to other goroutines.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.Progress = slices.Clone(r.Progress)
	c.Warnings = slices.Clone(r.Warnings)
	return &c
}
