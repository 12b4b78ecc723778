// Package clip provides the ordered clip registry that drives the render
// sequence, along with the upload handles the registry is synced against.
package clip

import (
	"errors"
	"fmt"

	"github.com/maauso/shortform/internal/clip/id"
)

var (
	// ErrUploadCountExceeded is returned when an upload batch would leave more
	// files in the set than allowed. The whole batch is rejected.
	ErrUploadCountExceeded = errors.New("too many uploaded files")
	// ErrProbe is reported when a clip's duration cannot be detected.
	// It is never fatal: the registry substitutes the maximum clip duration.
	ErrProbe = errors.New("duration probe failed")
)

// Upload is a handle to an uploaded source file held by the upload store.
type Upload struct {
	// ID is the store-assigned upload identifier.
	ID string `json:"id"`
	// Name is the original file name supplied by the browser.
	Name string `json:"name"`
	// Size is the file size in bytes.
	Size int64 `json:"size"`
	// Path is where the upload bytes live on disk.
	Path string `json:"path"`
}

// Key returns the registry identifier derived from name, size and upload ID.
func (u Upload) Key() string {
	return id.ClipKey(u.Name, u.Size, u.ID)
}

// CheckUploadCount returns ErrUploadCountExceeded when n exceeds limit.
func CheckUploadCount(n, limit int) error {
	if n > limit {
		return fmt.Errorf("%w: %d files, at most %d allowed", ErrUploadCountExceeded, n, limit)
	}
	return nil
}

// Entry holds the per-clip settings for one upload.
type Entry struct {
	// ID is the stable registry identifier (see Upload.Key).
	ID string `json:"id"`
	// Upload is the source file.
	Upload Upload `json:"upload"`
	// TrimStart is where the used range begins, in seconds.
	TrimStart float64 `json:"trim_start"`
	// TrimDuration is the length of the used range, in seconds.
	TrimDuration float64 `json:"trim_duration"`
	// DetectedDuration is the probed length of the source, in seconds.
	DetectedDuration float64 `json:"detected_duration"`
}

// TrimEnd returns TrimStart + TrimDuration.
func (e Entry) TrimEnd() float64 {
	return e.TrimStart + e.TrimDuration
}

// Settings are the duration rules applied when entries are created or edited.
type Settings struct {
	MinClipDuration  float64
	MaxClipDuration  float64
	DefaultTrimStart float64
}

// DefaultSettings returns the stock 5 to 15 second window with a 15 second start.
func DefaultSettings() Settings {
	return Settings{
		MinClipDuration:  5.0,
		MaxClipDuration:  15.0,
		DefaultTrimStart: 15.0,
	}
}

// Bounds are the advisory input ranges for an entry's start and duration.
type Bounds struct {
	StartMin    float64 `json:"start_min"`
	StartMax    float64 `json:"start_max"`
	DurationMin float64 `json:"duration_min"`
	DurationMax float64 `json:"duration_max"`
}

// BoundsFor computes the UI ranges for an entry: start in
// [0, detected-min] and duration in [min, min(max, detected)].
// An upper bound below its lower bound collapses onto the lower bound.
func (s Settings) BoundsFor(e Entry) Bounds {
	b := Bounds{
		StartMin:    0,
		StartMax:    max(0, e.DetectedDuration-s.MinClipDuration),
		DurationMin: s.MinClipDuration,
		DurationMax: min(s.MaxClipDuration, e.DetectedDuration),
	}
	if b.DurationMax < b.DurationMin {
		b.DurationMax = b.DurationMin
	}
	return b
}

// clamp restricts v to [lo, hi].
func (b Bounds) clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

// ClampStart restricts a start time to the entry's start range.
func (b Bounds) ClampStart(v float64) float64 {
	return b.clamp(v, b.StartMin, b.StartMax)
}

// ClampDuration restricts a duration to the entry's duration range.
func (b Bounds) ClampDuration(v float64) float64 {
	return b.clamp(v, b.DurationMin, b.DurationMax)
}
