// Package session holds the per-browser application state: the uploaded
// files, the clip registry built from them, the chosen transition and the
// last render result. State is loaded, changed and saved back explicitly by
// the HTTP layer.
package session

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/maauso/shortform/internal/clip"
	"github.com/maauso/shortform/internal/clip/id"
	"github.com/maauso/shortform/internal/render"
)

// State is one browser session.
type State struct {
	// ID is the session identifier stored in the session cookie.
	ID string
	// Uploads is the current upload set, in upload order.
	Uploads []clip.Upload
	// Registry orders the clips and holds their trim settings.
	Registry *clip.Registry
	// Transition is the fade length in seconds.
	Transition float64
	// LastResult is the most recent render attempt, if any.
	LastResult *render.Result
	// Flash is a one-shot message shown on the next page view.
	Flash string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates an empty session with a generated ID.
func New(transition float64) *State {
	return NewWithID(id.Session(), transition)
}

// NewWithID creates an empty session with the given ID.
func NewWithID(sessionID string, transition float64) *State {
	now := time.Now()
	return &State{
		ID:         sessionID,
		Registry:   clip.NewRegistry(),
		Transition: transition,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// AddUploads appends a batch of uploads. If the resulting set would exceed
// limit the whole batch is rejected and the state is unchanged.
func (s *State) AddUploads(batch []clip.Upload, limit int) error {
	if err := clip.CheckUploadCount(len(s.Uploads)+len(batch), limit); err != nil {
		return err
	}
	s.Uploads = append(s.Uploads, batch...)
	s.Touch()
	return nil
}

// RemoveUpload drops the upload with the given ID and returns it.
func (s *State) RemoveUpload(uploadID string) (clip.Upload, bool) {
	i := slices.IndexFunc(s.Uploads, func(u clip.Upload) bool { return u.ID == uploadID })
	if i < 0 {
		return clip.Upload{}, false
	}
	u := s.Uploads[i]
	s.Uploads = slices.Delete(s.Uploads, i, i+1)
	s.Touch()
	return u, true
}

// Sync reconciles the registry with the upload set.
func (s *State) Sync(ctx context.Context, prober clip.Prober, settings clip.Settings, logger *slog.Logger) clip.SyncResult {
	res := s.Registry.Sync(ctx, s.Uploads, prober, settings, logger)
	s.Touch()
	return res
}

// TakeFlash returns and clears the flash message.
func (s *State) TakeFlash() string {
	msg := s.Flash
	s.Flash = ""
	return msg
}

// Touch marks the session as used now.
func (s *State) Touch() {
	s.UpdatedAt = time.Now()
}

// Clone creates a deep copy of the session for safe reads.
func (s *State) Clone() *State {
	c := *s
	c.Uploads = slices.Clone(s.Uploads)
	if s.Registry != nil {
		c.Registry = s.Registry.Clone()
	}
	c.LastResult = s.LastResult.Clone()
	return &c
}
