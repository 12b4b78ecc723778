package clip

import (
	"context"
	"fmt"
	"log/slog"
)

// Direction is a reorder direction.
type Direction string

const (
	// Up moves an entry one position towards the start.
	Up Direction = "up"
	// Down moves an entry one position towards the end.
	Down Direction = "down"
)

// IsValid returns true if the direction is Up or Down.
func (d Direction) IsValid() bool {
	return d == Up || d == Down
}

// Prober detects the playable duration of a media file in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// SyncResult reports what a Sync call changed.
type SyncResult struct {
	// Added lists identifiers inserted, in insertion order.
	Added []string
	// Removed lists identifiers dropped because their upload disappeared.
	Removed []string
	// ProbeFallbacks lists added entries whose duration probe failed and
	// received the maximum clip duration instead.
	ProbeFallbacks []ProbeFallback
}

// ProbeFallback records one failed duration probe.
type ProbeFallback struct {
	// Key is the registry identifier of the entry.
	Key string
	// Err wraps ErrProbe and the prober's error.
	Err error
}

// Registry is an ordered mapping from identifier to Entry.
// Order determines the output sequence; the first entry supplies the thumbnail.
// It is not safe for concurrent use; callers own one registry per session.
type Registry struct {
	entries []*Entry
	index   map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make([]*Entry, 0),
		index:   make(map[string]int),
	}
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Entries returns a copy of all entries in order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = *e
	}
	return out
}

// Get returns the entry with the given identifier.
func (r *Registry) Get(id string) (Entry, bool) {
	i, ok := r.index[id]
	if !ok {
		return Entry{}, false
	}
	return *r.entries[i], true
}

// Add appends an entry. An entry with an existing identifier replaces the
// stored settings in place without changing its position.
func (r *Registry) Add(e Entry) {
	if i, ok := r.index[e.ID]; ok {
		*r.entries[i] = e
		return
	}
	r.index[e.ID] = len(r.entries)
	r.entries = append(r.entries, &e)
}

// Remove deletes an entry. It returns false if the identifier is absent.
func (r *Registry) Remove(id string) bool {
	i, ok := r.index[id]
	if !ok {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	r.reindex()
	return true
}

// Update sets an entry's trim range after clamping both values to the
// advisory bounds. It returns false if the identifier is absent.
func (r *Registry) Update(id string, start, duration float64, s Settings) bool {
	i, ok := r.index[id]
	if !ok {
		return false
	}
	e := r.entries[i]
	b := s.BoundsFor(*e)
	e.TrimStart = b.ClampStart(start)
	e.TrimDuration = b.ClampDuration(duration)
	return true
}

// Move shifts an entry one position up or down. Moving the first entry up
// or the last entry down leaves the order unchanged, as does an unknown
// identifier. It reports whether the order changed.
func (r *Registry) Move(id string, dir Direction) bool {
	idx, ok := r.index[id]
	if !ok {
		return false
	}

	target := idx
	switch dir {
	case Up:
		if idx > 0 {
			target = idx - 1
		}
	case Down:
		if idx < len(r.entries)-1 {
			target = idx + 1
		}
	}
	if target == idx {
		return false
	}

	r.entries[idx], r.entries[target] = r.entries[target], r.entries[idx]
	r.index[r.entries[idx].ID] = idx
	r.index[r.entries[target].ID] = target
	return true
}

// Sync reconciles the registry with the current upload set. Uploads not yet
// present are probed and appended in the given order with default settings;
// entries whose upload is gone are removed. Retained entries keep their
// settings and relative order.
func (r *Registry) Sync(ctx context.Context, uploads []Upload, prober Prober, s Settings, logger *slog.Logger) SyncResult {
	if logger == nil {
		logger = slog.Default()
	}

	var res SyncResult
	current := make(map[string]struct{}, len(uploads))
	for _, u := range uploads {
		key := u.Key()
		current[key] = struct{}{}
		if _, ok := r.index[key]; ok {
			continue
		}

		detected, err := prober.Duration(ctx, u.Path)
		if err != nil {
			perr := fmt.Errorf("%w: '%s': %w", ErrProbe, u.Name, err)
			logger.Warn("duration probe failed, using default",
				slog.String("clip", u.Name),
				slog.Float64("default_duration", s.MaxClipDuration),
				slog.String("error", perr.Error()),
			)
			detected = s.MaxClipDuration
			res.ProbeFallbacks = append(res.ProbeFallbacks, ProbeFallback{Key: key, Err: perr})
		}

		r.Add(Entry{
			ID:               key,
			Upload:           u,
			TrimStart:        s.DefaultTrimStart,
			TrimDuration:     min(s.MinClipDuration, detected),
			DetectedDuration: detected,
		})
		res.Added = append(res.Added, key)
	}

	kept := r.entries[:0]
	for _, e := range r.entries {
		if _, ok := current[e.ID]; ok {
			kept = append(kept, e)
			continue
		}
		res.Removed = append(res.Removed, e.ID)
	}
	r.entries = kept
	r.reindex()

	return res
}

// Clone returns a deep copy of the registry.
func (r *Registry) Clone() *Registry {
	c := NewRegistry()
	for _, e := range r.entries {
		c.Add(*e)
	}
	return c
}

func (r *Registry) reindex() {
	clear(r.index)
	for i, e := range r.entries {
		r.index[e.ID] = i
	}
}
