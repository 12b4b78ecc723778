package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/shortform/internal/clip"
)

// recordingRemover remembers removed paths and fails for paths in fail.
type recordingRemover struct {
	removed []string
	fail    map[string]bool
}

func (r *recordingRemover) RemoveUpload(_ context.Context, path string) error {
	if r.fail[path] {
		return errors.New("permission denied")
	}
	r.removed = append(r.removed, path)
	return nil
}

func sessionAt(id string, updated time.Time, uploads ...clip.Upload) *State {
	s := NewWithID(id, 0.5)
	s.Uploads = uploads
	s.UpdatedAt = updated
	return s
}

func TestExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryRepository()
	require.NoError(t, repo.Save(ctx, sessionAt("ses-old", now.Add(-25*time.Hour), upload("a"), upload("b"))))
	require.NoError(t, repo.Save(ctx, sessionAt("ses-fresh", now.Add(-time.Hour), upload("c"))))

	remover := &recordingRemover{fail: map[string]bool{upload("b").Path: true}}
	n, err := Expire(ctx, repo, remover, 24*time.Hour, now, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{upload("a").Path}, remover.removed)

	_, err = repo.FindByID(ctx, "ses-old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = repo.FindByID(ctx, "ses-fresh")
	assert.NoError(t, err)
}

func TestExpire_NothingIdle(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Save(ctx, sessionAt("ses-1", now)))

	remover := &recordingRemover{}
	n, err := Expire(ctx, repo, remover, time.Minute, now, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, remover.removed)
}

func TestRunExpiry_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := NewMemoryRepository()
	require.NoError(t, repo.Save(ctx, sessionAt("ses-old", time.Now().Add(-time.Hour), upload("a"))))

	done := make(chan struct{})
	go func() {
		RunExpiry(ctx, repo, &recordingRemover{}, time.Minute, 10*time.Millisecond, nil)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, err := repo.FindByID(context.Background(), "ses-old")
		return errors.Is(err, ErrSessionNotFound)
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunExpiry did not return after cancel")
	}
}
