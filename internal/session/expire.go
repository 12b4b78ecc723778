package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// UploadRemover deletes stored upload files.
type UploadRemover interface {
	RemoveUpload(ctx context.Context, path string) error
}

// Expire deletes sessions that have not been used for longer than maxIdle,
// along with their upload files. It returns the number of sessions removed.
// A failed file removal is logged and does not stop the sweep.
func Expire(ctx context.Context, repo Repository, uploads UploadRemover, maxIdle time.Duration, now time.Time, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	all, err := repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	expired := 0
	for _, s := range all {
		if now.Sub(s.UpdatedAt) <= maxIdle {
			continue
		}
		if err := repo.Delete(ctx, s.ID); err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				continue
			}
			return expired, fmt.Errorf("delete session %s: %w", s.ID, err)
		}
		for _, u := range s.Uploads {
			if err := uploads.RemoveUpload(ctx, u.Path); err != nil {
				logger.Warn("failed to remove upload of expired session",
					slog.String("session_id", s.ID),
					slog.String("path", u.Path),
					slog.String("error", err.Error()),
				)
			}
		}
		expired++
	}
	return expired, nil
}

// RunExpiry calls Expire every interval until ctx is done.
func RunExpiry(ctx context.Context, repo Repository, uploads UploadRemover, maxIdle, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := Expire(ctx, repo, uploads, maxIdle, now, logger)
			if err != nil {
				logger.Error("session expiry failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				logger.Info("expired idle sessions", slog.Int("count", n))
			}
		}
	}
}
