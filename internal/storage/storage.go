// Package storage provides the file storage used by the assembler: uploaded
// source clips, per-render temporary files, the output artifact directories
// and optional S3 publishing of finished artifacts.
package storage

import (
	"context"
	"io"
	"time"
)

// ArtifactKind names an output directory.
type ArtifactKind string

// Artifact kinds.
const (
	ArtifactVideo     ArtifactKind = "video"
	ArtifactThumbnail ArtifactKind = "thumbnail"
)

// Artifacts are the output paths of one render. Both share the render
// timestamp.
type Artifacts struct {
	Video     string
	Thumbnail string
}

// Storage defines the interface for upload, temporary and artifact storage.
type Storage interface {
	// SaveUpload stores an uploaded clip and returns its path and size.
	SaveUpload(ctx context.Context, uploadID, name string, data io.Reader) (path string, size int64, err error)

	// RemoveUpload deletes a stored upload. Missing files are not an error.
	RemoveUpload(ctx context.Context, path string) error

	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp opens a stored file for reading.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// TempPath returns a fresh path inside the temp directory without
	// creating the file.
	TempPath(name string) string

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// ArtifactPaths creates the output directories and returns the video
	// and thumbnail paths for a render started at the given time.
	ArtifactPaths(at time.Time) (Artifacts, error)

	// ResolveArtifact maps a bare artifact file name to its path, rejecting
	// anything that would escape the artifact directory.
	ResolveArtifact(kind ArtifactKind, name string) (string, error)

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
