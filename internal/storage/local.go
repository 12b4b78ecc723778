package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrS3NotConfigured is returned when S3 operations are attempted
	// without proper configuration.
	ErrS3NotConfigured = errors.New("S3 storage is not configured")
	// ErrInvalidArtifact is returned for artifact names that are not a plain
	// file name inside the artifact directory.
	ErrInvalidArtifact = errors.New("invalid artifact name")
	// ErrUploadTooLarge is returned when an upload exceeds the size limit.
	ErrUploadTooLarge = errors.New("upload exceeds the size limit")
)

// Dirs lists the directories LocalStorage manages.
type Dirs struct {
	Temp      string
	Uploads   string
	Output    string
	Thumbnail string
	// MaxUploadBytes caps a single upload. Zero means no limit.
	MaxUploadBytes int64
}

// LocalStorage implements the Storage interface using local disk.
// It does not support S3 operations unless wrapped with S3Storage.
type LocalStorage struct {
	tempDir        string
	uploadDir      string
	outputDir      string
	thumbnailDir   string
	maxUploadBytes int64
}

// NewLocalStorage creates a new LocalStorage instance.
// Empty temp and upload directories default to locations under os.TempDir().
// The temp and upload directories are created if they don't exist; the
// artifact directories are created on first render.
func NewLocalStorage(dirs Dirs) (*LocalStorage, error) {
	if dirs.Temp == "" {
		dirs.Temp = filepath.Join(os.TempDir(), "shortform")
	}
	if dirs.Uploads == "" {
		dirs.Uploads = filepath.Join(dirs.Temp, "uploads")
	}
	if dirs.Output == "" {
		dirs.Output = "output"
	}
	if dirs.Thumbnail == "" {
		dirs.Thumbnail = "thumbnail"
	}

	for _, dir := range []string{dirs.Temp, dirs.Uploads} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return &LocalStorage{
		tempDir:        dirs.Temp,
		uploadDir:      dirs.Uploads,
		outputDir:      dirs.Output,
		thumbnailDir:   dirs.Thumbnail,
		maxUploadBytes: dirs.MaxUploadBytes,
	}, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// UploadDir returns the upload directory path.
func (s *LocalStorage) UploadDir() string {
	return s.uploadDir
}

// SaveUpload writes an uploaded clip to the upload directory as
// <uploadID>_<base name>. Uploads above the size limit are removed and
// rejected with ErrUploadTooLarge.
func (s *LocalStorage) SaveUpload(ctx context.Context, uploadID, name string, data io.Reader) (string, int64, error) {
	select {
	case <-ctx.Done():
		return "", 0, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		base = "clip.mp4"
	}
	path := filepath.Join(s.uploadDir, uploadID+"_"+base)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640) // #nosec G304 - name is reduced to its base
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}

	src := data
	if s.maxUploadBytes > 0 {
		src = io.LimitReader(data, s.maxUploadBytes+1)
	}

	n, err := io.Copy(f, src)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("close upload file: %w", err)
	}
	if s.maxUploadBytes > 0 && n > s.maxUploadBytes {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("%w: %s", ErrUploadTooLarge, base)
	}

	return path, n, nil
}

// RemoveUpload deletes a stored upload.
func (s *LocalStorage) RemoveUpload(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload %s: %w", path, err)
	}
	return nil
}

// SaveTemp saves data to a temporary file and returns the file path.
// The name is used as a base for the filename with a unique suffix.
func (s *LocalStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	ext := filepath.Ext(name)
	f, err := os.CreateTemp(s.tempDir, strings.TrimSuffix(filepath.Base(name), ext)+"_*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return fileName, nil
}

// LoadTemp reads a stored file and returns a reader.
// The caller is responsible for closing the returned ReadCloser.
func (s *LocalStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("open temp file: %w", err)
	}

	return f, nil
}

// TempPath returns a unique, not yet existing path in the temp directory.
func (s *LocalStorage) TempPath(name string) string {
	return filepath.Join(s.tempDir, uuid.NewString()+"_"+filepath.Base(name))
}

// CleanupTemp removes the specified temporary files.
// It continues cleanup even if some files fail to delete,
// returning the first error encountered.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove temp file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// ArtifactPaths returns output/shortform_<unix>.mp4 and
// thumbnail/thumbnail_<unix>.jpg for the given render time.
func (s *LocalStorage) ArtifactPaths(at time.Time) (Artifacts, error) {
	for _, dir := range []string{s.outputDir, s.thumbnailDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return Artifacts{}, fmt.Errorf("create artifact directory %s: %w", dir, err)
		}
	}

	ts := at.Unix()
	return Artifacts{
		Video:     filepath.Join(s.outputDir, fmt.Sprintf("shortform_%d.mp4", ts)),
		Thumbnail: filepath.Join(s.thumbnailDir, fmt.Sprintf("thumbnail_%d.jpg", ts)),
	}, nil
}

// ResolveArtifact returns the path of a named artifact.
func (s *LocalStorage) ResolveArtifact(kind ArtifactKind, name string) (string, error) {
	var dir string
	switch kind {
	case ArtifactVideo:
		dir = s.outputDir
	case ArtifactThumbnail:
		dir = s.thumbnailDir
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidArtifact, kind)
	}

	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidArtifact, name)
	}
	return filepath.Join(dir, name), nil
}

// UploadToS3 is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) UploadToS3(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}
