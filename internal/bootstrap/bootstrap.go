// Package bootstrap provides dependency initialization for the short-form assembler.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/shortform/internal/clip"
	"github.com/maauso/shortform/internal/config"
	"github.com/maauso/shortform/internal/media"
	"github.com/maauso/shortform/internal/render"
	"github.com/maauso/shortform/internal/server"
	"github.com/maauso/shortform/internal/session"
	"github.com/maauso/shortform/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server and the CLI.
type Dependencies struct {
	Store     storage.Storage
	Processor *media.FFmpegProcessor
	Driver    *render.Driver
	Sessions  session.Repository
	Settings  clip.Settings
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	processor := media.NewFFmpegProcessor(cfg.FFmpegPath)

	opts := render.DefaultOptions()
	opts.Target = media.Size{Width: cfg.TargetWidth, Height: cfg.TargetHeight}
	opts.MaxFileSizeMB = cfg.OutputMaxFileSizeMB
	opts.SafetyMargin = cfg.SafetyMargin
	opts.AudioBitrateKbps = cfg.AudioBitrateKbps
	opts.EncodeThreads = cfg.EncodeThreads
	opts.Publish = cfg.S3Enabled()

	return &Dependencies{
		Store:     store,
		Processor: processor,
		Driver:    render.NewDriver(processor, store, opts, logger),
		Sessions:  session.NewMemoryRepository(),
		Settings:  ClipSettings(cfg),
	}, nil
}

// ClipSettings returns the clip duration rules from the configuration.
func ClipSettings(cfg *config.Config) clip.Settings {
	return clip.Settings{
		MinClipDuration:  cfg.MinClipDuration,
		MaxClipDuration:  cfg.MaxClipDuration,
		DefaultTrimStart: cfg.DefaultTrimStart,
	}
}

// ServerDeps returns the collaborators and limits of the HTTP handlers.
func (d *Dependencies) ServerDeps(cfg *config.Config) server.Deps {
	return server.Deps{
		Sessions:          d.Sessions,
		Store:             d.Store,
		Renderer:          d.Driver,
		Prober:            d.Processor,
		Settings:          d.Settings,
		MaxFiles:          cfg.MaxFiles,
		MaxUploadBytes:    cfg.MaxUploadBytes(),
		MaxOutputMB:       cfg.OutputMaxFileSizeMB,
		Target:            media.Size{Width: cfg.TargetWidth, Height: cfg.TargetHeight},
		DefaultTransition: cfg.DefaultTransition,
	}
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	dirs := storage.Dirs{
		Temp:           cfg.TempDir,
		Uploads:        cfg.UploadDir,
		Output:         cfg.OutputDir,
		Thumbnail:      cfg.ThumbnailDir,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	}

	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(dirs, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(dirs)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
		slog.String("upload_dir", cfg.UploadDir),
		slog.String("output_dir", cfg.OutputDir),
	)
	return localStore, nil
}
