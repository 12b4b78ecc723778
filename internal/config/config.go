// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/shortform/internal/media"
)

// Static errors for configuration validation.
var (
	// ErrInvalidTargetSize is returned when the output frame size is not positive.
	ErrInvalidTargetSize = errors.New("config: TARGET_WIDTH and TARGET_HEIGHT must be positive")
	// ErrInvalidClipWindow is returned when the usable clip duration window is empty or negative.
	ErrInvalidClipWindow = errors.New("config: MIN_CLIP_DURATION must be positive and not exceed MAX_CLIP_DURATION")
	// ErrInvalidLimits is returned when a file count or size limit is not positive.
	ErrInvalidLimits = errors.New("config: MAX_FILES, MAX_UPLOAD_MB and OUTPUT_MAX_FILE_SIZE_MB must be positive")
	// ErrInvalidSafetyMargin is returned when SAFETY_MARGIN is outside (0, 1].
	ErrInvalidSafetyMargin = errors.New("config: SAFETY_MARGIN must be in (0, 1]")
	// ErrInvalidTransition is returned when DEFAULT_TRANSITION is outside the slider range.
	ErrInvalidTransition = errors.New("config: DEFAULT_TRANSITION must be between 0.1 and 1.0")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Storage settings
	TempDir      string `env:"TEMP_DIR, default=/tmp/shortform" json:"temp_dir"`
	UploadDir    string `env:"UPLOAD_DIR, default=/tmp/shortform/uploads" json:"upload_dir"`
	OutputDir    string `env:"OUTPUT_DIR, default=output" json:"output_dir"`
	ThumbnailDir string `env:"THUMBNAIL_DIR, default=thumbnail" json:"thumbnail_dir"`

	// Upload limits
	MaxFiles    int `env:"MAX_FILES, default=10" json:"max_files"`
	MaxUploadMB int `env:"MAX_UPLOAD_MB, default=5120" json:"max_upload_mb"`

	// Output settings
	OutputMaxFileSizeMB float64 `env:"OUTPUT_MAX_FILE_SIZE_MB, default=32" json:"output_max_file_size_mb"`
	TargetWidth         int     `env:"TARGET_WIDTH, default=1080" json:"target_width"`
	TargetHeight        int     `env:"TARGET_HEIGHT, default=1920" json:"target_height"`
	AudioBitrateKbps    float64 `env:"AUDIO_BITRATE_KBPS, default=128" json:"audio_bitrate_kbps"`
	SafetyMargin        float64 `env:"SAFETY_MARGIN, default=0.85" json:"safety_margin"`
	EncodeThreads       int     `env:"ENCODE_THREADS, default=4" json:"encode_threads"`

	// Clip settings
	MinClipDuration   float64 `env:"MIN_CLIP_DURATION, default=5.0" json:"min_clip_duration"`
	MaxClipDuration   float64 `env:"MAX_CLIP_DURATION, default=15.0" json:"max_clip_duration"`
	DefaultTrimStart  float64 `env:"DEFAULT_TRIM_START, default=15.0" json:"default_trim_start"`
	DefaultTransition float64 `env:"DEFAULT_TRANSITION, default=0.5" json:"default_transition"`

	// Sessions idle for longer than this are dropped with their uploads.
	// Zero keeps sessions until restart.
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT, default=24h" json:"session_idle_timeout"`

	// Tooling
	FFmpegPath string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// MaxUploadBytes returns the per-file upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// Load reads configuration from environment variables using go-envconfig
// and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that limits and durations are consistent.
func (c *Config) Validate() error {
	if c.TargetWidth <= 0 || c.TargetHeight <= 0 {
		return ErrInvalidTargetSize
	}
	if c.MinClipDuration <= 0 || c.MinClipDuration > c.MaxClipDuration {
		return ErrInvalidClipWindow
	}
	if c.MaxFiles <= 0 || c.MaxUploadMB <= 0 || c.OutputMaxFileSizeMB <= 0 {
		return ErrInvalidLimits
	}
	if c.SafetyMargin <= 0 || c.SafetyMargin > 1 {
		return ErrInvalidSafetyMargin
	}
	if c.DefaultTransition < media.MinTransition || c.DefaultTransition > media.MaxTransition {
		return ErrInvalidTransition
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, UploadDir: %s, OutputDir: %s, ThumbnailDir: %s, MaxFiles: %d, MaxUploadMB: %d, OutputMaxFileSizeMB: %.1f, Target: %dx%d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.UploadDir,
		c.OutputDir,
		c.ThumbnailDir,
		c.MaxFiles,
		c.MaxUploadMB,
		c.OutputMaxFileSizeMB,
		c.TargetWidth,
		c.TargetHeight,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
