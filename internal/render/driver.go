// Package render drives one render of the clip registry into a short-form
// video: per-clip normalization, bitrate planning, thumbnail extraction,
// timeline assembly, encoding and output verification.
package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/maauso/shortform/internal/bitrate"
	"github.com/maauso/shortform/internal/clip"
	"github.com/maauso/shortform/internal/clip/id"
	"github.com/maauso/shortform/internal/media"
	"github.com/maauso/shortform/internal/storage"
	"github.com/maauso/shortform/internal/thumbnail"
)

// TrimTolerance is how far, in seconds, a trim range may run past the
// decoded clip length before it is rejected.
const TrimTolerance = 0.1

// Options configure the Driver.
type Options struct {
	// Target is the output frame size.
	Target media.Size
	// MaxFileSizeMB is the output size ceiling.
	MaxFileSizeMB float64
	// SafetyMargin and AudioBitrateKbps feed the bitrate planner.
	SafetyMargin     float64
	AudioBitrateKbps float64
	// EncodeThreads is passed to the encoder.
	EncodeThreads int
	// Publish uploads both artifacts to S3 after a successful render.
	Publish bool
	// PublishPrefix is prepended to S3 keys.
	PublishPrefix string
}

// DefaultOptions returns the stock 1080x1920, 32 MB configuration.
func DefaultOptions() Options {
	return Options{
		Target:           media.Size{Width: 1080, Height: 1920},
		MaxFileSizeMB:    32,
		SafetyMargin:     0.85,
		AudioBitrateKbps: 128,
		EncodeThreads:    4,
		PublishPrefix:    "shortform",
	}
}

// Driver renders clip registries. Only one render runs at a time.
type Driver struct {
	media  media.Processor
	store  storage.Storage
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewDriver creates a Driver.
func NewDriver(proc media.Processor, store storage.Storage, opts Options, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		media:  proc,
		store:  store,
		opts:   opts,
		logger: logger.With(slog.String("component", "render")),
		now:    time.Now,
	}
}

// job is the state owned by one render invocation.
type job struct {
	result *Result
	logger *slog.Logger

	// tempFiles are the materialized source copies.
	tempFiles []string
	// sources are the decoded source clips, in registry order.
	sources []media.ClipInfo
	// normalized are the normalized clips, in registry order.
	normalized []media.ClipInfo
	// normalizedFiles includes paths of partially written clips.
	normalizedFiles []string
	timeline        *media.Timeline
}

// transition moves the render to state to. The state is left unchanged when
// the move is not allowed.
func (j *job) transition(to State) error {
	from := j.result.State
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}
	j.result.State = to
	j.logger.Debug("render state changed", slog.String("state", string(to)))
	return nil
}

// Render renders entries in order with the given transition length.
// A Result is returned for every attempt that started, including failed
// ones; the error carries the failure kind. Temporary files are removed
// before Render returns.
func (d *Driver) Render(ctx context.Context, entries []clip.Entry, transition float64) (*Result, error) {
	if !d.mu.TryLock() {
		return nil, ErrRenderInProgress
	}
	defer d.mu.Unlock()

	res := &Result{
		ID:        id.Render(),
		State:     StateIdle,
		Clips:     len(entries),
		Progress:  make([]string, 0, len(entries)),
		StartedAt: d.now(),
	}
	j := &job{
		result: res,
		logger: d.logger.With(slog.String("render_id", res.ID)),
	}
	defer d.cleanup(ctx, j)

	err := d.run(ctx, j, entries, transition)
	res.CompletedAt = d.now()
	if err != nil {
		if terr := j.transition(StateFailed); terr != nil {
			j.logger.Error("render state", slog.String("error", terr.Error()))
		}
		res.Error = UserMessage(err)
		j.logger.Error("render failed", slog.String("error", err.Error()))
		return res, err
	}

	j.logger.Info("render completed",
		slog.String("video", res.VideoPath),
		slog.String("thumbnail", res.ThumbnailPath),
		slog.Float64("size_mb", res.SizeMB),
		slog.Duration("elapsed", res.CompletedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

func (d *Driver) run(ctx context.Context, j *job, entries []clip.Entry, transition float64) error {
	res := j.result

	if err := j.transition(StateValidating); err != nil {
		return err
	}
	if len(entries) == 0 {
		return ErrNoClips
	}
	if transition < media.MinTransition || transition > media.MaxTransition {
		return fmt.Errorf("%w: got %.2f", media.ErrInvalidTransition, transition)
	}

	if err := j.transition(StateProcessing); err != nil {
		return err
	}
	for i, e := range entries {
		line := fmt.Sprintf("(%d/%d) '%s' processing...", i+1, len(entries), e.Upload.Name)
		res.Progress = append(res.Progress, line)
		j.logger.Info(line, slog.String("clip", e.ID))

		if err := d.processClip(ctx, j, i, e); err != nil {
			return err
		}
	}

	if err := j.transition(StatePlanning); err != nil {
		return err
	}
	var total float64
	for _, c := range j.normalized {
		total += c.Duration
	}
	res.Duration = total

	params := d.bitrateParams(total)
	budget, err := bitrate.Plan(params)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	res.Budget = budget
	if budget.LowQuality {
		warning := fmt.Sprintf("The video is long, so quality may be low (video bitrate %.0f kbps).", budget.VideoKbps)
		res.Warnings = append(res.Warnings, warning)
		j.logger.Warn("low video bitrate",
			slog.Float64("video_kbps", budget.VideoKbps),
			slog.Float64("duration", total),
		)
	}

	if err := j.transition(StateThumbnailGeneration); err != nil {
		return err
	}
	artifacts, err := d.store.ArtifactPaths(res.StartedAt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrThumbnail, err)
	}
	if err := thumbnail.Extract(ctx, d.media, j.normalized[0].Path, artifacts.Thumbnail); err != nil {
		return fmt.Errorf("%w: %w", ErrThumbnail, err)
	}
	res.ThumbnailPath = artifacts.Thumbnail

	if err := j.transition(StateAssembling); err != nil {
		return err
	}
	tl, err := media.Assemble(j.normalized, transition)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	j.timeline = tl

	if err := j.transition(StateEncoding); err != nil {
		return err
	}
	opts := media.EncodeOptions{
		VideoBitrate: budget.EncoderArg(),
		AudioBitrate: fmt.Sprintf("%dk", int(params.AudioBitrateKbps)),
		Threads:      d.opts.EncodeThreads,
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
	}
	// Encoding runs to completion once started.
	if err := d.media.Encode(context.WithoutCancel(ctx), tl, artifacts.Video, opts); err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	res.VideoPath = artifacts.Video

	if err := j.transition(StateVerifying); err != nil {
		return err
	}
	info, err := os.Stat(artifacts.Video)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	res.SizeMB = float64(info.Size()) / (1024 * 1024)
	if res.SizeMB > d.opts.MaxFileSizeMB {
		return fmt.Errorf("%w: final size %.2f MB is above the %.0f MB target", ErrOutputOversize, res.SizeMB, d.opts.MaxFileSizeMB)
	}

	if d.opts.Publish {
		d.publish(ctx, j)
	}

	if err := j.transition(StateDone); err != nil {
		return err
	}
	return nil
}

// bitrateParams fills the planner input. A zero margin or audio rate in
// Options selects the planner default.
func (d *Driver) bitrateParams(total float64) bitrate.Params {
	p := bitrate.DefaultParams(total, d.opts.MaxFileSizeMB)
	if d.opts.SafetyMargin > 0 {
		p.SafetyMargin = d.opts.SafetyMargin
	}
	if d.opts.AudioBitrateKbps > 0 {
		p.AudioBitrateKbps = d.opts.AudioBitrateKbps
	}
	return p
}

// processClip materializes, decodes, validates and normalizes one entry.
func (d *Driver) processClip(ctx context.Context, j *job, i int, e clip.Entry) error {
	name := e.Upload.Name

	src, err := d.materialize(ctx, j, e.Upload)
	if err != nil {
		return fmt.Errorf("%w: '%s': %w", ErrNormalize, name, err)
	}

	info, err := d.media.Probe(ctx, src)
	if err != nil {
		return fmt.Errorf("%w: '%s' could not be decoded: %w", ErrNormalize, name, err)
	}
	j.sources = append(j.sources, info)

	if e.TrimStart < 0 || e.TrimDuration <= 0 || e.TrimEnd() > info.Duration+TrimTolerance {
		return fmt.Errorf("%w: '%s' start %.2fs + duration %.2fs is past the clip length of %.2fs",
			ErrTrimRangeInvalid, name, e.TrimStart, e.TrimDuration, info.Duration)
	}

	dst := d.store.TempPath(fmt.Sprintf("normalized_%02d.mp4", i))
	j.normalizedFiles = append(j.normalizedFiles, dst)

	out, err := d.media.Normalize(ctx, info, media.Range{Start: e.TrimStart, Duration: e.TrimDuration}, d.opts.Target, dst)
	if err != nil {
		return fmt.Errorf("%w: '%s': %w", ErrNormalize, name, err)
	}
	j.normalized = append(j.normalized, out)
	return nil
}

// materialize copies an upload into a render-owned temp file.
func (d *Driver) materialize(ctx context.Context, j *job, u clip.Upload) (string, error) {
	r, err := d.store.LoadTemp(ctx, u.Path)
	if err != nil {
		return "", err
	}
	defer func() { _ = r.Close() }()

	name := filepath.Base(u.Name)
	if filepath.Ext(name) == "" {
		name += ".mp4"
	}
	p, err := d.store.SaveTemp(ctx, name, r)
	if err != nil {
		return "", err
	}
	j.tempFiles = append(j.tempFiles, p)
	return p, nil
}

// publish uploads both artifacts. Failures are recorded as warnings.
func (d *Driver) publish(ctx context.Context, j *job) {
	res := j.result
	upload := func(p string) string {
		key := path.Join(d.opts.PublishPrefix, filepath.Base(p))
		url, err := d.upload(ctx, key, p)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Could not publish %s: %v", filepath.Base(p), err))
			j.logger.Warn("publish failed", slog.String("key", key), slog.String("error", err.Error()))
			return ""
		}
		j.logger.Info("artifact published", slog.String("url", url))
		return url
	}
	res.VideoURL = upload(res.VideoPath)
	res.ThumbnailURL = upload(res.ThumbnailPath)
}

func (d *Driver) upload(ctx context.Context, key, p string) (string, error) {
	r, err := d.store.LoadTemp(ctx, p)
	if err != nil {
		return "", err
	}
	defer func(c io.Closer) { _ = c.Close() }(r)
	return d.store.UploadToS3(ctx, key, r)
}

// cleanup releases everything the job owns, in order: the timeline, the
// normalized clips, the decoded sources, then the temp source files.
// It runs even when ctx is cancelled.
func (d *Driver) cleanup(ctx context.Context, j *job) {
	ctx = context.WithoutCancel(ctx)

	if j.timeline != nil {
		if err := j.timeline.Close(); err != nil {
			j.logger.Warn("release timeline", slog.String("error", err.Error()))
		}
		j.timeline = nil
	}

	if err := d.store.CleanupTemp(ctx, j.normalizedFiles); err != nil {
		j.logger.Warn("remove normalized clips", slog.String("error", err.Error()))
	}
	j.normalized = nil

	// Decoded sources hold no open handles once probed.
	j.sources = nil

	if err := d.store.CleanupTemp(ctx, j.tempFiles); err != nil {
		j.logger.Warn("remove temp source files", slog.String("error", err.Error()))
	}

	j.logger.Debug("render resources released",
		slog.Int("normalized", len(j.normalizedFiles)),
		slog.Int("temp_files", len(j.tempFiles)),
	)
}
