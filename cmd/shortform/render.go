package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maauso/shortform/internal/bootstrap"
	"github.com/maauso/shortform/internal/clip"
	"github.com/maauso/shortform/internal/clip/id"
	"github.com/maauso/shortform/internal/config"
	"github.com/maauso/shortform/internal/render"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render clips without the browser UI",
	Long: `Render one or more MP4 clips into a vertical video.

Each --clip takes a path, optionally followed by @start+duration in seconds.
Clips without a range get the default trim settings.

Example:
  shortform render --clip a.mp4@2+6 --clip b.mp4 --transition 0.4`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		specs, _ := cmd.Flags().GetStringArray("clip")
		transition, _ := cmd.Flags().GetFloat64("transition")
		return renderClips(cmd, specs, transition)
	},
}

func init() {
	renderCmd.Flags().StringArrayP("clip", "c", nil, "Clip as path[@start+duration], repeatable, in output order")
	renderCmd.Flags().Float64P("transition", "t", 0, "Fade length in seconds (default DEFAULT_TRANSITION)")
	_ = renderCmd.MarkFlagRequired("clip")
}

// clipSpec is one --clip argument.
type clipSpec struct {
	Path     string
	Start    float64
	Duration float64
	HasRange bool
}

// parseClipSpec parses "path" or "path@start+duration".
func parseClipSpec(s string) (clipSpec, error) {
	at := strings.LastIndex(s, "@")
	if at < 0 {
		if s == "" {
			return clipSpec{}, errors.New("empty clip argument")
		}
		return clipSpec{Path: s}, nil
	}

	path, rng := s[:at], s[at+1:]
	startStr, durStr, ok := strings.Cut(rng, "+")
	if path == "" || !ok {
		return clipSpec{}, fmt.Errorf("clip %q: want path@start+duration", s)
	}
	start, err := strconv.ParseFloat(startStr, 64)
	if err != nil || start < 0 {
		return clipSpec{}, fmt.Errorf("clip %q: invalid start %q", s, startStr)
	}
	duration, err := strconv.ParseFloat(durStr, 64)
	if err != nil || duration <= 0 {
		return clipSpec{}, fmt.Errorf("clip %q: invalid duration %q", s, durStr)
	}
	return clipSpec{Path: path, Start: start, Duration: duration, HasRange: true}, nil
}

func renderClips(cmd *cobra.Command, args []string, transition float64) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLogger()

	if transition == 0 {
		transition = cfg.DefaultTransition
	}

	specs := make([]clipSpec, 0, len(args))
	uploads := make([]clip.Upload, 0, len(args))
	for _, a := range args {
		spec, err := parseClipSpec(a)
		if err != nil {
			return err
		}
		info, err := os.Stat(spec.Path)
		if err != nil {
			return fmt.Errorf("clip %q: %w", spec.Path, err)
		}
		specs = append(specs, spec)
		uploads = append(uploads, clip.Upload{
			ID:   id.Generate(),
			Name: filepath.Base(spec.Path),
			Size: info.Size(),
			Path: spec.Path,
		})
	}
	if err := clip.CheckUploadCount(len(uploads), cfg.MaxFiles); err != nil {
		return err
	}

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := clip.NewRegistry()
	reg.Sync(ctx, uploads, deps.Processor, deps.Settings, logger)
	for i, spec := range specs {
		if spec.HasRange {
			reg.Update(uploads[i].Key(), spec.Start, spec.Duration, deps.Settings)
		}
	}

	res, err := deps.Driver.Render(ctx, reg.Entries(), transition)
	printResult(cmd, res)
	if err != nil {
		return errors.New(render.UserMessage(err))
	}
	return nil
}

func printResult(cmd *cobra.Command, res *render.Result) {
	if res == nil {
		return
	}
	out := cmd.OutOrStdout()
	for _, line := range res.Progress {
		fmt.Fprintln(out, line)
	}
	for _, w := range res.Warnings {
		fmt.Fprintln(out, "warning:", w)
	}
	if !res.Succeeded() {
		return
	}
	fmt.Fprintf(out, "video:     %s (%.2f MB, %.2fs)\n", res.VideoPath, res.SizeMB, res.Duration)
	fmt.Fprintf(out, "thumbnail: %s\n", res.ThumbnailPath)
	if res.VideoURL != "" {
		fmt.Fprintf(out, "published: %s\n", res.VideoURL)
	}
}
