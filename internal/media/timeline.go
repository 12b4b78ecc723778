package media

import (
	"fmt"
	"strings"
)

// Transition duration bounds and UI step, in seconds.
const (
	MinTransition  = 0.1
	MaxTransition  = 1.0
	TransitionStep = 0.05
)

// ErrInvalidTransition is returned when a transition falls outside [MinTransition, MaxTransition].
var ErrInvalidTransition = fmt.Errorf("transition must be between %.1f and %.1f seconds", MinTransition, MaxTransition)

// ErrEmptyTimeline is returned when no clips are given to Assemble.
var ErrEmptyTimeline = fmt.Errorf("timeline needs at least one clip")

// Output stream labels of the assembled filter graph.
const (
	videoOutLabel = "vout"
	audioOutLabel = "aout"
)

// Timeline is an ordered, non-overlapping concatenation of normalized clips.
// Every clip after the first fades in from black over Transition seconds,
// and the whole timeline fades in at its start and out at its end.
//
// A Timeline holds no open files; the clips it references are owned by
// whoever produced them.
type Timeline struct {
	Clips      []ClipInfo
	Transition float64
	// Duration is the sum of the clip durations.
	Duration float64
}

// Assemble builds a Timeline from normalized clips in playback order.
func Assemble(clips []ClipInfo, transition float64) (*Timeline, error) {
	if len(clips) == 0 {
		return nil, ErrEmptyTimeline
	}
	if transition < MinTransition || transition > MaxTransition {
		return nil, fmt.Errorf("%w: got %.2f", ErrInvalidTransition, transition)
	}

	var total float64
	for i, c := range clips {
		if c.Duration <= 0 {
			return nil, fmt.Errorf("%w: clip %d has duration %.2f", ErrInvalidRange, i, c.Duration)
		}
		total += c.Duration
	}

	return &Timeline{
		Clips:      append([]ClipInfo(nil), clips...),
		Transition: transition,
		Duration:   total,
	}, nil
}

// Close releases the timeline. It owns no resources, so this only drops
// the clip references.
func (t *Timeline) Close() error {
	t.Clips = nil
	return nil
}

// FilterGraph returns the ffmpeg filter_complex expression for the timeline.
// Input i of the graph is Clips[i]. Clips without audio get generated silence
// of the same length so concat always sees one audio stream per segment.
func (t *Timeline) FilterGraph() string {
	var b strings.Builder
	segments := make([]string, 0, len(t.Clips))

	for i, c := range t.Clips {
		fmt.Fprintf(&b, "[%d:v]setpts=PTS-STARTPTS", i)
		if i > 0 {
			fmt.Fprintf(&b, ",fade=t=in:st=0:d=%s", seconds(t.Transition))
		}
		fmt.Fprintf(&b, "[v%d];", i)

		if c.HasAudio {
			fmt.Fprintf(&b, "[%d:a]asetpts=PTS-STARTPTS[a%d];", i, i)
		} else {
			fmt.Fprintf(&b, "anullsrc=r=44100:cl=stereo,atrim=duration=%s,asetpts=PTS-STARTPTS[a%d];",
				seconds(c.Duration), i)
		}
		segments = append(segments, fmt.Sprintf("[v%d][a%d]", i, i))
	}

	fadeOutStart := max(0, t.Duration-t.Transition)
	fmt.Fprintf(&b, "%sconcat=n=%d:v=1:a=1[vc][%s];", strings.Join(segments, ""), len(t.Clips), audioOutLabel)
	fmt.Fprintf(&b, "[vc]fade=t=in:st=0:d=%s,fade=t=out:st=%s:d=%s[%s]",
		seconds(t.Transition), seconds(fadeOutStart), seconds(t.Transition), videoOutLabel)

	return b.String()
}
