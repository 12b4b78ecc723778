package render

import "errors"

// State is a step of the render state machine.
type State string

const (
	// StateIdle is the state before a render starts.
	StateIdle State = "IDLE"
	// StateValidating checks the clip list and transition.
	StateValidating State = "VALIDATING"
	// StateProcessing materializes, validates and normalizes each clip in turn.
	StateProcessing State = "PROCESSING"
	// StatePlanning computes the video bitrate budget.
	StatePlanning State = "PLANNING"
	// StateThumbnailGeneration writes the cover image.
	StateThumbnailGeneration State = "THUMBNAIL_GENERATION"
	// StateAssembling builds the timeline.
	StateAssembling State = "ASSEMBLING"
	// StateEncoding writes the output video.
	StateEncoding State = "ENCODING"
	// StateVerifying checks the output size and publishes artifacts.
	StateVerifying State = "VERIFYING"
	// StateDone means both artifacts are ready.
	StateDone State = "DONE"
	// StateFailed means the render stopped on an error.
	StateFailed State = "FAILED"
)

// ErrInvalidStateTransition is returned when the driver attempts a state
// change the machine does not allow.
var ErrInvalidStateTransition = errors.New("invalid render state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[State][]State{
	StateIdle:                {StateValidating, StateFailed},
	StateValidating:          {StateProcessing, StateFailed},
	StateProcessing:          {StatePlanning, StateFailed},
	StatePlanning:            {StateThumbnailGeneration, StateFailed},
	StateThumbnailGeneration: {StateAssembling, StateFailed},
	StateAssembling:          {StateEncoding, StateFailed},
	StateEncoding:            {StateVerifying, StateFailed},
	StateVerifying:           {StateDone, StateFailed},
	StateDone:                {},
	StateFailed:              {},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
