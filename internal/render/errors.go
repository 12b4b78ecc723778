package render

import (
	"errors"
	"fmt"

	"github.com/maauso/shortform/internal/clip"
	"github.com/maauso/shortform/internal/media"
)

// Render error kinds. All of them stop the render; none are fatal to the process.
var (
	// ErrNoClips is returned when a render is started with an empty registry.
	ErrNoClips = errors.New("no clips to render")
	// ErrTrimRangeInvalid is returned when a clip's start+duration runs past
	// its decoded length. The message names the clip.
	ErrTrimRangeInvalid = errors.New("trim range exceeds clip length")
	// ErrNormalize is returned when a clip cannot be decoded or normalized.
	ErrNormalize = errors.New("clip processing failed")
	// ErrThumbnail is returned when the thumbnail cannot be written.
	ErrThumbnail = errors.New("thumbnail generation failed")
	// ErrEncode is returned for any failure while assembling or encoding.
	ErrEncode = errors.New("video creation failed")
	// ErrOutputOversize is returned when the encoded file exceeds the size
	// ceiling. The file is left on disk.
	ErrOutputOversize = errors.New("output exceeds the size limit")
	// ErrRenderInProgress is returned when a render is requested while
	// another one is running.
	ErrRenderInProgress = errors.New("a render is already running")
)

// UserMessage turns a render error into a sentence for the UI.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, clip.ErrUploadCountExceeded):
		return fmt.Sprintf("Too many files: %v", err)
	case errors.Is(err, ErrNoClips):
		return "Upload at least one clip before rendering."
	case errors.Is(err, media.ErrInvalidTransition):
		return fmt.Sprintf("Invalid transition: %v", err)
	case errors.Is(err, ErrTrimRangeInvalid):
		return fmt.Sprintf("Invalid clip range: %v", err)
	case errors.Is(err, ErrNormalize):
		return fmt.Sprintf("Could not process a clip: %v", err)
	case errors.Is(err, ErrThumbnail):
		return fmt.Sprintf("Could not create the thumbnail: %v", err)
	case errors.Is(err, ErrOutputOversize):
		return fmt.Sprintf("The final video is too large: %v", err)
	case errors.Is(err, ErrEncode):
		return fmt.Sprintf("An error occurred while creating the video: %v", err)
	case errors.Is(err, ErrRenderInProgress):
		return "A render is already running. Please wait for it to finish."
	default:
		return fmt.Sprintf("Unexpected error: %v", err)
	}
}
