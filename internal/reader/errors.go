package reader

import "errors"

var (
	// ErrOutOfOrder is returned when a chapter append would leave a gap in
	// the 1-based contiguous chapter numbering.
	ErrOutOfOrder = errors.New("chapter number out of order")

	// ErrIndexOutOfRange is returned by chapter accessors for an index at
	// or beyond the current chapter count.
	ErrIndexOutOfRange = errors.New("chapter index out of range")

	// ErrNoStory is returned by operations that require a loaded story.
	ErrNoStory = errors.New("no story loaded")
)
