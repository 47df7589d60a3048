package download

import "errors"

// Sentinel errors for the download package.
var (
	// ErrNotFound is returned when no job exists with the given id.
	ErrNotFound = errors.New("job not found")

	// ErrDuplicate is returned when an identical episode is already
	// queued or downloading.
	ErrDuplicate = errors.New("episode already queued")

	// ErrNotCancellable is returned when cancelling a job that already
	// reached a terminal state.
	ErrNotCancellable = errors.New("job already finished")

	// ErrStalled is returned when a transfer makes no progress within
	// the stall window.
	ErrStalled = errors.New("transfer stalled")

	// ErrTruncated is returned when the written file is empty or shorter
	// than the length announced by the server.
	ErrTruncated = errors.New("file truncated")
)
