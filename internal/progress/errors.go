package progress

import "errors"

var (
	// ErrNotFound is returned when no progress row exists for a key.
	ErrNotFound = errors.New("progress not found")

	// ErrProgressFinished is returned when a page is recorded on a progress
	// row that is already done.
	ErrProgressFinished = errors.New("progress already finished")
)
