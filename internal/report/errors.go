package report

import (
	"errors"
	"fmt"
)

// OutputWriteError reports a report file that could not be written. The
// write is atomic, so the destination is never left half-finished: either
// the old content survives or the new content replaced it whole.
type OutputWriteError struct {
	Path string
	Err  error
}

// NewOutputWriteError creates an OutputWriteError for the given destination.
func NewOutputWriteError(path string, err error) *OutputWriteError {
	return &OutputWriteError{Path: path, Err: err}
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("write report %s: %v", e.Path, e.Err)
}

func (e *OutputWriteError) Unwrap() error {
	return e.Err
}

// IsOutputWriteError checks if an error is an OutputWriteError.
func IsOutputWriteError(err error) bool {
	var writeErr *OutputWriteError
	return errors.As(err, &writeErr)
}
