package input

import (
	"errors"
	"fmt"
)

// InputFormatError reports a scan file that cannot be used at all: missing,
// unreadable, or holding no barcodes. Individual odd lines are skipped with
// a warning instead.
type InputFormatError struct {
	Path   string
	Reason string
	Err    error
}

// NewInputFormatError creates an InputFormatError for the given file.
func NewInputFormatError(path, reason string, err error) *InputFormatError {
	return &InputFormatError{Path: path, Reason: reason, Err: err}
}

func (e *InputFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input file %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("input file %s: %s", e.Path, e.Reason)
}

func (e *InputFormatError) Unwrap() error {
	return e.Err
}

// IsInputFormatError checks if an error is an InputFormatError.
func IsInputFormatError(err error) bool {
	var inputErr *InputFormatError
	return errors.As(err, &inputErr)
}
