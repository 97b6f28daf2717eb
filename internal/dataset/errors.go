package dataset

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrInvalidFormat    = errors.New("invalid dataset format")
	ErrTruncated        = errors.New("truncated dataset file")
	ErrFeatureMismatch  = errors.New("incompatible feature counts")
	ErrUnsupportedLabel = errors.New("label cannot be stored in binary format")
)

// ParseError describes malformed input at a specific record.
type ParseError struct {
	Format  Format // Format being decoded
	Record  int    // 1-based line (SVM) or example number (binary)
	Details string // What was wrong
	Err     error  // Underlying cause, if any
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s record %d: %s", e.Format, e.Record, e.Details)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause. Parse errors without one match
// ErrInvalidFormat.
func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidFormat, e.Err}
	}
	return []error{ErrInvalidFormat}
}
