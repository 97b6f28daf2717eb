package vector

import "errors"

// Common errors.
var (
	ErrDimensionMismatch   = errors.New("vector dimensions do not match")
	ErrIncompatibleVectors = errors.New("sparse vectors do not share an index pattern")
	ErrOutOfOrder          = errors.New("sparse index appended out of order")
)
