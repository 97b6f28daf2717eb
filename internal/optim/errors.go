package optim

import "errors"

// Common errors.
var (
	ErrNumericalDivergence  = errors.New("objective is not finite")
	ErrInvalidConfiguration = errors.New("invalid solver configuration")
)
