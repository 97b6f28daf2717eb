package oracle

import "errors"

// Common errors.
var (
	ErrUnsupportedOperation = errors.New("operation not supported by this oracle")
	ErrInvalidBatchSize     = errors.New("batch size must be positive")
	ErrInvalidWorker        = errors.New("worker id outside the oracle's scratch space")
	ErrGradientPattern      = errors.New("loss gradient does not match the example's index pattern")
	ErrInvalidData          = errors.New("invalid training data")
)
