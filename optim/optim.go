// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"fmt"

	"github.com/born-ml/svrg/internal/optim"
	"github.com/born-ml/svrg/internal/oracle"
	"github.com/born-ml/svrg/internal/vector"
)

// Vectors

// Params is the read-only view of a parameter vector consumed by oracles.
type Params = vector.Params

// Dense is a dense float64 vector.
type Dense = vector.Dense

// Sparse is a sparse vector with strictly increasing indices.
type Sparse = vector.Sparse

// NewDense creates a zero vector of length n.
func NewDense(n int) *Dense { return vector.NewDense(n) }

// SparseFrom builds a sparse vector from parallel index and value slices.
func SparseFrom(indices []int, values []float64) (*Sparse, error) {
	return vector.SparseFrom(indices, values)
}

// Oracles

// Oracle computes per-instance objectives and gradients.
type Oracle[P Params] = oracle.Oracle[P]

// LogisticConfig configures NewLogisticRegression.
type LogisticConfig = oracle.LogisticConfig

// NewLogisticRegression creates an L2-regularized logistic regression
// oracle. Labels must be 0 or 1.
//
// Example:
//
//	o, err := optim.NewLogisticRegression[*optim.Dense](
//	    ds.Examples, ds.Labels, ds.NumFeatures,
//	    optim.LogisticConfig{L2: 1e-4, TestExamples: test.Examples, TestLabels: test.Labels},
//	)
func NewLogisticRegression[P Params](examples []Sparse, labels []float64, numFeatures int, cfg LogisticConfig) (Oracle[P], error) {
	o, err := oracle.NewLogisticRegression[P](examples, labels, numFeatures, cfg)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// NewBatch averages inner over consecutive mini-batches of size instances.
// workers must be at least the number of solver workers.
func NewBatch[P Params](inner Oracle[P], size, workers int) (Oracle[P], error) {
	b, err := oracle.NewBatch[P](inner, size, workers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	return b, nil
}

// Solvers

// Options configures SGD and SVRG.
type Options = optim.Options

// ParallelMode selects how concurrent updates are synchronized.
type ParallelMode = optim.ParallelMode

// Parallel modes.
const (
	FreeForAll ParallelMode = optim.FreeForAll
	LockFree   ParallelMode = optim.LockFree
	Locked     ParallelMode = optim.Locked
)

// Record is the trace entry of one epoch.
type Record = optim.Record

// Solution is the result of a solver run.
type Solution = optim.Solution

// Observer receives trace records as epochs complete.
type Observer = optim.Observer

// SGD is the parallel stochastic gradient descent solver.
type SGD = optim.SGD

// SVRG is the parallel stochastic variance-reduced gradient solver.
type SVRG = optim.SVRG

// SVRGParams is the parameter view SVRG hands to its oracle.
type SVRGParams = optim.SVRGParams

// Solver errors.
var (
	ErrNumericalDivergence  = optim.ErrNumericalDivergence
	ErrInvalidConfiguration = optim.ErrInvalidConfiguration
)

// DefaultOptions returns the default solver configuration.
func DefaultOptions() Options { return optim.DefaultOptions() }

// ParseParallelMode parses FREE_FOR_ALL, LOCK_FREE or LOCKED.
func ParseParallelMode(s string) (ParallelMode, error) { return optim.ParseParallelMode(s) }

// NewSGD creates an SGD solver.
func NewSGD(opts Options) *SGD { return optim.NewSGD(opts) }

// NewSVRG creates an SVRG solver.
func NewSVRG(opts Options) *SVRG { return optim.NewSVRG(opts) }
