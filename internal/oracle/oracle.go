// Package oracle computes per-instance objectives and gradients for
// regularized empirical-risk minimization.
//
// This package provides:
//   - Oracle: the capability consumed by the solvers
//   - Loss: a per-example loss plugged into Regularized
//   - Regularized: adds frequency-scaled L2 regularization to a Loss
//   - LogisticLoss: sigmoid cross-entropy with held-out error reporting
//   - Batch: averages an inner oracle over fixed-size mini-batches
//
// Oracles only read parameters and write into caller-supplied gradient
// buffers. Any scratch state is held per worker and addressed by the worker
// id handed to every call, so one oracle can be shared by all workers of a
// parallel.Pool.
package oracle

import (
	"github.com/born-ml/svrg/internal/vector"
)

// Oracle computes objective values and gradients for the instances of a
// training problem at a given parameter vector.
type Oracle[P vector.Params] interface {
	// Gradient stores the gradient of instance at params into out.
	// wid identifies the calling worker.
	Gradient(wid int, params P, instance int, out *vector.Sparse) error

	// Objective returns the objective of instance at params.
	Objective(wid int, params P, instance int) float64

	// ObjectiveAndGradient computes both in a single pass.
	ObjectiveAndGradient(wid int, params P, instance int, out *vector.Sparse) (float64, error)

	// NumInstances returns the number of instances.
	NumInstances() int

	// Dimension returns the parameter dimension.
	Dimension() int

	// EvalParams adds auxiliary metrics for params (e.g. held-out error)
	// to out.
	EvalParams(params P, out map[string]float64)

	// Instance returns the raw feature vector of an instance.
	Instance(instance int) (*vector.Sparse, error)
}

// Loss is an unregularized per-example loss.
//
// Gradient must produce a vector with exactly the index pattern of x.
type Loss[P vector.Params] interface {
	Gradient(params P, x *vector.Sparse, y float64, out *vector.Sparse)
	Objective(params P, x *vector.Sparse, y float64) float64
	ObjectiveAndGradient(params P, x *vector.Sparse, y float64, out *vector.Sparse) float64
	EvalParams(params P, out map[string]float64)
}
