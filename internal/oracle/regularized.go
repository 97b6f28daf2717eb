package oracle

import (
	"fmt"

	"github.com/born-ml/svrg/internal/vector"
)

// Regularized wraps a Loss over a fixed set of examples and adds an L2 term
// scaled by feature frequency:
//
//	objective_i = loss_i + sum_{j in x_i} l2 * w_j^2 / count_j
//	gradient_i  = grad loss_i + 2 * l2 * w_j / count_j   for j in x_i
//
// where count_j is the number of training examples in which feature j is
// non-zero. Summed over the whole dataset every feature therefore receives
// exactly l2 * w_j^2, however rare it is.
type Regularized[P vector.Params] struct {
	loss          Loss[P]
	examples      []vector.Sparse
	labels        []float64
	numFeatures   int
	l2            float64
	featureCounts []int
}

// NewRegularized creates a regularized oracle over examples and labels.
// Every feature index must be below numFeatures.
func NewRegularized[P vector.Params](loss Loss[P], examples []vector.Sparse, labels []float64, numFeatures int, l2 float64) (*Regularized[P], error) {
	if len(examples) != len(labels) {
		return nil, fmt.Errorf("%w: %d examples, %d labels", ErrInvalidData, len(examples), len(labels))
	}
	if numFeatures < 0 {
		return nil, fmt.Errorf("%w: negative feature count %d", ErrInvalidData, numFeatures)
	}

	counts := make([]int, numFeatures)
	for i := range examples {
		if m := examples[i].MaxIndex(); m >= numFeatures {
			return nil, fmt.Errorf("%w: example %d has feature %d, dimension is %d",
				vector.ErrDimensionMismatch, i, m, numFeatures)
		}
		for it := examples[i].Iter(); it.Valid(); it.Next() {
			counts[it.Index()]++
		}
	}

	return &Regularized[P]{
		loss:          loss,
		examples:      examples,
		labels:        labels,
		numFeatures:   numFeatures,
		l2:            l2,
		featureCounts: counts,
	}, nil
}

// Gradient implements Oracle.
func (r *Regularized[P]) Gradient(_ int, params P, instance int, out *vector.Sparse) error {
	x := &r.examples[instance]
	r.loss.Gradient(params, x, r.labels[instance], out)
	return r.regularizeGradient(params, x, out)
}

// Objective implements Oracle.
func (r *Regularized[P]) Objective(_ int, params P, instance int) float64 {
	x := &r.examples[instance]
	obj := r.loss.Objective(params, x, r.labels[instance])
	for it := x.Iter(); it.Valid(); it.Next() {
		idx := it.Index()
		w := params.At(idx)
		obj += r.l2 * w * w / float64(r.featureCounts[idx])
	}
	return obj
}

// ObjectiveAndGradient implements Oracle.
func (r *Regularized[P]) ObjectiveAndGradient(_ int, params P, instance int, out *vector.Sparse) (float64, error) {
	x := &r.examples[instance]
	obj := r.loss.ObjectiveAndGradient(params, x, r.labels[instance], out)

	xi := x.Iter()
	gi := out.Values()
	for ; xi.Valid(); xi.Next() {
		if !gi.Valid() || gi.Index() != xi.Index() {
			return 0, fmt.Errorf("%w: instance %d", ErrGradientPattern, instance)
		}
		idx := xi.Index()
		w := params.At(idx)
		c := float64(r.featureCounts[idx])
		gi.Add(2 * r.l2 * w / c)
		obj += r.l2 * w * w / c
		gi.Next()
	}
	if gi.Valid() {
		return 0, fmt.Errorf("%w: instance %d", ErrGradientPattern, instance)
	}
	return obj, nil
}

func (r *Regularized[P]) regularizeGradient(params P, x *vector.Sparse, out *vector.Sparse) error {
	xi := x.Iter()
	gi := out.Values()
	for ; xi.Valid(); xi.Next() {
		if !gi.Valid() || gi.Index() != xi.Index() {
			return fmt.Errorf("%w: feature %d", ErrGradientPattern, xi.Index())
		}
		idx := xi.Index()
		gi.Add(2 * r.l2 * params.At(idx) / float64(r.featureCounts[idx]))
		gi.Next()
	}
	if gi.Valid() {
		return fmt.Errorf("%w: extra feature %d", ErrGradientPattern, gi.Index())
	}
	return nil
}

// NumInstances implements Oracle.
func (r *Regularized[P]) NumInstances() int { return len(r.examples) }

// Dimension implements Oracle.
func (r *Regularized[P]) Dimension() int { return r.numFeatures }

// EvalParams implements Oracle by delegating to the loss.
func (r *Regularized[P]) EvalParams(params P, out map[string]float64) {
	r.loss.EvalParams(params, out)
}

// Instance implements Oracle.
func (r *Regularized[P]) Instance(instance int) (*vector.Sparse, error) {
	if instance < 0 || instance >= len(r.examples) {
		return nil, fmt.Errorf("%w: instance %d of %d", ErrInvalidData, instance, len(r.examples))
	}
	return &r.examples[instance], nil
}
