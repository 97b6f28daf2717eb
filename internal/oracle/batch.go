package oracle

import (
	"fmt"

	"github.com/born-ml/svrg/internal/vector"
)

// Batch turns an inner oracle into a mini-batch oracle. Instance i of a Batch
// covers inner instances [i*size, min((i+1)*size, n)) and its objective and
// gradient are the averages over that range.
type Batch[P vector.Params] struct {
	inner      Oracle[P]
	size       int
	numInner   int
	numBatches int
	dimension  int
	scratch    []batchScratch
}

// batchScratch holds one worker's buffers for summing gradients.
type batchScratch struct {
	instance *vector.Sparse // gradient of the current inner instance
	sum      *vector.Sparse // running sum up to the previous instance
	next     *vector.Sparse // receives sum + instance, then swapped with sum
}

// NewBatch wraps inner into batches of size instances. workers is the number
// of distinct worker ids that will call the oracle concurrently.
func NewBatch[P vector.Params](inner Oracle[P], size, workers int) (*Batch[P], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, size)
	}
	if workers <= 0 {
		workers = 1
	}

	n := inner.NumInstances()
	b := &Batch[P]{
		inner:      inner,
		size:       size,
		numInner:   n,
		numBatches: (n + size - 1) / size,
		dimension:  inner.Dimension(),
		scratch:    make([]batchScratch, workers),
	}
	for w := range b.scratch {
		b.scratch[w] = batchScratch{
			instance: vector.NewSparse(0),
			sum:      vector.NewSparse(0),
			next:     vector.NewSparse(0),
		}
	}
	return b, nil
}

// BatchSize returns the number of inner instances per batch.
func (b *Batch[P]) BatchSize() int { return b.size }

func (b *Batch[P]) bounds(instance int) (int, int) {
	start := instance * b.size
	return start, min(start+b.size, b.numInner)
}

func (b *Batch[P]) worker(wid int) (*batchScratch, error) {
	if wid < 0 || wid >= len(b.scratch) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidWorker, wid, len(b.scratch))
	}
	return &b.scratch[wid], nil
}

// Gradient implements Oracle.
func (b *Batch[P]) Gradient(wid int, params P, instance int, out *vector.Sparse) error {
	_, err := b.accumulate(wid, params, instance, out, false)
	return err
}

// Objective implements Oracle.
func (b *Batch[P]) Objective(wid int, params P, instance int) float64 {
	start, end := b.bounds(instance)
	var sum float64
	for i := start; i < end; i++ {
		sum += b.inner.Objective(wid, params, i)
	}
	return sum / float64(end-start)
}

// ObjectiveAndGradient implements Oracle.
func (b *Batch[P]) ObjectiveAndGradient(wid int, params P, instance int, out *vector.Sparse) (float64, error) {
	return b.accumulate(wid, params, instance, out, true)
}

func (b *Batch[P]) accumulate(wid int, params P, instance int, out *vector.Sparse, withObjective bool) (float64, error) {
	s, err := b.worker(wid)
	if err != nil {
		return 0, err
	}

	start, end := b.bounds(instance)
	s.sum.Reset()
	var objective float64

	for i := start; i < end; i++ {
		if withObjective {
			obj, err := b.inner.ObjectiveAndGradient(wid, params, i, s.instance)
			if err != nil {
				return 0, err
			}
			objective += obj
		} else if err := b.inner.Gradient(wid, params, i, s.instance); err != nil {
			return 0, err
		}

		vector.Merge(s.instance, s.sum, s.next)
		s.sum, s.next = s.next, s.sum
	}

	count := float64(end - start)
	out.CopyScaled(s.sum, 1/count)
	return objective / count, nil
}

// NumInstances returns the number of batches, ceil(n/size).
func (b *Batch[P]) NumInstances() int { return b.numBatches }

// Dimension implements Oracle.
func (b *Batch[P]) Dimension() int { return b.dimension }

// EvalParams implements Oracle by delegating to the inner oracle.
func (b *Batch[P]) EvalParams(params P, out map[string]float64) {
	b.inner.EvalParams(params, out)
}

// Instance is not supported: a batch has no single feature vector.
func (b *Batch[P]) Instance(int) (*vector.Sparse, error) {
	return nil, fmt.Errorf("%w: raw instance access on a batch oracle", ErrUnsupportedOperation)
}
