package optim

import (
	"fmt"
	"time"

	"github.com/born-ml/svrg/internal/oracle"
	"github.com/born-ml/svrg/internal/vector"
)

// SGD implements parallel stochastic gradient descent with sparse gradients.
//
// Every epoch performs UpdatesPerEpoch(n, factor) updates
//
//	x = x - step * g_j(x),  j uniform in [0, n)
//
// spread over the workers, then recomputes the full objective and gradient.
// Only the update phase counts towards the elapsed time.
//
// Example:
//
//	opts := optim.DefaultOptions()
//	opts.StepSize = 0.5
//	opts.ParallelMode = optim.LockFree
//	sol, err := optim.NewSGD(opts).Solve(o)
type SGD struct {
	opts Options
}

// NewSGD creates a new SGD solver.
func NewSGD(opts Options) *SGD {
	return &SGD{opts: opts}
}

// Solve runs SGD on o from the zero vector.
func (s *SGD) Solve(o oracle.Oracle[*vector.Dense]) (*Solution, error) {
	r, err := newRun("sgd", s.opts, o.NumInstances(), o.Dimension())
	if err != nil {
		return nil, err
	}

	x := vector.NewDense(r.dim)
	avg := vector.NewDense(r.dim)
	atomicAdd := r.atomicUpdates()

	for epoch := 0; ; epoch++ {
		start := time.Now()

		err := r.pool.Static(r.updates, func(wid, _ int) error {
			w := &r.workers[wid]
			j := r.sample(w)
			if err := o.Gradient(wid, x, j, w.grad); err != nil {
				return err
			}
			step := r.step()

			r.lock()
			vector.AccumulateSparse(x, w.grad, -step, atomicAdd)
			r.unlock()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("sgd: epoch %d: update: %w", epoch, err)
		}
		r.elapsed += time.Since(start)

		objective, err := evaluate(r, o, x, avg)
		if err != nil {
			return nil, fmt.Errorf("sgd: epoch %d: evaluation: %w", epoch, err)
		}

		metrics := make(map[string]float64)
		o.EvalParams(x, metrics)

		done, err := r.finishEpoch(epoch, objective, avg, metrics)
		if err != nil {
			return nil, fmt.Errorf("sgd: %w", err)
		}
		if done {
			return r.solution(x, objective), nil
		}
	}
}
