package optim

import (
	"fmt"
	"time"

	"github.com/born-ml/svrg/internal/oracle"
	"github.com/born-ml/svrg/internal/parallel"
	"github.com/born-ml/svrg/internal/vector"
)

// SVRGParams is the parameter vector seen by the oracle during SVRG:
//
//	x[i] = Base[i] + Multiplier * Average[i]
//
// Base accumulates the sparse updates of the current epoch while the dense
// average-gradient part of every update is folded into Multiplier, so no
// dense vector is materialized per step.
type SVRGParams struct {
	Base       *vector.Dense
	Average    *vector.Dense
	Multiplier float64
}

// At implements vector.Params.
func (p SVRGParams) At(i int) float64 {
	if p.Multiplier == 0 {
		return p.Base.At(i)
	}
	return p.Base.At(i) + p.Multiplier*p.Average.At(i)
}

// Len implements vector.Params.
func (p SVRGParams) Len() int { return p.Base.Len() }

// SVRG implements parallel stochastic variance-reduced gradient descent.
//
// Each epoch keeps the anchor x~ (the iterate at the start of the epoch) and
// mu, the full average gradient at x~. Updates use the control-variate
// gradient
//
//	g_j(x) - g_j(x~) + mu
//
// The first epoch has no anchor and performs plain SGD steps. Computing mu is
// part of the algorithm, so the evaluation phase counts towards the elapsed
// time.
type SVRG struct {
	opts Options
}

// NewSVRG creates a new SVRG solver.
func NewSVRG(opts Options) *SVRG {
	return &SVRG{opts: opts}
}

// Solve runs SVRG on o from the zero vector.
func (s *SVRG) Solve(o oracle.Oracle[SVRGParams]) (*Solution, error) {
	r, err := newRun("svrg", s.opts, o.NumInstances(), o.Dimension())
	if err != nil {
		return nil, err
	}

	x := vector.NewDense(r.dim)
	anchor := vector.NewDense(r.dim)
	avg := vector.NewDense(r.dim)
	atomicAdd := r.atomicUpdates()
	var multiplier parallel.Float64

	for epoch := 0; ; epoch++ {
		multiplier.Store(0)
		start := time.Now()

		err := r.pool.Static(r.updates, func(wid, _ int) error {
			w := &r.workers[wid]
			j := r.sample(w)

			current := SVRGParams{Base: x, Average: avg, Multiplier: multiplier.Load()}
			if err := o.Gradient(wid, current, j, w.grad); err != nil {
				return err
			}
			if epoch > 0 {
				if err := o.Gradient(wid, SVRGParams{Base: anchor, Average: avg}, j, w.anchorGrad); err != nil {
					return err
				}
				if err := vector.AddCompatible(w.grad, 1, w.anchorGrad, -1); err != nil {
					return fmt.Errorf("instance %d: %w", j, err)
				}
			}
			step := r.step()

			r.lock()
			vector.AccumulateSparse(x, w.grad, -step, atomicAdd)
			if epoch > 0 {
				if atomicAdd {
					multiplier.Add(-step)
				} else {
					multiplier.Store(multiplier.Load() - step)
				}
			}
			r.unlock()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("svrg: epoch %d: update: %w", epoch, err)
		}

		// Materialize x, then make it the anchor of the next epoch.
		if err := vector.ScaledAccumulate(x, 1, avg, multiplier.Load()); err != nil {
			return nil, err
		}
		if err := anchor.CopyFrom(x); err != nil {
			return nil, err
		}

		params := SVRGParams{Base: x, Average: avg}
		objective, err := evaluate(r, o, params, avg)
		if err != nil {
			return nil, fmt.Errorf("svrg: epoch %d: evaluation: %w", epoch, err)
		}
		r.elapsed += time.Since(start)

		metrics := make(map[string]float64)
		o.EvalParams(params, metrics)

		done, err := r.finishEpoch(epoch, objective, avg, metrics)
		if err != nil {
			return nil, fmt.Errorf("svrg: %w", err)
		}
		if done {
			return r.solution(x, objective), nil
		}
	}
}
