package optim

import (
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/born-ml/svrg/internal/oracle"
	"github.com/born-ml/svrg/internal/parallel"
	"github.com/born-ml/svrg/internal/vector"
)

// seedPrimes seeds the per-worker generators so runs with the same worker
// count sample the same instances.
var seedPrimes = [...]int64{
	2389, 4561, 7177, 8803, 10009, 10753, 14057, 15391, 18127,
	20341, 23887, 26437, 28703, 30971, 38177, 44201, 52009,
	58601, 62903, 78079, 80167, 83407, 86179, 87221, 90473,
	92831, 95747, 99989, 101419, 101837, 104243, 104729,
}

func workerSeed(wid int) int64 {
	p := seedPrimes[wid%len(seedPrimes)]
	return p + int64(wid/len(seedPrimes))*104729
}

// worker is the private state of one pool worker.
type worker struct {
	rng        *rand.Rand
	grad       *vector.Sparse // gradient at the current point
	anchorGrad *vector.Sparse // gradient at the epoch anchor (SVRG)
	objective  float64        // partial objective sum during evaluation
}

// run holds the state shared by the epochs of one Solve call.
type run struct {
	name    string
	opts    Options
	n       int
	dim     int
	updates int

	pool    *parallel.Pool
	workers []worker

	iteration atomic.Uint64
	paramLock parallel.SpinLock

	elapsed time.Duration
	trace   []Record
}

func newRun(name string, opts Options, n, dim int) (*run, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: oracle has no instances", ErrInvalidConfiguration)
	}

	pool := parallel.NewPool(parallel.Config{NumWorkers: opts.Workers})
	workers := make([]worker, pool.Workers())
	for wid := range workers {
		workers[wid] = worker{
			rng:        rand.New(rand.NewSource(workerSeed(wid))),
			grad:       vector.NewSparse(0),
			anchorGrad: vector.NewSparse(0),
		}
	}

	r := &run{
		name:    name,
		opts:    opts,
		n:       n,
		dim:     dim,
		updates: UpdatesPerEpoch(n, opts.UpdatesPerEpochFactor),
		pool:    pool,
		workers: workers,
	}
	r.iteration.Store(1)

	opts.Logger.Debug("solver started",
		zap.String("solver", name),
		zap.Int("instances", n),
		zap.Int("dimension", dim),
		zap.Int("updates_per_epoch", r.updates),
		zap.Int("workers", pool.Workers()),
		zap.Stringer("parallel_mode", opts.ParallelMode),
		zap.Float64("step", opts.StepSize),
		zap.Float64("alpha", opts.StepDecayAlpha),
	)
	return r, nil
}

// sample draws an instance index uniformly at random.
func (r *run) sample(w *worker) int {
	return w.rng.Intn(r.n)
}

// step returns the step size of the next update. The shared iteration
// counter only advances when decay is enabled.
func (r *run) step() float64 {
	if r.opts.StepDecayAlpha <= 0 {
		return r.opts.StepSize
	}
	t := float64(r.iteration.Add(1) - 1)
	return StepSize(r.opts.StepSize, r.opts.StepDecayAlpha, t)
}

// lastStep returns the nominal step size after the given number of epochs.
func (r *run) lastStep(epochs int) float64 {
	return StepSize(r.opts.StepSize, r.opts.StepDecayAlpha, float64(epochs)*float64(r.updates))
}

func (r *run) atomicUpdates() bool { return r.opts.ParallelMode == LockFree }

func (r *run) lock() {
	if r.opts.ParallelMode == Locked {
		r.paramLock.Lock()
	}
}

func (r *run) unlock() {
	if r.opts.ParallelMode == Locked {
		r.paramLock.Unlock()
	}
}

// evaluate recomputes the average objective and average gradient at params
// over all instances. avg is overwritten.
func evaluate[P vector.Params](r *run, o oracle.Oracle[P], params P, avg *vector.Dense) (float64, error) {
	avg.Fill(0)
	for wid := range r.workers {
		r.workers[wid].objective = 0
	}

	scale := 1 / float64(r.n)
	err := r.pool.Dynamic(r.n, func(wid, i int) error {
		w := &r.workers[wid]
		obj, err := o.ObjectiveAndGradient(wid, params, i, w.grad)
		if err != nil {
			return err
		}
		vector.AccumulateSparse(avg, w.grad, scale, true)
		w.objective += obj
		return nil
	})
	if err != nil {
		return 0, err
	}

	var sum float64
	for wid := range r.workers {
		sum += r.workers[wid].objective
	}
	return sum / float64(r.n), nil
}

// finishEpoch appends the epoch's record, notifies observers and reports
// whether the run is done.
func (r *run) finishEpoch(epoch int, objective float64, avg *vector.Dense, metrics map[string]float64) (bool, error) {
	if math.IsNaN(objective) || math.IsInf(objective, 0) {
		return false, fmt.Errorf("%w: %v after epoch %d", ErrNumericalDivergence, objective, epoch)
	}

	rec := Record{
		Epoch:      epoch,
		ElapsedMs:  r.elapsed.Milliseconds(),
		Objective:  objective,
		GradSqNorm: avg.SquaredNorm(),
		StepSize:   r.lastStep(epoch + 1),
		Metrics:    metrics,
	}
	r.trace = append(r.trace, rec)

	fields := []zap.Field{
		zap.String("solver", r.name),
		zap.Int("epoch", epoch+1),
		zap.Int64("elapsed_ms", rec.ElapsedMs),
		zap.Float64("objective", objective),
		zap.Float64("last_step", rec.StepSize),
		zap.Float64("grad_sq_norm", rec.GradSqNorm),
	}
	for k, v := range metrics {
		fields = append(fields, zap.Float64(k, v))
	}
	r.opts.Logger.Info("epoch", fields...)

	for _, obs := range r.opts.Observers {
		obs.OnEpoch(r.name, rec)
	}

	epochs := epoch + 1
	done := (r.opts.MaxEpochs > 0 && epochs >= r.opts.MaxEpochs) ||
		objective <= r.opts.TargetObjective
	return done, nil
}

func (r *run) solution(x *vector.Dense, objective float64) *Solution {
	return &Solution{
		Params:    x,
		Objective: objective,
		ElapsedMs: r.elapsed.Milliseconds(),
		Trace:     r.trace,
	}
}
