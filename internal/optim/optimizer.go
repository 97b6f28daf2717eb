// Package optim implements parallel stochastic solvers for regularized
// empirical-risk minimization.
//
// This package provides:
//   - Solver interface: epoch-based optimization of an oracle.Oracle
//   - SGD: mini-batch stochastic gradient descent
//   - SVRG: stochastic variance-reduced gradient
//
// Both solvers run each epoch as a parallel update phase followed by a
// parallel evaluation phase over the full dataset. Updates are applied to a
// shared parameter vector under one of three ParallelMode policies.
//
// Example usage:
//
//	o, _ := oracle.NewLogisticRegression[*vector.Dense](x, y, d, oracle.LogisticConfig{L2: 1e-4})
//
//	opts := optim.DefaultOptions()
//	opts.StepSize = 0.1
//	opts.MaxEpochs = 20
//
//	sol, err := optim.NewSGD(opts).Solve(o)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(sol.Objective)
package optim

import (
	"fmt"
	"math"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/born-ml/svrg/internal/oracle"
	"github.com/born-ml/svrg/internal/vector"
)

// Solver is the common interface of the optimization algorithms.
type Solver[P vector.Params] interface {
	// Solve runs epochs until a stopping criterion fires and returns the
	// trained parameters with a per-epoch trace.
	Solve(o oracle.Oracle[P]) (*Solution, error)
}

// ParallelMode selects how concurrent updates of the shared parameter vector
// are synchronized.
type ParallelMode int

const (
	// FreeForAll applies updates without synchronization. Concurrent
	// updates of the same component may be lost.
	FreeForAll ParallelMode = iota
	// LockFree applies every component update with an atomic add.
	LockFree
	// Locked serializes whole update vectors with a spin lock.
	Locked
)

var parallelModeNames = [...]string{
	FreeForAll: "FREE_FOR_ALL",
	LockFree:   "LOCK_FREE",
	Locked:     "LOCKED",
}

// String returns the canonical name, e.g. "LOCK_FREE".
func (m ParallelMode) String() string {
	if m < 0 || int(m) >= len(parallelModeNames) {
		return fmt.Sprintf("ParallelMode(%d)", int(m))
	}
	return parallelModeNames[m]
}

// ParseParallelMode parses a mode name. Matching ignores case and treats
// '-' as '_'.
func ParseParallelMode(s string) (ParallelMode, error) {
	name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for m, n := range parallelModeNames {
		if n == name {
			return ParallelMode(m), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown parallel mode %q", ErrInvalidConfiguration, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m ParallelMode) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(parallelModeNames) {
		return nil, fmt.Errorf("%w: invalid parallel mode %d", ErrInvalidConfiguration, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ParallelMode) UnmarshalText(text []byte) error {
	parsed, err := ParseParallelMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Observer receives every trace record as soon as its epoch completes.
type Observer interface {
	OnEpoch(solver string, rec Record)
}

// Options configures SGD and SVRG.
type Options struct {
	// TargetObjective stops the run once the epoch objective is at or
	// below it. Use math.Inf(-1) to disable.
	TargetObjective float64

	// MaxEpochs bounds the number of epochs. Zero or negative means
	// unlimited.
	MaxEpochs int

	// UpdatesPerEpochFactor sets the number of stochastic updates per
	// epoch: n*f for f > 0, round(n/-f) for f < 0.
	UpdatesPerEpochFactor int

	// StepSize is the base step size. It must be positive; DefaultOptions
	// uses 1e-4.
	StepSize float64

	// StepDecayAlpha enables the schedule
	// StepSize * sqrt(alpha/(t+alpha)) when positive.
	StepDecayAlpha float64

	// ParallelMode selects the update synchronization policy.
	ParallelMode ParallelMode

	// Workers is the number of parallel workers (default: GOMAXPROCS).
	Workers int

	// Logger receives one entry per epoch (default: no-op).
	Logger *zap.Logger

	// Observers are notified after every epoch.
	Observers []Observer
}

// DefaultOptions returns the default solver configuration.
func DefaultOptions() Options {
	return Options{
		TargetObjective:       math.Inf(-1),
		MaxEpochs:             1000,
		UpdatesPerEpochFactor: 1,
		StepSize:              1e-4,
		StepDecayAlpha:        -1,
		ParallelMode:          FreeForAll,
		Workers:               runtime.GOMAXPROCS(0),
	}
}

// withDefaults fills the fields whose zero value means "pick for me".
func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Validate reports configuration errors.
func (o Options) Validate() error {
	if math.IsNaN(o.TargetObjective) {
		return fmt.Errorf("%w: target objective is NaN", ErrInvalidConfiguration)
	}
	if !(o.StepSize > 0) || math.IsInf(o.StepSize, 0) {
		return fmt.Errorf("%w: step size must be positive and finite, got %v", ErrInvalidConfiguration, o.StepSize)
	}
	if math.IsNaN(o.StepDecayAlpha) {
		return fmt.Errorf("%w: step decay alpha is NaN", ErrInvalidConfiguration)
	}
	if _, err := o.ParallelMode.MarshalText(); err != nil {
		return err
	}
	return nil
}

// UpdatesPerEpoch returns the number of stochastic updates in one epoch over
// n instances: n*factor for positive factors, round(n/-factor) for negative
// ones.
func UpdatesPerEpoch(n, factor int) int {
	if factor >= 0 {
		return n * factor
	}
	return int(math.Round(float64(n) / float64(-factor)))
}

// StepSize returns the step size for iteration t: base*sqrt(alpha/(t+alpha))
// when alpha > 0, base otherwise.
func StepSize(base, alpha, t float64) float64 {
	if alpha <= 0 {
		return base
	}
	return base * math.Sqrt(alpha/(t+alpha))
}

// Record is the diagnostic trace entry of one epoch.
type Record struct {
	Epoch      int                // Zero-based epoch index
	ElapsedMs  int64              // Cumulative training time
	Objective  float64            // Average objective over all instances
	GradSqNorm float64            // Squared norm of the average gradient
	StepSize   float64            // Step size at the end of the epoch
	Metrics    map[string]float64 // Oracle-supplied metrics (e.g. test_error)
}

// Solution is the result of a solver run.
type Solution struct {
	Params    *vector.Dense
	Objective float64
	ElapsedMs int64
	Trace     []Record
}
