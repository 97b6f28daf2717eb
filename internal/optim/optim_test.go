package optim

import (
	"errors"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/born-ml/svrg/internal/oracle"
	"github.com/born-ml/svrg/internal/vector"
)

func skipIfRace(t *testing.T) {
	t.Helper()
	if raceEnabled {
		t.Skip("concurrent parameter updates race by design")
	}
}

// twoExamples is x=[1] with labels 1 and 0.
func twoExamples(t *testing.T) ([]vector.Sparse, []float64) {
	t.Helper()
	x, err := vector.SparseFrom([]int{0}, []float64{1})
	require.NoError(t, err)
	return []vector.Sparse{*x, *x.Clone()}, []float64{1, 0}
}

// synthetic draws unit-norm examples over dim features labeled by a fixed
// hyperplane.
func synthetic(tb testing.TB, n, dim int) ([]vector.Sparse, []float64) {
	tb.Helper()
	rng := rand.New(rand.NewSource(42))
	truth := make([]float64, dim)
	for j := range truth {
		truth[j] = rng.NormFloat64()
	}

	examples := make([]vector.Sparse, n)
	labels := make([]float64, n)
	for i := range examples {
		s := vector.NewSparse(dim)
		var margin float64
		for j := 0; j < dim; j++ {
			if rng.Float64() < 0.3 {
				continue
			}
			v := rng.Float64()*2 - 1
			require.NoError(tb, s.Append(j, v))
			margin += v * truth[j]
		}
		if s.Len() == 0 {
			require.NoError(tb, s.Append(0, 1))
			margin = truth[0]
		}
		s.Scale(1 / math.Sqrt(s.SquaredNorm()))
		examples[i] = *s
		if margin > 0 {
			labels[i] = 1
		}
	}
	return examples, labels
}

func newSGDOracle(t *testing.T, examples []vector.Sparse, labels []float64, dim int, l2 float64) *oracle.Regularized[*vector.Dense] {
	t.Helper()
	o, err := oracle.NewLogisticRegression[*vector.Dense](examples, labels, dim, oracle.LogisticConfig{L2: l2})
	require.NoError(t, err)
	return o
}

func newSVRGOracle(t *testing.T, examples []vector.Sparse, labels []float64, dim int, l2 float64) *oracle.Regularized[SVRGParams] {
	t.Helper()
	o, err := oracle.NewLogisticRegression[SVRGParams](examples, labels, dim, oracle.LogisticConfig{L2: l2})
	require.NoError(t, err)
	return o
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Workers = 1
	opts.StepSize = 0.5
	opts.MaxEpochs = 10
	return opts
}

// fullGradSqNorm recomputes the squared norm of the average gradient.
func fullGradSqNorm(t *testing.T, o oracle.Oracle[*vector.Dense], x *vector.Dense) float64 {
	t.Helper()
	avg := vector.NewDense(o.Dimension())
	g := vector.NewSparse(0)
	for i := 0; i < o.NumInstances(); i++ {
		require.NoError(t, o.Gradient(0, x, i, g))
		vector.AccumulateSparse(avg, g, 1/float64(o.NumInstances()), false)
	}
	return avg.SquaredNorm()
}

func TestUpdatesPerEpoch(t *testing.T) {
	tests := []struct {
		n, factor, want int
	}{
		{100, 1, 100},
		{100, 3, 300},
		{100, 0, 0},
		{100, -4, 25},
		{10, -4, 3}, // 2.5 rounds away from zero
		{10, -3, 3}, // 3.33
		{10, -6, 2}, // 1.67
		{1, -10, 0}, // 0.1
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UpdatesPerEpoch(tt.n, tt.factor), "n=%d factor=%d", tt.n, tt.factor)
	}
}

func TestStepSize(t *testing.T) {
	assert.Equal(t, 0.1, StepSize(0.1, -1, 1000))
	assert.Equal(t, 0.1, StepSize(0.1, 0, 1000))
	assert.InDelta(t, 0.1, StepSize(0.1, 100, 0), 1e-15)
	assert.InDelta(t, 0.1*math.Sqrt(0.5), StepSize(0.1, 100, 100), 1e-15)
	assert.InDelta(t, 0.05, StepSize(0.1, 1, 3), 1e-15)
}

func TestParallelMode(t *testing.T) {
	for _, m := range []ParallelMode{FreeForAll, LockFree, Locked} {
		text, err := m.MarshalText()
		require.NoError(t, err)

		var back ParallelMode
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, m, back)
	}

	m, err := ParseParallelMode("lock-free")
	require.NoError(t, err)
	assert.Equal(t, LockFree, m)

	m, err = ParseParallelMode(" Locked ")
	require.NoError(t, err)
	assert.Equal(t, Locked, m)

	_, err = ParseParallelMode("hogwild")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	assert.Equal(t, "ParallelMode(7)", ParallelMode(7).String())
	_, err = ParallelMode(7).MarshalText()
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestOptions_Validate(t *testing.T) {
	opts := DefaultOptions()
	require.NoError(t, opts.Validate())

	bad := opts
	bad.StepSize = -1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfiguration)

	bad = opts
	bad.StepSize = math.Inf(1)
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfiguration)

	bad = opts
	bad.TargetObjective = math.NaN()
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfiguration)

	bad = opts
	bad.ParallelMode = ParallelMode(-1)
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfiguration)

	examples, labels := twoExamples(t)
	_, err := NewSGD(bad).Solve(newSGDOracle(t, examples, labels, 1, 0))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestOptions_ZeroStepRejected(t *testing.T) {
	// A zero step is an error, not a request for the default.
	opts := Options{MaxEpochs: 1, Workers: 1}
	assert.ErrorIs(t, opts.Validate(), ErrInvalidConfiguration)

	examples, labels := twoExamples(t)
	_, err := NewSGD(opts).Solve(newSGDOracle(t, examples, labels, 1, 0))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	_, err = NewSVRG(opts).Solve(newSVRGOracle(t, examples, labels, 1, 0))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	opts.StepSize = 0.1
	sol, err := NewSGD(opts).Solve(newSGDOracle(t, examples, labels, 1, 0))
	require.NoError(t, err)
	assert.Len(t, sol.Trace, 1)
}

func TestSGD_TwoExamples(t *testing.T) {
	examples, labels := twoExamples(t)
	o := newSGDOracle(t, examples, labels, 1, 0)

	opts := testOptions()
	opts.StepSize = 0.1
	opts.MaxEpochs = 1

	sol, err := NewSGD(opts).Solve(o)
	require.NoError(t, err)
	require.Len(t, sol.Trace, 1)

	w := sol.Params.At(0)
	want := 0.5 * (math.Log1p(math.Exp(w)) + math.Log1p(math.Exp(-w)))

	rec := sol.Trace[0]
	assert.Equal(t, 0, rec.Epoch)
	assert.False(t, math.IsNaN(rec.Objective) || math.IsInf(rec.Objective, 0))
	assert.GreaterOrEqual(t, rec.Objective, math.Ln2-1e-12)
	assert.InDelta(t, want, rec.Objective, 1e-12)
	assert.Equal(t, rec.Objective, sol.Objective)
	assert.InDelta(t, 0.1, rec.StepSize, 1e-15)
	assert.InDelta(t, fullGradSqNorm(t, o, sol.Params), rec.GradSqNorm, 1e-12)
}

func TestSGD_UnlimitedEpochsWithReachedTarget(t *testing.T) {
	examples, labels := twoExamples(t)

	opts := testOptions()
	opts.MaxEpochs = 0
	opts.TargetObjective = math.Inf(1)

	sol, err := NewSGD(opts).Solve(newSGDOracle(t, examples, labels, 1, 0))
	require.NoError(t, err)
	assert.Len(t, sol.Trace, 1)
}

func TestSGD_MaxEpochs(t *testing.T) {
	examples, labels := synthetic(t, 100, 5)
	o := newSGDOracle(t, examples, labels, 5, 1e-3)

	opts := testOptions()
	opts.MaxEpochs = 7

	sol, err := NewSGD(opts).Solve(o)
	require.NoError(t, err)
	require.Len(t, sol.Trace, 7)

	for i, rec := range sol.Trace {
		assert.Equal(t, i, rec.Epoch)
		if i > 0 {
			assert.GreaterOrEqual(t, rec.ElapsedMs, sol.Trace[i-1].ElapsedMs)
		}
	}
	assert.Equal(t, sol.Trace[6].ElapsedMs, sol.ElapsedMs)
	assert.InDelta(t, fullGradSqNorm(t, o, sol.Params), sol.Trace[6].GradSqNorm, 1e-12)
}

func TestSGD_TargetObjective(t *testing.T) {
	examples, labels := synthetic(t, 200, 10)
	o := newSGDOracle(t, examples, labels, 10, 1e-3)

	// Measure an objective that is reached after a few epochs.
	opts := testOptions()
	opts.MaxEpochs = 5
	probe, err := NewSGD(opts).Solve(o)
	require.NoError(t, err)
	target := probe.Trace[2].Objective

	opts.MaxEpochs = 100
	opts.TargetObjective = target
	sol, err := NewSGD(opts).Solve(o)
	require.NoError(t, err)

	require.LessOrEqual(t, len(sol.Trace), 3)
	last := sol.Trace[len(sol.Trace)-1]
	assert.LessOrEqual(t, last.Objective, target)
	for _, rec := range sol.Trace[:len(sol.Trace)-1] {
		assert.Greater(t, rec.Objective, target)
	}
}

func TestSGD_Deterministic(t *testing.T) {
	examples, labels := synthetic(t, 100, 5)
	o := newSGDOracle(t, examples, labels, 5, 1e-3)

	a, err := NewSGD(testOptions()).Solve(o)
	require.NoError(t, err)
	b, err := NewSGD(testOptions()).Solve(o)
	require.NoError(t, err)
	assert.Equal(t, a.Params.Data(), b.Params.Data())
}

func TestSGD_StepDecay(t *testing.T) {
	examples, labels := synthetic(t, 50, 5)
	opts := testOptions()
	opts.MaxEpochs = 2
	opts.StepDecayAlpha = 50

	sol, err := NewSGD(opts).Solve(newSGDOracle(t, examples, labels, 5, 0))
	require.NoError(t, err)
	assert.InDelta(t, StepSize(0.5, 50, 50), sol.Trace[0].StepSize, 1e-15)
	assert.InDelta(t, StepSize(0.5, 50, 100), sol.Trace[1].StepSize, 1e-15)
}

func TestSGD_Converges(t *testing.T) {
	examples, labels := synthetic(t, 200, 10)
	opts := testOptions()
	opts.MaxEpochs = 20

	sol, err := NewSGD(opts).Solve(newSGDOracle(t, examples, labels, 10, 1e-3))
	require.NoError(t, err)
	assert.Less(t, sol.Objective, math.Ln2-0.05)
}

func TestSVRG_FirstEpochMatchesSGD(t *testing.T) {
	examples, labels := synthetic(t, 100, 5)
	opts := testOptions()
	opts.MaxEpochs = 1

	sgd, err := NewSGD(opts).Solve(newSGDOracle(t, examples, labels, 5, 1e-3))
	require.NoError(t, err)
	svrg, err := NewSVRG(opts).Solve(newSVRGOracle(t, examples, labels, 5, 1e-3))
	require.NoError(t, err)

	assert.InDeltaSlice(t, sgd.Params.Data(), svrg.Params.Data(), 1e-12)
	assert.InDelta(t, sgd.Objective, svrg.Objective, 1e-12)
	assert.InDelta(t, sgd.Trace[0].GradSqNorm, svrg.Trace[0].GradSqNorm, 1e-12)
}

func TestSVRG_Converges(t *testing.T) {
	examples, labels := synthetic(t, 200, 10)
	opts := testOptions()
	opts.MaxEpochs = 30

	sol, err := NewSVRG(opts).Solve(newSVRGOracle(t, examples, labels, 10, 1e-3))
	require.NoError(t, err)
	require.Len(t, sol.Trace, 30)

	first, last := sol.Trace[0], sol.Trace[29]
	assert.Less(t, last.Objective, first.Objective)
	assert.Less(t, last.GradSqNorm, first.GradSqNorm)
}

func TestSVRG_GradSqNorm(t *testing.T) {
	examples, labels := synthetic(t, 100, 5)
	opts := testOptions()
	opts.MaxEpochs = 3

	sol, err := NewSVRG(opts).Solve(newSVRGOracle(t, examples, labels, 5, 1e-3))
	require.NoError(t, err)

	// Recompute with the plain oracle at the returned parameters.
	o := newSGDOracle(t, examples, labels, 5, 1e-3)
	assert.InDelta(t, fullGradSqNorm(t, o, sol.Params), sol.Trace[2].GradSqNorm, 1e-12)
}

func TestSVRGParams(t *testing.T) {
	base := vector.NewDenseFrom([]float64{1, 2})
	avg := vector.NewDenseFrom([]float64{10, 20})

	p := SVRGParams{Base: base, Average: avg, Multiplier: -0.5}
	assert.Equal(t, 2, p.Len())
	assert.InDelta(t, -4, p.At(0), 1e-15)
	assert.InDelta(t, -8, p.At(1), 1e-15)

	p.Multiplier = 0
	assert.Equal(t, 1.0, p.At(0))
}

// stubOracle returns a fixed objective and a unit gradient on index 0, or
// on alternating indices when alternate is set.
type stubOracle[P vector.Params] struct {
	n, dim    int
	objective float64
	alternate bool
	calls     atomic.Int64
}

func (s *stubOracle[P]) Gradient(_ int, _ P, _ int, out *vector.Sparse) error {
	out.Reset()
	idx := 0
	if s.alternate {
		idx = int(s.calls.Add(1) % 2)
	}
	return out.Append(idx, 0.01)
}

func (s *stubOracle[P]) Objective(int, P, int) float64 { return s.objective }

func (s *stubOracle[P]) ObjectiveAndGradient(wid int, params P, instance int, out *vector.Sparse) (float64, error) {
	return s.objective, s.Gradient(wid, params, instance, out)
}

func (s *stubOracle[P]) NumInstances() int { return s.n }

func (s *stubOracle[P]) Dimension() int { return s.dim }

func (s *stubOracle[P]) EvalParams(P, map[string]float64) {}

func (s *stubOracle[P]) Instance(int) (*vector.Sparse, error) {
	return nil, oracle.ErrUnsupportedOperation
}

func TestSolvers_NumericalDivergence(t *testing.T) {
	for _, obj := range []float64{math.NaN(), math.Inf(1)} {
		_, err := NewSGD(testOptions()).Solve(&stubOracle[*vector.Dense]{n: 4, dim: 2, objective: obj})
		assert.ErrorIs(t, err, ErrNumericalDivergence)

		_, err = NewSVRG(testOptions()).Solve(&stubOracle[SVRGParams]{n: 4, dim: 2, objective: obj})
		assert.ErrorIs(t, err, ErrNumericalDivergence)
	}
}

func TestSVRG_IncompatibleGradients(t *testing.T) {
	o := &stubOracle[SVRGParams]{n: 4, dim: 2, objective: 1, alternate: true}

	_, err := NewSVRG(testOptions()).Solve(o)
	require.Error(t, err)
	assert.ErrorIs(t, err, vector.ErrIncompatibleVectors)
}

func TestSolvers_NoInstances(t *testing.T) {
	_, err := NewSGD(testOptions()).Solve(&stubOracle[*vector.Dense]{dim: 2, objective: 1})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

type gradientError struct{ stubOracle[*vector.Dense] }

var errBoom = errors.New("boom")

func (g *gradientError) Gradient(int, *vector.Dense, int, *vector.Sparse) error { return errBoom }

func TestSGD_GradientError(t *testing.T) {
	_, err := NewSGD(testOptions()).Solve(&gradientError{stubOracle[*vector.Dense]{n: 4, dim: 2, objective: 1}})
	assert.ErrorIs(t, err, errBoom)
}

type recordingObserver struct {
	solvers []string
	records []Record
}

func (r *recordingObserver) OnEpoch(solver string, rec Record) {
	r.solvers = append(r.solvers, solver)
	r.records = append(r.records, rec)
}

func TestSolvers_ObserversAndLogging(t *testing.T) {
	examples, labels := synthetic(t, 50, 5)

	core, logs := observer.New(zapcore.InfoLevel)
	rec := &recordingObserver{}

	opts := testOptions()
	opts.MaxEpochs = 3
	opts.Logger = zap.New(core)
	opts.Observers = []Observer{rec}

	sol, err := NewSVRG(opts).Solve(newSVRGOracle(t, examples, labels, 5, 0))
	require.NoError(t, err)

	assert.Equal(t, []string{"svrg", "svrg", "svrg"}, rec.solvers)
	assert.Equal(t, sol.Trace, rec.records)

	entries := logs.FilterMessage("epoch").All()
	require.Len(t, entries, 3)
	fields := entries[2].ContextMap()
	assert.Equal(t, "svrg", fields["solver"])
	assert.Equal(t, int64(3), fields["epoch"])
	assert.Equal(t, sol.Objective, fields["objective"])
}

func TestSolvers_ParallelModes(t *testing.T) {
	skipIfRace(t)

	examples, labels := synthetic(t, 400, 10)
	for _, mode := range []ParallelMode{FreeForAll, LockFree, Locked} {
		t.Run(mode.String(), func(t *testing.T) {
			opts := testOptions()
			opts.Workers = 4
			opts.ParallelMode = mode
			opts.MaxEpochs = 10

			sgd, err := NewSGD(opts).Solve(newSGDOracle(t, examples, labels, 10, 1e-3))
			require.NoError(t, err)
			assert.Less(t, sgd.Objective, math.Ln2-0.05)

			svrg, err := NewSVRG(opts).Solve(newSVRGOracle(t, examples, labels, 10, 1e-3))
			require.NoError(t, err)
			assert.Less(t, svrg.Objective, math.Ln2-0.05)
		})
	}
}

func TestSolvers_EvaluationIsParallelSafe(t *testing.T) {
	examples, labels := synthetic(t, 300, 8)
	o := newSGDOracle(t, examples, labels, 8, 1e-3)

	// No updates: every epoch only evaluates, which must be race free.
	opts := testOptions()
	opts.Workers = 4
	opts.UpdatesPerEpochFactor = 0
	opts.MaxEpochs = 2

	sol, err := NewSGD(opts).Solve(o)
	require.NoError(t, err)
	assert.InDelta(t, math.Ln2, sol.Objective, 1e-12)
	assert.Equal(t, make([]float64, 8), sol.Params.Data())
}

func BenchmarkSGDEpoch(b *testing.B) {
	examples, labels := synthetic(b, 2000, 50)
	o, _ := oracle.NewLogisticRegression[*vector.Dense](examples, labels, 50, oracle.LogisticConfig{L2: 1e-4})

	opts := DefaultOptions()
	opts.MaxEpochs = 1
	opts.StepSize = 0.1
	solver := NewSGD(opts)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := solver.Solve(o); err != nil {
			b.Fatal(err)
		}
	}
}
