package train

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/born-ml/svrg/internal/config"
	"github.com/born-ml/svrg/internal/dataset"
	"github.com/born-ml/svrg/internal/oracle"
	"github.com/born-ml/svrg/internal/optim"
	"github.com/born-ml/svrg/internal/vector"
)

// writeSVM writes n examples over dim features labeled by the sign of the
// first feature.
func writeSVM(t *testing.T, dir, name string, n, dim int, seed int64) string {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	var sb strings.Builder
	for i := 0; i < n; i++ {
		first := rng.Float64()*2 - 1
		label := -1
		if first > 0 {
			label = 1
		}
		fmt.Fprintf(&sb, "%d 0:%g", label, first)
		for j := 1; j < dim; j++ {
			if rng.Intn(2) == 0 {
				fmt.Fprintf(&sb, " %d:%g", j, rng.Float64())
			}
		}
		sb.WriteByte('\n')
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o600))
	return path
}

func baseConfig(train string) config.Config {
	cfg := config.Default()
	cfg.Data.Train = train
	cfg.Solver.Step = 0.5
	cfg.Solver.MaxEpochs = 5
	cfg.Solver.Threads = 1
	cfg.Model.L2 = 1e-3
	return cfg
}

func TestRun_Solvers(t *testing.T) {
	dir := t.TempDir()
	train := writeSVM(t, dir, "train.svm", 200, 6, 1)

	for _, algo := range []string{"sgd", "svrg"} {
		t.Run(algo, func(t *testing.T) {
			cfg := baseConfig(train)
			cfg.Solver.Algorithm = algo

			res, err := Run(context.Background(), cfg, zaptest.NewLogger(t))
			require.NoError(t, err)
			assert.Equal(t, algo, res.Solver)
			assert.Nil(t, res.Test)
			require.Len(t, res.Solution.Trace, 5)
			assert.Equal(t, 6, res.Solution.Params.Len())
			assert.Less(t, res.Solution.Objective, math.Ln2)
			assert.NotContains(t, res.Solution.Trace[0].Metrics, oracle.MetricTestError)
		})
	}
}

func TestRun_SplitAndBatch(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig(writeSVM(t, dir, "train.svm", 300, 4, 2))
	cfg.Data.SplitTrainTest = true
	cfg.Model.Batch = 4
	cfg.Solver.Threads = 2
	cfg.Solver.ParallelMode = optim.Locked

	if raceEnabled {
		cfg.Solver.Threads = 1
	}

	res, err := Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Test)
	assert.Equal(t, 300, res.Train.Len()+res.Test.Len())

	for _, rec := range res.Solution.Trace {
		e, ok := rec.Metrics[oracle.MetricTestError]
		require.True(t, ok)
		assert.GreaterOrEqual(t, e, 0.0)
		assert.LessOrEqual(t, e, 1.0)
	}
	last := res.Solution.Trace[len(res.Solution.Trace)-1]
	assert.Less(t, last.Metrics[oracle.MetricTestError], 0.35)
}

func TestRun_TestFile(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig(writeSVM(t, dir, "train.svm", 100, 4, 3))
	cfg.Data.Test = writeSVM(t, dir, "test.svm", 40, 4, 4)

	// Binary input goes through the same pipeline.
	ds, err := dataset.ReadFile(cfg.Data.Train, dataset.FormatAuto)
	require.NoError(t, err)
	bin := filepath.Join(dir, "train.bin")
	require.NoError(t, dataset.WriteFile(bin, dataset.FormatAuto, ds))
	cfg.Data.Train = bin

	res, err := Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Train.Len())
	assert.Equal(t, 40, res.Test.Len())
	assert.Contains(t, res.Solution.Trace[0].Metrics, oracle.MetricTestError)
}

func TestRun_Errors(t *testing.T) {
	cfg := config.Default()
	_, err := Run(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cfg.Data.Train = filepath.Join(t.TempDir(), "missing.svm")
	_, err = Run(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	cfg.Solver.Algorithm = "newton"
	_, err = Run(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewOracle(t *testing.T) {
	ds := &dataset.Dataset{}
	for i := 0; i < 5; i++ {
		x, err := vector.SparseFrom([]int{i % 3}, []float64{1})
		require.NoError(t, err)
		ds.Append(*x, float64(i%2))
	}

	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	o, err := NewOracle[*vector.Dense](ds, nil, config.ModelConfig{}, 1, logger)
	require.NoError(t, err)
	assert.Equal(t, 5, o.NumInstances())
	assert.Equal(t, 3, o.Dimension())
	assert.Zero(t, logs.Len())

	b, err := NewOracle[*vector.Dense](ds, nil, config.ModelConfig{Batch: 2}, 1, logger)
	require.NoError(t, err)
	assert.Equal(t, 3, b.NumInstances())

	entries := logs.FilterMessage("mini-batch oracle").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["batch_size"])
	assert.Equal(t, int64(3), entries[0].ContextMap()["batches"])

	// A held-out set wider than the training set is rejected up front.
	wide := &dataset.Dataset{}
	x, err := vector.SparseFrom([]int{4}, []float64{1})
	require.NoError(t, err)
	wide.Append(*x, 1)
	_, err = NewOracle[*vector.Dense](ds, wide, config.ModelConfig{}, 2, nil)
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestData_StrictFeatures(t *testing.T) {
	dir := t.TempDir()
	train := filepath.Join(dir, "train.svm")
	test := filepath.Join(dir, "test.svm")
	require.NoError(t, os.WriteFile(train, []byte("1 0:1 1:1\n-1 2:1\n"), 0o600))
	require.NoError(t, os.WriteFile(test, []byte("1 0:1 4:1\n"), 0o600))

	cfg := config.DataConfig{Train: train, Test: test}
	tr, te, err := Data(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, tr.NumFeatures)
	assert.Equal(t, 5, te.NumFeatures)

	cfg.StrictFeatures = true
	_, _, err = Data(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, dataset.ErrFeatureMismatch)
}
