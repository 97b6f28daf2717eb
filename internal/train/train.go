// Package train wires datasets, oracles and solvers into a training run.
package train

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/born-ml/svrg/internal/config"
	"github.com/born-ml/svrg/internal/dataset"
	"github.com/born-ml/svrg/internal/optim"
	"github.com/born-ml/svrg/internal/oracle"
	"github.com/born-ml/svrg/internal/parallel"
	"github.com/born-ml/svrg/internal/vector"
)

// Result is the outcome of Run.
type Result struct {
	Solver   string
	Options  optim.Options
	Train    *dataset.Dataset
	Test     *dataset.Dataset // nil without a held-out set
	Solution *optim.Solution
}

// Data loads the training set and the optional held-out set described by
// cfg.
func Data(ctx context.Context, cfg config.DataConfig, logger *zap.Logger) (train, test *dataset.Dataset, err error) {
	if cfg.Train == "" {
		return nil, nil, fmt.Errorf("%w: no training file", config.ErrInvalid)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := dataset.LoadOptions{
		Format:         cfg.Format,
		Normalize:      cfg.Normalize,
		Logger:         logger,
		StrictFeatures: cfg.StrictFeatures,
	}

	if cfg.Test != "" {
		return dataset.LoadPair(ctx, cfg.Train, cfg.Test, opts)
	}

	train, err = dataset.Load(cfg.Train, opts)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.SplitTrainTest {
		return train, nil, nil
	}

	train, test, err = dataset.Split(train, cfg.TestPercent, cfg.SplitSeed)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("split train/test",
		zap.Int("train", train.Len()),
		zap.Int("test", test.Len()),
		zap.Float64("test_percent", cfg.TestPercent),
	)
	return train, test, nil
}

// NewOracle builds the logistic regression oracle over train, reporting
// held-out error on test when given. A positive batch size wraps it in a
// mini-batch oracle with scratch space for workers solver workers.
func NewOracle[P vector.Params](train, test *dataset.Dataset, model config.ModelConfig, workers int, logger *zap.Logger) (oracle.Oracle[P], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool := parallel.NewPool(parallel.Config{NumWorkers: workers})
	lc := oracle.LogisticConfig{L2: model.L2, Pool: pool}
	if test != nil {
		lc.TestExamples = test.Examples
		lc.TestLabels = test.Labels
	}

	o, err := oracle.NewLogisticRegression[P](train.Examples, train.Labels, train.NumFeatures, lc)
	if err != nil {
		return nil, err
	}
	if model.Batch <= 0 {
		return o, nil
	}
	b, err := oracle.NewBatch[P](o, model.Batch, pool.Workers())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", optim.ErrInvalidConfiguration, err)
	}
	logger.Info("mini-batch oracle",
		zap.Int("batch_size", b.BatchSize()),
		zap.Int("batches", b.NumInstances()),
		zap.Int("instances", train.Len()),
	)
	return b, nil
}

// Run loads the data and trains the configured solver.
func Run(ctx context.Context, cfg config.Config, logger *zap.Logger, observers ...optim.Observer) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	trainSet, testSet, err := Data(ctx, cfg.Data, logger)
	if err != nil {
		return nil, err
	}

	opts := cfg.SolverOptions()
	opts.Logger = logger
	opts.Observers = observers

	name := strings.ToLower(cfg.Solver.Algorithm)
	res := &Result{Solver: name, Options: opts, Train: trainSet, Test: testSet}

	switch name {
	case "sgd":
		o, err := NewOracle[*vector.Dense](trainSet, testSet, cfg.Model, opts.Workers, logger)
		if err != nil {
			return nil, err
		}
		res.Solution, err = optim.NewSGD(opts).Solve(o)
		if err != nil {
			return nil, err
		}
	case "svrg":
		o, err := NewOracle[optim.SVRGParams](trainSet, testSet, cfg.Model, opts.Workers, logger)
		if err != nil {
			return nil, err
		}
		res.Solution, err = optim.NewSVRG(opts).Solve(o)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown solver %q", config.ErrInvalid, cfg.Solver.Algorithm)
	}

	logger.Info("training finished",
		zap.String("solver", name),
		zap.Int("epochs", len(res.Solution.Trace)),
		zap.Int64("elapsed_ms", res.Solution.ElapsedMs),
		zap.Float64("objective", res.Solution.Objective),
	)
	return res, nil
}
