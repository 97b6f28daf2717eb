package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/born-ml/svrg/internal/config"
	"github.com/born-ml/svrg/internal/dataset"
	"github.com/born-ml/svrg/internal/metrics"
	"github.com/born-ml/svrg/internal/optim"
	"github.com/born-ml/svrg/internal/report"
	"github.com/born-ml/svrg/internal/train"
)

// trainFlags mirror the config file. Only flags set on the command line
// override file values.
type trainFlags struct {
	Config       string
	Solver       string
	Step         float64
	Alpha        float64
	ParallelMode string
	MaxEpochs    int
	Updates      int
	Objective    string
	L2           float64
	Normalize    bool
	TrainFile    string
	TestFile     string
	DataFormat   string
	Strict       bool
	Split        bool
	TestPercent  float64
	Batch        int
	Threads      int
	Format       string
	Plot         string
	Output       string
	MetricsAddr  string
}

var trainOpts trainFlags

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a logistic regression model",
	Long: `Train an L2-regularized logistic regression model with SGD or SVRG.

Settings come from --config (YAML) when given; flags set on the command line
override them. The trace is printed to stdout, logs go to stderr.

Examples:
  svrg train --train-file rcv1.bin --solver svrg --step 0.5 --pmode LOCK_FREE
  svrg train --config train.yaml --max-epochs 50 --format table --plot trace.png`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	bindTrainFlags(trainCmd, &trainOpts)
}

func bindTrainFlags(cmd *cobra.Command, fl *trainFlags) {
	f := cmd.Flags()
	f.StringVar(&fl.Config, "config", "", "YAML configuration file")
	f.StringVar(&fl.Solver, "solver", "svrg", "solver: sgd|svrg")
	f.Float64Var(&fl.Step, "step", 1e-4, "base step size")
	f.Float64Var(&fl.Alpha, "alpha", -1, "step decay: step*sqrt(alpha/(t+alpha)), disabled when <= 0")
	f.StringVar(&fl.ParallelMode, "pmode", "FREE_FOR_ALL", "parallel mode: FREE_FOR_ALL|LOCK_FREE|LOCKED")
	f.IntVar(&fl.MaxEpochs, "max-epochs", 1000, "maximum epochs, <= 0 for unlimited")
	f.IntVar(&fl.Updates, "nupd", 1, "updates per epoch: n*f, or n/-f when negative")
	f.StringVar(&fl.Objective, "obj", "-inf", "stop once the objective reaches this value")
	f.Float64Var(&fl.L2, "l2-reg", 0, "L2 regularization strength")
	f.BoolVar(&fl.Normalize, "normalize", true, "scale examples to unit L2 norm")
	f.StringVar(&fl.TrainFile, "train-file", "", "training data (SVM text or .bin)")
	f.StringVar(&fl.TestFile, "test-file", "", "held-out data for test_error")
	f.StringVar(&fl.DataFormat, "data-format", "auto", "input format: auto|svm|binary")
	f.BoolVar(&fl.Strict, "strict-features", false, "fail when train and test feature counts differ")
	f.BoolVar(&fl.Split, "split-train-test", false, "hold out part of the training data")
	f.Float64Var(&fl.TestPercent, "test-percent", 20, "held-out percentage with --split-train-test")
	f.IntVar(&fl.Batch, "batch", 0, "mini-batch size, 0 disables batching")
	f.IntVar(&fl.Threads, "threads", 0, "worker count, 0 uses every core")
	f.StringVar(&fl.Format, "format", "tsv", "trace format: tsv|table")
	f.StringVar(&fl.Plot, "plot", "", "write a convergence plot (PNG) to this path")
	f.StringVar(&fl.Output, "output", "", "write the trained parameters to this path")
	f.StringVar(&fl.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during training")
}

// resolveConfig merges the config file with explicitly set flags.
func resolveConfig(cmd *cobra.Command, fl trainFlags) (config.Config, error) {
	cfg := config.Default()
	if fl.Config != "" {
		var err error
		if cfg, err = config.Load(fl.Config); err != nil {
			return cfg, err
		}
	}

	set := cmd.Flags().Changed
	if set("solver") {
		cfg.Solver.Algorithm = fl.Solver
	}
	if set("step") {
		cfg.Solver.Step = fl.Step
	}
	if set("alpha") {
		cfg.Solver.Alpha = fl.Alpha
	}
	if set("pmode") {
		m, err := optim.ParseParallelMode(fl.ParallelMode)
		if err != nil {
			return cfg, err
		}
		cfg.Solver.ParallelMode = m
	}
	if set("max-epochs") {
		cfg.Solver.MaxEpochs = fl.MaxEpochs
	}
	if set("nupd") {
		cfg.Solver.UpdatesPerEpoch = fl.Updates
	}
	if set("obj") {
		obj, err := parseObjective(fl.Objective)
		if err != nil {
			return cfg, err
		}
		cfg.Solver.TargetObjective = obj
	}
	if set("threads") {
		cfg.Solver.Threads = fl.Threads
	}
	if set("l2-reg") {
		cfg.Model.L2 = fl.L2
	}
	if set("batch") {
		cfg.Model.Batch = fl.Batch
	}
	if set("normalize") {
		cfg.Data.Normalize = fl.Normalize
	}
	if set("train-file") {
		cfg.Data.Train = fl.TrainFile
	}
	if set("test-file") {
		cfg.Data.Test = fl.TestFile
	}
	if set("data-format") {
		format, err := dataset.ParseFormat(fl.DataFormat)
		if err != nil {
			return cfg, err
		}
		cfg.Data.Format = format
	}
	if set("strict-features") {
		cfg.Data.StrictFeatures = fl.Strict
	}
	if set("split-train-test") {
		cfg.Data.SplitTrainTest = fl.Split
	}
	if set("test-percent") {
		cfg.Data.TestPercent = fl.TestPercent
	}
	if set("format") {
		cfg.Output.Format = fl.Format
	}
	if set("plot") {
		cfg.Output.Plot = fl.Plot
	}
	if set("output") {
		cfg.Output.Params = fl.Output
	}
	if set("metrics-addr") {
		cfg.Output.MetricsAddr = fl.MetricsAddr
	}

	if cfg.Data.Train == "" {
		return cfg, fmt.Errorf("%w: --train-file is required", config.ErrInvalid)
	}
	return cfg, cfg.Validate()
}

// parseObjective accepts a float or "-inf".
func parseObjective(s string) (float64, error) {
	if strings.EqualFold(strings.TrimSpace(s), "-inf") {
		return math.Inf(-1), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad target objective %q", config.ErrInvalid, s)
	}
	return v, nil
}

func runTrain(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd, trainOpts)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd, cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var observers []optim.Observer
	if cfg.Output.MetricsAddr != "" {
		obs, shutdown, err := startMetrics(ctx, cfg.Output.MetricsAddr, logger)
		if err != nil {
			return err
		}
		defer shutdown()
		observers = append(observers, obs)
	}

	out := cmd.OutOrStdout()
	printOptions(out, cfg)

	res, err := train.Run(ctx, cfg, logger, observers...)
	if err != nil {
		return err
	}

	if err := printResult(out, cfg.Output.Format, res); err != nil {
		return err
	}
	if cfg.Output.Plot != "" {
		title := fmt.Sprintf("%s, step %g, %s", res.Solver, cfg.Solver.Step, cfg.Solver.ParallelMode)
		if err := report.SavePlot(cfg.Output.Plot, title, res.Solution.Trace); err != nil {
			return fmt.Errorf("failed to write plot: %w", err)
		}
		logger.Info("plot written", zap.String("path", cfg.Output.Plot))
	}
	if cfg.Output.Params != "" {
		if err := report.SaveParams(cfg.Output.Params, res.Solution.Params); err != nil {
			return err
		}
		logger.Info("parameters written", zap.String("path", cfg.Output.Params))
	}
	return nil
}

// startMetrics serves a registry with the solver observer until the returned
// shutdown function is called.
func startMetrics(ctx context.Context, addr string, logger *zap.Logger) (optim.Observer, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	obs, err := metrics.NewObserver(reg)
	if err != nil {
		return nil, nil, err
	}
	srv, err := metrics.Listen(addr, reg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics endpoint: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("metrics endpoint stopped", zap.Error(err))
		}
	}()
	return obs, func() { cancel(); <-done }, nil
}

func printOptions(w io.Writer, cfg config.Config) {
	opts := cfg.SolverOptions()
	fmt.Fprintf(w, "Using %s Algorithm\n", cfg.Solver.Algorithm)
	fmt.Fprintf(w, "Step: %g\n", opts.StepSize)
	fmt.Fprintf(w, "Alpha: %g\n", opts.StepDecayAlpha)
	fmt.Fprintf(w, "Parallel Mode: %s\n", opts.ParallelMode)
	fmt.Fprintf(w, "Max Epochs: %d\n", opts.MaxEpochs)
	fmt.Fprintf(w, "Updates Per Epoch Factor: %d\n", opts.UpdatesPerEpochFactor)
	fmt.Fprintf(w, "Target Objective: %g\n", opts.TargetObjective)
	fmt.Fprintf(w, "L2 Reg: %g\n", cfg.Model.L2)
	fmt.Fprintf(w, "Threads: %d\n", opts.Workers)
}

func printResult(w io.Writer, format string, res *train.Result) error {
	fmt.Fprintf(w, "Time: %d\n", res.Solution.ElapsedMs)
	fmt.Fprintf(w, "Objective: %s\n", strconv.FormatFloat(res.Solution.Objective, 'g', 17, 64))
	fmt.Fprintln(w, "Trace:")

	if format == "table" {
		table, err := report.Table(res.Solution.Trace)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, table)
		return err
	}
	return report.WriteTSV(w, res.Solution.Trace)
}
