// Package config holds the YAML training configuration of the svrg tool.
//
// A file is decoded on top of Default, so it only needs the keys it changes:
//
//	solver:
//	  algorithm: svrg
//	  step: 0.5
//	  parallel_mode: lock-free
//	  max_epochs: 20
//	model:
//	  l2: 1.0e-4
//	data:
//	  train: data/rcv1.bin
//	  split_train_test: true
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/svrg/internal/dataset"
	"github.com/born-ml/svrg/internal/logging"
	"github.com/born-ml/svrg/internal/optim"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete training configuration.
type Config struct {
	Solver  SolverConfig   `yaml:"solver"`
	Model   ModelConfig    `yaml:"model"`
	Data    DataConfig     `yaml:"data"`
	Logging logging.Config `yaml:"logging"`
	Output  OutputConfig   `yaml:"output"`
}

// SolverConfig selects and tunes the optimization algorithm.
type SolverConfig struct {
	Algorithm       string             `yaml:"algorithm"` // sgd or svrg
	Step            float64            `yaml:"step"`
	Alpha           float64            `yaml:"alpha"` // Step decay, disabled when <= 0
	ParallelMode    optim.ParallelMode `yaml:"parallel_mode"`
	MaxEpochs       int                `yaml:"max_epochs"`        // <= 0 for unlimited
	UpdatesPerEpoch int                `yaml:"updates_per_epoch"` // Factor of n, or n/-f when negative
	TargetObjective float64            `yaml:"target_objective"`
	Threads         int                `yaml:"threads"` // 0 uses every core
}

// ModelConfig configures the logistic regression oracle.
type ModelConfig struct {
	L2    float64 `yaml:"l2"`
	Batch int     `yaml:"batch"` // Mini-batch size, 0 disables batching
}

// DataConfig locates the training data.
type DataConfig struct {
	Train          string         `yaml:"train"`
	Test           string         `yaml:"test"`
	Format         dataset.Format `yaml:"format"`
	Normalize      bool           `yaml:"normalize"`
	SplitTrainTest bool           `yaml:"split_train_test"`
	TestPercent    float64        `yaml:"test_percent"`
	SplitSeed      int64          `yaml:"split_seed"`
	StrictFeatures bool           `yaml:"strict_features"` // Fail when train and test feature counts differ
}

// OutputConfig controls what a run produces besides logs.
type OutputConfig struct {
	Format      string `yaml:"format"`       // Trace rendering: tsv or table
	Plot        string `yaml:"plot"`         // PNG path for the convergence plot
	Params      string `yaml:"params"`       // Text file for the trained parameters
	MetricsAddr string `yaml:"metrics_addr"` // Serve Prometheus metrics on this address
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		Solver: SolverConfig{
			Algorithm:       "svrg",
			Step:            1e-4,
			Alpha:           -1,
			ParallelMode:    optim.FreeForAll,
			MaxEpochs:       1000,
			UpdatesPerEpoch: 1,
			TargetObjective: math.Inf(-1),
		},
		Data: DataConfig{
			Format:      dataset.FormatAuto,
			Normalize:   true,
			TestPercent: 20,
		},
		Logging: logging.DefaultConfig(),
		Output: OutputConfig{
			Format: "tsv",
		},
	}
}

// Load reads and validates the YAML file at path.
func Load(path string) (Config, error) {
	//nolint:gosec // G304: configuration path comes from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Marshal encodes cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Validate reports inconsistent settings. It does not require a training
// file so partial configurations can be checked before flags are applied.
func (c Config) Validate() error {
	switch strings.ToLower(c.Solver.Algorithm) {
	case "sgd", "svrg":
	default:
		return fmt.Errorf("%w: unknown solver %q", ErrInvalid, c.Solver.Algorithm)
	}
	if err := c.SolverOptions().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Solver.Threads < 0 {
		return fmt.Errorf("%w: threads must not be negative", ErrInvalid)
	}
	if c.Model.L2 < 0 {
		return fmt.Errorf("%w: l2 must not be negative", ErrInvalid)
	}
	if c.Model.Batch < 0 {
		return fmt.Errorf("%w: batch must not be negative", ErrInvalid)
	}
	if c.Data.Test != "" && c.Data.SplitTrainTest {
		return fmt.Errorf("%w: test file and split_train_test are mutually exclusive", ErrInvalid)
	}
	if c.Data.TestPercent < 0 || c.Data.TestPercent > 100 {
		return fmt.Errorf("%w: test_percent must be in [0, 100]", ErrInvalid)
	}
	switch c.Output.Format {
	case "tsv", "table":
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrInvalid, c.Output.Format)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// SolverOptions converts the solver section to optim.Options. Logger and
// observers are left for the caller.
func (c Config) SolverOptions() optim.Options {
	opts := optim.DefaultOptions()
	opts.StepSize = c.Solver.Step
	opts.StepDecayAlpha = c.Solver.Alpha
	opts.ParallelMode = c.Solver.ParallelMode
	opts.MaxEpochs = c.Solver.MaxEpochs
	opts.UpdatesPerEpochFactor = c.Solver.UpdatesPerEpoch
	opts.TargetObjective = c.Solver.TargetObjective
	if c.Solver.Threads > 0 {
		opts.Workers = c.Solver.Threads
	}
	return opts
}
