package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/svrg/internal/config"
	"github.com/born-ml/svrg/internal/dataset"
	"github.com/born-ml/svrg/internal/optim"
)

func parseTrainFlags(t *testing.T, args ...string) (*cobra.Command, trainFlags) {
	t.Helper()
	cmd := &cobra.Command{Use: "train"}
	var fl trainFlags
	bindTrainFlags(cmd, &fl)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, fl
}

func TestResolveConfig_Flags(t *testing.T) {
	cmd, fl := parseTrainFlags(t,
		"--train-file", "train.bin",
		"--solver", "sgd",
		"--step", "0.25",
		"--pmode", "lock-free",
		"--obj", "0.3",
		"--nupd", "-2",
		"--batch", "16",
		"--normalize=false",
		"--strict-features",
	)
	cfg, err := resolveConfig(cmd, fl)
	require.NoError(t, err)

	assert.Equal(t, "sgd", cfg.Solver.Algorithm)
	assert.Equal(t, 0.25, cfg.Solver.Step)
	assert.Equal(t, optim.LockFree, cfg.Solver.ParallelMode)
	assert.Equal(t, 0.3, cfg.Solver.TargetObjective)
	assert.Equal(t, -2, cfg.Solver.UpdatesPerEpoch)
	assert.Equal(t, 16, cfg.Model.Batch)
	assert.False(t, cfg.Data.Normalize)
	assert.True(t, cfg.Data.StrictFeatures)
	assert.Equal(t, 1000, cfg.Solver.MaxEpochs, "unset flags keep defaults")
}

func TestResolveConfig_FileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
solver:
  algorithm: sgd
  max_epochs: 7
  step: 0.1
data:
  train: from-file.svm
`), 0o600))

	cmd, fl := parseTrainFlags(t, "--config", path, "--step", "0.2")
	cfg, err := resolveConfig(cmd, fl)
	require.NoError(t, err)
	assert.Equal(t, "sgd", cfg.Solver.Algorithm)
	assert.Equal(t, 7, cfg.Solver.MaxEpochs)
	assert.Equal(t, 0.2, cfg.Solver.Step)
	assert.Equal(t, "from-file.svm", cfg.Data.Train)
}

func TestResolveConfig_Errors(t *testing.T) {
	cmd, fl := parseTrainFlags(t)
	_, err := resolveConfig(cmd, fl)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cmd, fl = parseTrainFlags(t, "--train-file", "x", "--pmode", "hogwild")
	_, err = resolveConfig(cmd, fl)
	assert.ErrorIs(t, err, optim.ErrInvalidConfiguration)

	cmd, fl = parseTrainFlags(t, "--train-file", "x", "--obj", "low")
	_, err = resolveConfig(cmd, fl)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cmd, fl = parseTrainFlags(t, "--train-file", "x", "--test-file", "y", "--split-train-test")
	_, err = resolveConfig(cmd, fl)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestParseObjective(t *testing.T) {
	v, err := parseObjective("-inf")
	require.NoError(t, err)
	assert.True(t, math.IsInf(v, -1))

	v, err = parseObjective("0.5")
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)
}

// TestCommands runs the converters and a short training through the root
// command.
func TestCommands(t *testing.T) {
	dir := t.TempDir()
	svm := filepath.Join(dir, "train.svm")
	require.NoError(t, os.WriteFile(svm, []byte("1 0:1 1:0.5\n-1 1:1\n1 0:0.8\n-1 1:0.7 2:0.1\n"), 0o600))
	bin := filepath.Join(dir, "train.bin")
	params := filepath.Join(dir, "params.txt")

	run := func(args ...string) string {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(append(args, "--quiet"))
		require.NoError(t, rootCmd.Execute())
		return out.String()
	}

	run("svm2bin", svm, bin)
	ds, err := dataset.ReadFile(bin, dataset.FormatAuto)
	require.NoError(t, err)
	assert.Equal(t, 4, ds.Len())
	assert.Equal(t, 3, ds.NumFeatures)

	text := run("bin2svm", bin)
	assert.Equal(t, "1 0:1 1:0.5\n-1 1:1\n1 0:0.800000011920929\n-1 1:0.699999988079071 2:0.10000000149011612\n", text)

	out := run("train",
		"--train-file", bin,
		"--solver", "svrg",
		"--step", "0.5",
		"--max-epochs", "3",
		"--threads", "1",
		"--output", params,
	)
	assert.Contains(t, out, "Using svrg Algorithm")
	assert.Contains(t, out, "epoch\ttime(ms)\tobj\tgrad_sq_norm\ttest_error")
	lines := strings.Split(strings.TrimSpace(out[strings.Index(out, "Trace:"):]), "\n")
	assert.Len(t, lines, 5, "Trace:, header and three epochs")

	data, err := os.ReadFile(params)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(string(data)), 3)

	assert.Contains(t, run("version"), version)
}
