package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/born-ml/svrg/internal/dataset"
	"github.com/born-ml/svrg/internal/logging"
)

var svm2binCmd = &cobra.Command{
	Use:   "svm2bin <input.svm> <output.bin>",
	Short: "Convert SVM text data to the binary format",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return convert(cmd, args[0], dataset.FormatSVM, args[1], dataset.FormatBinary)
	},
}

var bin2svmCmd = &cobra.Command{
	Use:   "bin2svm <input.bin> [output.svm]",
	Short: "Convert binary data to SVM text (stdout without an output path)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return convertToWriter(cmd, args[0])
		}
		return convert(cmd, args[0], dataset.FormatBinary, args[1], dataset.FormatSVM)
	},
}

func convert(cmd *cobra.Command, in string, inFormat dataset.Format, out string, outFormat dataset.Format) error {
	logger, err := newLogger(cmd, logging.DefaultConfig())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	start := time.Now()
	ds, err := dataset.ReadFile(in, inFormat)
	if err != nil {
		return err
	}
	if err := dataset.WriteFile(out, outFormat, ds); err != nil {
		return fmt.Errorf("%s: %w", out, err)
	}

	logger.Info("converted",
		zap.String("input", in),
		zap.String("output", out),
		zap.Int("examples", ds.Len()),
		zap.Int("features", ds.NumFeatures),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func convertToWriter(cmd *cobra.Command, in string) error {
	ds, err := dataset.ReadFile(in, dataset.FormatBinary)
	if err != nil {
		return err
	}
	return dataset.WriteSVM(cmd.OutOrStdout(), ds)
}
