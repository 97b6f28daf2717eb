package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/born-ml/svrg/internal/logging"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "v0.1.0-dev"

// logFlags are shared by every subcommand.
type logFlags struct {
	Level string
	File  string
	Tag   string
	JSON  bool
	Quiet bool
}

var globalLog logFlags

var rootCmd = &cobra.Command{
	Use:   "svrg",
	Short: "Parallel SGD and SVRG for sparse logistic regression",
	Long: `svrg trains L2-regularized logistic regression models on sparse data
with parallel stochastic gradient descent (SGD) or stochastic variance-reduced
gradient (SVRG), and converts datasets between SVM text and binary formats.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalLog.Level, "log-level", "info", "log level: debug|info|warn|error")
	pf.StringVar(&globalLog.File, "log-file", "", "also write JSON logs to this rotated file")
	pf.StringVar(&globalLog.Tag, "log-tag", "", "tag attached to every log entry")
	pf.BoolVar(&globalLog.JSON, "log-json", false, "log to stderr as JSON")
	pf.BoolVarP(&globalLog.Quiet, "quiet", "q", false, "disable console logging")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(svm2binCmd)
	rootCmd.AddCommand(bin2svmCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger applies the explicitly set logging flags on top of base.
func newLogger(cmd *cobra.Command, base logging.Config) (*zap.Logger, error) {
	flags := cmd.Flags()
	if flags.Changed("log-level") || base.Level == "" {
		base.Level = globalLog.Level
	}
	if flags.Changed("log-file") {
		base.File = globalLog.File
	}
	if flags.Changed("log-tag") {
		base.Tag = globalLog.Tag
	}
	if flags.Changed("log-json") {
		base.Encoding = "console"
		if globalLog.JSON {
			base.Encoding = "json"
		}
	}
	if flags.Changed("quiet") {
		base.Quiet = globalLog.Quiet
	}

	logger, _, err := logging.New(base)
	return logger, err
}
