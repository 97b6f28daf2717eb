// Package logging builds the zap loggers used by the command line tools.
//
// Console output goes to stderr so stdout stays free for the training
// report. An optional log file is rotated with lumberjack. Every entry
// carries the run id and, when set, the user supplied tag.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger construction.
type Config struct {
	Level    string `yaml:"level"`    // debug, info, warn or error (default: info)
	Encoding string `yaml:"encoding"` // console or json (default: console)
	Tag      string `yaml:"tag"`      // Attached to every entry as "tag"
	Quiet    bool   `yaml:"quiet"`    // Disable console output

	File       string `yaml:"file"`         // Optional log file path
	MaxSizeMB  int    `yaml:"max_size_mb"`  // Rotate after this size (default: 100)
	MaxBackups int    `yaml:"max_backups"`  // Rotated files to keep
	MaxAgeDays int    `yaml:"max_age_days"` // Days to keep rotated files
	Compress   bool   `yaml:"compress"`     // Gzip rotated files
}

// DefaultConfig returns an info level console configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Encoding:  "console",
		MaxSizeMB: 100,
	}
}

// Validate reports unknown levels or encodings.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(levelOrDefault(c.Level)); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	switch strings.ToLower(c.Encoding) {
	case "", "console", "json":
		return nil
	}
	return fmt.Errorf("logging: unknown encoding %q", c.Encoding)
}

// New builds a logger writing to stderr and, if configured, a rotated file.
// It returns the run id attached to every entry.
func New(cfg Config) (*zap.Logger, string, error) {
	return build(cfg, zapcore.Lock(os.Stderr))
}

func build(cfg Config, console zapcore.WriteSyncer) (*zap.Logger, string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	level, _ := zapcore.ParseLevel(levelOrDefault(cfg.Level))

	var cores []zapcore.Core
	if !cfg.Quiet && console != nil {
		cores = append(cores, zapcore.NewCore(encoder(cfg.Encoding), console, zap.NewAtomicLevelAt(level)))
	}
	if cfg.File != "" {
		w, err := fileWriter(cfg)
		if err != nil {
			return nil, "", err
		}
		// Files always get JSON so they can be post-processed.
		cores = append(cores, zapcore.NewCore(encoder("json"), w, zap.NewAtomicLevelAt(level)))
	}

	runID := uuid.NewString()
	fields := []zap.Field{zap.String("run", runID)}
	if cfg.Tag != "" {
		fields = append(fields, zap.String("tag", cfg.Tag))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel)).With(fields...)
	return logger, runID, nil
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

func encoder(encoding string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.EqualFold(encoding, "json") {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func fileWriter(cfg Config) (zapcore.WriteSyncer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		return nil, fmt.Errorf("logging: create log directory: %w", err)
	}
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize, // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays, // days
		Compress:   cfg.Compress,
	}), nil
}

// NewWriter builds a logger that writes console output to w. It is meant for
// tools that capture their own output.
func NewWriter(cfg Config, w io.Writer) (*zap.Logger, string, error) {
	return build(cfg, zapcore.AddSync(w))
}
