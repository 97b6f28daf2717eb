// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package dataset loads sparse binary-classification data.
//
// This package wraps the internal dataset implementation and exports the
// readers, writers and transforms used for training.
//
// Example usage:
//
//	import "github.com/born-ml/svrg/dataset"
//
//	// Load with format auto-detection (.bin is binary, anything else SVM text)
//	ds, err := dataset.Load("data/rcv1.bin", dataset.LoadOptions{Normalize: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Hold out 20% for evaluation
//	train, test, err := dataset.Split(ds, 20, 0)
package dataset

import (
	"context"

	"github.com/born-ml/svrg/internal/dataset"
)

// Dataset is an in-memory set of labeled sparse examples.
type Dataset = dataset.Dataset

// Format identifies an on-disk encoding.
type Format = dataset.Format

// Supported formats.
const (
	FormatAuto   Format = dataset.FormatAuto
	FormatSVM    Format = dataset.FormatSVM
	FormatBinary Format = dataset.FormatBinary
)

// LoadOptions configures Load and LoadPair.
type LoadOptions = dataset.LoadOptions

// ParseError describes malformed input at a specific record.
type ParseError = dataset.ParseError

// Errors.
var (
	ErrInvalidFormat   = dataset.ErrInvalidFormat
	ErrTruncated       = dataset.ErrTruncated
	ErrFeatureMismatch = dataset.ErrFeatureMismatch
)

// Load reads a training file, maps labels to {0, 1} and optionally
// normalizes every example to unit L2 norm.
func Load(path string, opts LoadOptions) (*Dataset, error) {
	return dataset.Load(path, opts)
}

// LoadPair loads a training and a held-out file concurrently.
func LoadPair(ctx context.Context, trainPath, testPath string, opts LoadOptions) (train, test *Dataset, err error) {
	return dataset.LoadPair(ctx, trainPath, testPath, opts)
}

// ReadFile reads a dataset without transforming it.
func ReadFile(path string, format Format) (*Dataset, error) {
	return dataset.ReadFile(path, format)
}

// WriteFile writes ds to path in the given format.
func WriteFile(path string, format Format, ds *Dataset) error {
	return dataset.WriteFile(path, format, ds)
}

// Split holds out roughly testPercent percent of the examples.
func Split(ds *Dataset, testPercent float64, seed int64) (train, test *Dataset, err error) {
	return dataset.Split(ds, testPercent, seed)
}

// ParseFormat parses "auto", "svm" or "binary".
func ParseFormat(s string) (Format, error) { return dataset.ParseFormat(s) }
