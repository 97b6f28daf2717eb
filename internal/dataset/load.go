package dataset

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReadFile reads the dataset at path without transforming it.
func ReadFile(path string, format Format) (*Dataset, error) {
	if format == FormatAuto {
		format = DetectFormat(path)
	}

	//nolint:gosec // G304: dataset paths come from the command line
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	var ds *Dataset
	switch format {
	case FormatSVM:
		ds, err = ReadSVM(f)
	case FormatBinary:
		ds, err = ReadBinary(f)
	default:
		return nil, fmt.Errorf("dataset: unsupported format %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// WriteFile writes ds to path, replacing any existing file.
func WriteFile(path string, format Format, ds *Dataset) (err error) {
	if format == FormatAuto {
		format = DetectFormat(path)
	}

	//nolint:gosec // G304: dataset paths come from the command line
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	switch format {
	case FormatSVM:
		return WriteSVM(f, ds)
	case FormatBinary:
		return WriteBinary(f, ds)
	default:
		return fmt.Errorf("dataset: unsupported format %s", format)
	}
}

// LoadOptions configures Load.
type LoadOptions struct {
	Format    Format      // Input format (default: from extension)
	Normalize bool        // Scale every example to unit L2 norm
	Logger    *zap.Logger // Progress logging (default: no-op)

	// StrictFeatures makes LoadPair fail on differing feature counts.
	StrictFeatures bool
}

// Load reads a training file, maps labels to {0, 1} and optionally
// normalizes the examples.
func Load(path string, opts LoadOptions) (*Dataset, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	start := time.Now()
	ds, err := ReadFile(path, opts.Format)
	if err != nil {
		return nil, err
	}
	ds.Binarize()
	if opts.Normalize {
		ds.Normalize()
	}

	logger.Info("dataset loaded",
		zap.String("path", path),
		zap.Int("examples", ds.Len()),
		zap.Int("features", ds.NumFeatures),
		zap.Int("positives", ds.Positives()),
		zap.Duration("took", time.Since(start)),
	)
	return ds, nil
}

// LoadPair loads a training and a held-out file concurrently. When the
// declared feature counts differ both are widened to the larger one, or
// ErrFeatureMismatch is returned if opts.StrictFeatures is set.
func LoadPair(ctx context.Context, trainPath, testPath string, opts LoadOptions) (train, test *Dataset, err error) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ds, err := Load(trainPath, opts)
		train = ds
		return err
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ds, err := Load(testPath, opts)
		test = ds
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if train.NumFeatures != test.NumFeatures {
		if opts.StrictFeatures {
			return nil, nil, fmt.Errorf("%w: train %d, test %d", ErrFeatureMismatch, train.NumFeatures, test.NumFeatures)
		}
		if opts.Logger != nil {
			opts.Logger.Warn("train and test feature counts differ",
				zap.Int("train", train.NumFeatures),
				zap.Int("test", test.NumFeatures),
			)
		}
		n := max(train.NumFeatures, test.NumFeatures)
		train.NumFeatures, test.NumFeatures = n, n
	}
	return train, test, nil
}
