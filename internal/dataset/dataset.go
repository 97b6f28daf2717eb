package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"strings"

	"github.com/born-ml/svrg/internal/vector"
)

// Dataset is an in-memory set of labeled sparse examples.
type Dataset struct {
	Examples    []vector.Sparse
	Labels      []float64
	NumFeatures int // Dimension of the feature space (max index + 1 at least)
}

// Len returns the number of examples.
func (ds *Dataset) Len() int { return len(ds.Examples) }

// Append adds one example, growing NumFeatures if needed.
func (ds *Dataset) Append(x vector.Sparse, label float64) {
	ds.Examples = append(ds.Examples, x)
	ds.Labels = append(ds.Labels, label)
	if m := x.MaxIndex() + 1; m > ds.NumFeatures {
		ds.NumFeatures = m
	}
}

// Binarize maps labels to 1 when positive and 0 otherwise.
func (ds *Dataset) Binarize() {
	for i, y := range ds.Labels {
		if y > 0 {
			ds.Labels[i] = 1
		} else {
			ds.Labels[i] = 0
		}
	}
}

// Normalize scales every example to unit L2 norm. All-zero examples are
// left unchanged.
func (ds *Dataset) Normalize() {
	for i := range ds.Examples {
		x := &ds.Examples[i]
		norm := math.Sqrt(x.SquaredNorm())
		if norm == 0 {
			continue
		}
		x.Scale(1 / norm)
	}
}

// Positives returns the number of examples with a positive label.
func (ds *Dataset) Positives() int {
	n := 0
	for _, y := range ds.Labels {
		if y > 0 {
			n++
		}
	}
	return n
}

// Split moves roughly testPercent percent of the examples, chosen with a
// generator seeded by seed, into a held-out set. Both results share the
// feature space of ds and keep the original example order.
func Split(ds *Dataset, testPercent float64, seed int64) (train, test *Dataset, err error) {
	if testPercent < 0 || testPercent > 100 || math.IsNaN(testPercent) {
		return nil, nil, fmt.Errorf("dataset: test percent must be in [0, 100], got %v", testPercent)
	}

	rng := rand.New(rand.NewSource(seed))
	train = &Dataset{NumFeatures: ds.NumFeatures}
	test = &Dataset{NumFeatures: ds.NumFeatures}
	for i := range ds.Examples {
		dst := train
		if rng.Float64()*100 < testPercent {
			dst = test
		}
		dst.Examples = append(dst.Examples, ds.Examples[i])
		dst.Labels = append(dst.Labels, ds.Labels[i])
	}
	return train, test, nil
}

// Format identifies an on-disk dataset encoding.
type Format int

const (
	// FormatAuto picks the format from the file extension.
	FormatAuto Format = iota
	// FormatSVM is the sparse SVM text format.
	FormatSVM
	// FormatBinary is the compact little-endian binary format.
	FormatBinary
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatAuto:
		return "auto"
	case FormatSVM:
		return "svm"
	case FormatBinary:
		return "binary"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat parses "auto", "svm" or "binary" (also "bin").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "svm", "libsvm", "text":
		return FormatSVM, nil
	case "bin", "binary":
		return FormatBinary, nil
	}
	return FormatAuto, fmt.Errorf("dataset: unknown format %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// DetectFormat resolves FormatAuto: files ending in ".bin" are binary,
// anything else is SVM text.
func DetectFormat(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".bin") {
		return FormatBinary
	}
	return FormatSVM
}
