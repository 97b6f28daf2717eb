// Package dataset reads and writes sparse binary-classification datasets.
//
// Two on-disk formats are supported:
//
//   - SVM text: one example per line, "label idx:val idx:val ...". Indices are
//     zero-based and must be strictly increasing within a line. A line with
//     only a label is an all-zero example.
//   - Binary (little-endian): int64 example count, int32 feature count, then
//     per example an int8 label, an int32 non-zero count and that many
//     (int32 index, float32 value) pairs.
//
// ReadFile and WriteFile move raw data between formats. Load additionally
// binarizes labels to {0, 1} and optionally scales every example to unit L2
// norm, which is what the training pipeline consumes.
package dataset
