package dataset

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/born-ml/svrg/internal/vector"
)

const (
	binaryHeaderSize = 8 + 4 // int64 example count, int32 feature count
	binaryEntrySize  = 4 + 4 // int32 index, float32 value
	maxPrealloc      = 1 << 20
)

// ReadBinary decodes the binary format. Labels are returned as written.
//
// Entries are validated against the header: indices must be increasing and
// below the declared feature count.
func ReadBinary(r io.Reader) (*Dataset, error) {
	br := bufio.NewReader(r)

	var header [binaryHeaderSize]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, truncated("header", err)
	}
	numExamples := int64(binary.LittleEndian.Uint64(header[0:8]))
	numFeatures := int32(binary.LittleEndian.Uint32(header[8:12]))
	if numExamples < 0 || numFeatures < 0 {
		return nil, &ParseError{Format: FormatBinary, Details: fmt.Sprintf("negative header counts %d, %d", numExamples, numFeatures)}
	}

	ds := &Dataset{
		Examples:    make([]vector.Sparse, 0, min(numExamples, maxPrealloc)),
		Labels:      make([]float64, 0, min(numExamples, maxPrealloc)),
		NumFeatures: int(numFeatures),
	}

	var meta [5]byte // int8 label, int32 non-zero count
	var entries []byte
	for i := int64(0); i < numExamples; i++ {
		record := int(i + 1)
		if _, err := io.ReadFull(br, meta[:]); err != nil {
			return nil, truncated(fmt.Sprintf("example %d", record), err)
		}
		label := float64(int8(meta[0]))
		nnz := int32(binary.LittleEndian.Uint32(meta[1:5]))
		if nnz < 0 || nnz > numFeatures {
			return nil, &ParseError{Format: FormatBinary, Record: record, Details: fmt.Sprintf("non-zero count %d outside [0, %d]", nnz, numFeatures)}
		}

		size := int(nnz) * binaryEntrySize
		if cap(entries) < size {
			entries = make([]byte, size)
		}
		entries = entries[:size]
		if _, err := io.ReadFull(br, entries); err != nil {
			return nil, truncated(fmt.Sprintf("example %d", record), err)
		}

		x := vector.NewSparse(int(nnz))
		for k := 0; k < int(nnz); k++ {
			off := k * binaryEntrySize
			idx := int32(binary.LittleEndian.Uint32(entries[off : off+4]))
			val := math.Float32frombits(binary.LittleEndian.Uint32(entries[off+4 : off+8]))
			if idx >= numFeatures {
				return nil, &ParseError{Format: FormatBinary, Record: record, Details: fmt.Sprintf("index %d exceeds feature count %d", idx, numFeatures)}
			}
			if err := x.Append(int(idx), float64(val)); err != nil {
				return nil, &ParseError{Format: FormatBinary, Record: record, Details: "indices must be increasing", Err: err}
			}
		}
		ds.Examples = append(ds.Examples, *x)
		ds.Labels = append(ds.Labels, label)
	}
	return ds, nil
}

func truncated(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s", ErrTruncated, what)
	}
	return fmt.Errorf("failed to read %s: %w", what, err)
}

// WriteBinary encodes ds in the binary format. The header feature count is
// ds.NumFeatures or max index + 1, whichever is larger. Labels must be
// integers in the int8 range; values are stored as float32.
func WriteBinary(w io.Writer, ds *Dataset) error {
	numFeatures := ds.NumFeatures
	for i := range ds.Examples {
		numFeatures = max(numFeatures, ds.Examples[i].MaxIndex()+1)
	}
	if numFeatures > math.MaxInt32 {
		return fmt.Errorf("%w: %d features exceed int32", ErrInvalidFormat, numFeatures)
	}

	bw := bufio.NewWriter(w)
	var header [binaryHeaderSize]byte
	binary.LittleEndian.PutUint64(header[0:8], uint64(ds.Len()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(numFeatures))
	if _, err := bw.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	buf := make([]byte, 0, 256)
	for i := range ds.Examples {
		y := ds.Labels[i]
		if y != math.Trunc(y) || y < math.MinInt8 || y > math.MaxInt8 {
			return fmt.Errorf("%w: example %d has label %v", ErrUnsupportedLabel, i, y)
		}

		x := &ds.Examples[i]
		buf = append(buf[:0], byte(int8(y)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(x.Len()))
		for it := x.Iter(); it.Valid(); it.Next() {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(it.Index()))
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(it.Value())))
		}
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("failed to write example %d: %w", i, err)
		}
	}
	return bw.Flush()
}
