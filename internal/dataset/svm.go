package dataset

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/born-ml/svrg/internal/vector"
)

const (
	svmInitialBuffer = 256 * 1024
	svmMaxLine       = 64 * 1024 * 1024
)

// ReadSVM decodes an SVM text stream. Labels are returned as written.
// Blank lines are skipped.
func ReadSVM(r io.Reader) (*Dataset, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, svmInitialBuffer), svmMaxLine)

	ds := &Dataset{}
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), " \t\r")
		if text == "" {
			continue
		}
		x, label, err := parseSVMLine(text, line)
		if err != nil {
			return nil, err
		}
		ds.Append(*x, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read svm data: %w", err)
	}
	return ds, nil
}

func parseSVMLine(text string, line int) (*vector.Sparse, float64, error) {
	fields := strings.Fields(text)

	label, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, 0, &ParseError{Format: FormatSVM, Record: line, Details: fmt.Sprintf("bad label %q", fields[0])}
	}

	x := vector.NewSparse(len(fields) - 1)
	for _, tok := range fields[1:] {
		idxText, valText, ok := strings.Cut(tok, ":")
		if !ok {
			return nil, 0, &ParseError{Format: FormatSVM, Record: line, Details: fmt.Sprintf("token %q is not idx:val", tok)}
		}
		idx, err := strconv.Atoi(idxText)
		if err != nil {
			return nil, 0, &ParseError{Format: FormatSVM, Record: line, Details: fmt.Sprintf("bad index %q", idxText)}
		}
		val, err := strconv.ParseFloat(valText, 64)
		if err != nil {
			return nil, 0, &ParseError{Format: FormatSVM, Record: line, Details: fmt.Sprintf("bad value %q", valText)}
		}
		if err := x.Append(idx, val); err != nil {
			return nil, 0, &ParseError{Format: FormatSVM, Record: line, Details: "indices must be increasing", Err: err}
		}
	}
	return x, label, nil
}

// WriteSVM encodes ds as SVM text.
func WriteSVM(w io.Writer, ds *Dataset) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 64)
	for i := range ds.Examples {
		buf = strconv.AppendFloat(buf[:0], ds.Labels[i], 'g', -1, 64)
		for it := ds.Examples[i].Iter(); it.Valid(); it.Next() {
			buf = append(buf, ' ')
			buf = strconv.AppendInt(buf, int64(it.Index()), 10)
			buf = append(buf, ':')
			buf = strconv.AppendFloat(buf, it.Value(), 'g', -1, 64)
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("failed to write example %d: %w", i, err)
		}
	}
	return bw.Flush()
}
