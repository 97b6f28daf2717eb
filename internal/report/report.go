// Package report renders solver traces and trained parameters.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/born-ml/svrg/internal/optim"
	"github.com/born-ml/svrg/internal/oracle"
	"github.com/born-ml/svrg/internal/vector"
)

// Header lists the trace columns.
var Header = []string{"epoch", "time(ms)", "obj", "grad_sq_norm", oracle.MetricTestError}

// Rows formats the trace as strings, one row per record. A missing
// held-out error is shown as "-".
func Rows(trace []optim.Record) [][]string {
	rows := make([][]string, 0, len(trace))
	for _, rec := range trace {
		testErr := "-"
		if v, ok := rec.Metrics[oracle.MetricTestError]; ok {
			testErr = formatFloat(v)
		}
		rows = append(rows, []string{
			strconv.Itoa(rec.Epoch),
			strconv.FormatInt(rec.ElapsedMs, 10),
			formatFloat(rec.Objective),
			formatFloat(rec.GradSqNorm),
			testErr,
		})
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 17, 64)
}

// WriteTSV writes the trace as tab-separated values with a header line.
func WriteTSV(w io.Writer, trace []optim.Record) error {
	bw := bufio.NewWriter(w)
	writeRow := func(row []string) {
		for i, cell := range row {
			if i > 0 {
				_ = bw.WriteByte('\t')
			}
			_, _ = bw.WriteString(cell)
		}
		_ = bw.WriteByte('\n')
	}

	writeRow(Header)
	for _, row := range Rows(trace) {
		writeRow(row)
	}
	return bw.Flush()
}

// Table renders the trace as a terminal table.
func Table(trace []optim.Record) (string, error) {
	data := pterm.TableData{Header}
	data = append(data, Rows(trace)...)
	return pterm.DefaultTable.
		WithHasHeader(true).
		WithBoxed(true).
		WithData(data).
		Srender()
}

// WriteParams writes one parameter per line with full precision.
func WriteParams(w io.Writer, x *vector.Dense) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 32)
	for _, v := range x.Data() {
		buf = strconv.AppendFloat(buf[:0], v, 'g', -1, 64)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveParams writes x to path in the WriteParams format.
func SaveParams(path string, x *vector.Dense) (err error) {
	//nolint:gosec // G304: output path comes from the command line
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create params file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteParams(f, x)
}
