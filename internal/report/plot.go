package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/born-ml/svrg/internal/optim"
)

// Plot size.
const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// logFloor keeps zero values plottable on a log axis.
const logFloor = 1e-300

// NewPlot draws the objective and the squared gradient norm per epoch on a
// logarithmic axis.
func NewPlot(title string, trace []optim.Record) (*plot.Plot, error) {
	if len(trace) == 0 {
		return nil, fmt.Errorf("report: empty trace")
	}

	objective := make(plotter.XYs, len(trace))
	gradient := make(plotter.XYs, len(trace))
	for i, rec := range trace {
		objective[i].X = float64(rec.Epoch + 1)
		objective[i].Y = math.Max(rec.Objective, logFloor)
		gradient[i].X = float64(rec.Epoch + 1)
		gradient[i].Y = math.Max(rec.GradSqNorm, logFloor)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "value"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	for _, s := range []struct {
		name string
		xys  plotter.XYs
		dash []vg.Length
	}{
		{"objective", objective, nil},
		{"grad_sq_norm", gradient, []vg.Length{vg.Points(4), vg.Points(2)}},
	} {
		line, err := plotter.NewLine(s.xys)
		if err != nil {
			return nil, fmt.Errorf("report: %s: %w", s.name, err)
		}
		line.Dashes = s.dash
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	return p, nil
}

// WritePlot renders the convergence plot to w in the given image format
// ("png", "svg", "pdf", ...).
func WritePlot(w io.Writer, format, title string, trace []optim.Record) error {
	p, err := NewPlot(title, trace)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, format)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePlot renders the convergence plot to path. The image format follows
// the file extension and defaults to PNG.
func SavePlot(path, title string, trace []optim.Record) (err error) {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if format == "" {
		format = "png"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	//nolint:gosec // G304: output path comes from the command line
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create plot file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WritePlot(f, format, title, trace)
}
