package vector

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Params is read-only indexed access to a parameter vector.
type Params interface {
	// At returns the i-th component.
	At(i int) float64
	// Len returns the dimension.
	Len() int
}

// Dense is a fixed-size vector of float64 values.
type Dense struct {
	data []float64
}

// NewDense creates a zero vector of dimension n.
func NewDense(n int) *Dense {
	return &Dense{data: make([]float64, n)}
}

// NewDenseFrom wraps data without copying it.
func NewDenseFrom(data []float64) *Dense {
	return &Dense{data: data}
}

// Len returns the dimension.
func (d *Dense) Len() int { return len(d.data) }

// At returns the i-th component.
func (d *Dense) At(i int) float64 { return d.data[i] }

// Set sets the i-th component.
func (d *Dense) Set(i int, v float64) { d.data[i] = v }

// Data returns the backing slice.
func (d *Dense) Data() []float64 { return d.data }

// Fill sets every component to v.
func (d *Dense) Fill(v float64) {
	for i := range d.data {
		d.data[i] = v
	}
}

// Dot returns the inner product with other.
func (d *Dense) Dot(other *Dense) (float64, error) {
	if len(d.data) != len(other.data) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(d.data), len(other.data))
	}
	return floats.Dot(d.data, other.data), nil
}

// SquaredNorm returns the squared Euclidean norm.
func (d *Dense) SquaredNorm() float64 {
	return floats.Dot(d.data, d.data)
}

// CopyFrom overwrites d with the contents of other.
func (d *Dense) CopyFrom(other *Dense) error {
	if len(d.data) != len(other.data) {
		return fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(d.data), len(other.data))
	}
	copy(d.data, other.data)
	return nil
}

// Clone returns a deep copy.
func (d *Dense) Clone() *Dense {
	data := make([]float64, len(d.data))
	copy(data, d.data)
	return &Dense{data: data}
}
