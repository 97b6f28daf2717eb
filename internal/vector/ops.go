package vector

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/svrg/internal/parallel"
)

// ScaledAccumulate computes dst = dst*selfScale + other*otherScale.
func ScaledAccumulate(dst *Dense, selfScale float64, other *Dense, otherScale float64) error {
	if dst.Len() != other.Len() {
		return fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, dst.Len(), other.Len())
	}
	if selfScale != 1 {
		floats.Scale(selfScale, dst.data)
	}
	floats.AddScaled(dst.data, otherScale, other.data)
	return nil
}

// AddDense computes dst += inc. With atomic set, every component is added
// with a hardware compare-and-swap so concurrent callers never lose updates.
func AddDense(dst, inc *Dense, atomic bool) error {
	if dst.Len() != inc.Len() {
		return fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, dst.Len(), inc.Len())
	}
	if !atomic {
		floats.Add(dst.data, inc.data)
		return nil
	}
	for i, v := range inc.data {
		parallel.AddFloat64(&dst.data[i], v)
	}
	return nil
}

// AccumulateSparse computes dst[idx] += v*scale for every entry of inc.
//
// With atomic set, each component is updated with a single atomic add,
// making concurrent calls safe at component granularity. Without it no
// synchronization is done and the caller either owns dst or accepts lost
// updates.
func AccumulateSparse(dst *Dense, inc Iterable, scale float64, atomic bool) {
	data := dst.data
	it := inc.Iter()
	if atomic {
		for ; it.Valid(); it.Next() {
			parallel.AddFloat64(&data[it.Index()], it.Value()*scale)
		}
		return
	}
	for ; it.Valid(); it.Next() {
		data[it.Index()] += it.Value() * scale
	}
}

// AddCompatible computes self = self*selfScale + other*otherScale for two
// sparse vectors that have identical index sets in the same order.
func AddCompatible(self *Sparse, selfScale float64, other Iterable, otherScale float64) error {
	si := self.Values()
	oi := other.Iter()
	for ; si.Valid(); si.Next() {
		if !oi.Valid() {
			return fmt.Errorf("%w: other ends before index %d", ErrIncompatibleVectors, si.Index())
		}
		if si.Index() != oi.Index() {
			return fmt.Errorf("%w: index %d vs %d", ErrIncompatibleVectors, si.Index(), oi.Index())
		}
		si.Set(si.Value()*selfScale + oi.Value()*otherScale)
		oi.Next()
	}
	if oi.Valid() {
		return fmt.Errorf("%w: other has extra index %d", ErrIncompatibleVectors, oi.Index())
	}
	return nil
}

// SelectiveAdd computes self[idx] = self[idx]*selfScale + other[idx]*otherScale
// for the indices already present in self. Other components are untouched.
func SelectiveAdd[P Params](self *Sparse, selfScale float64, other P, otherScale float64) {
	for it := self.Values(); it.Valid(); it.Next() {
		it.Set(it.Value()*selfScale + other.At(it.Index())*otherScale)
	}
}

// SparseDot returns the sum of sparse[idx]*dense[idx] over the non-zero
// entries of sparse.
func SparseDot[P Params](sparse Iterable, dense P) float64 {
	var sum float64
	for it := sparse.Iter(); it.Valid(); it.Next() {
		sum += it.Value() * dense.At(it.Index())
	}
	return sum
}

// Merge stores a+b in out: the index-sorted union of both entry lists, with
// values summed where indices coincide. Entries that sum to zero are kept so
// that merging gradients of the same instances always yields the same index
// pattern. out must not alias a or b.
func Merge(a, b Iterable, out *Sparse) {
	out.entries = out.entries[:0]
	ia, ib := a.Iter(), b.Iter()
	for ia.Valid() && ib.Valid() {
		switch {
		case ia.Index() == ib.Index():
			out.entries = append(out.entries, Entry{Index: ia.Index(), Value: ia.Value() + ib.Value()})
			ia.Next()
			ib.Next()
		case ia.Index() < ib.Index():
			out.entries = append(out.entries, Entry{Index: ia.Index(), Value: ia.Value()})
			ia.Next()
		default:
			out.entries = append(out.entries, Entry{Index: ib.Index(), Value: ib.Value()})
			ib.Next()
		}
	}
	for ; ia.Valid(); ia.Next() {
		out.entries = append(out.entries, Entry{Index: ia.Index(), Value: ia.Value()})
	}
	for ; ib.Valid(); ib.Next() {
		out.entries = append(out.entries, Entry{Index: ib.Index(), Value: ib.Value()})
	}
}
