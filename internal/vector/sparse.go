package vector

import "fmt"

// Entry is a non-zero component of a sparse vector.
type Entry struct {
	Index int
	Value float64
}

// Iterable is anything that can be read as an ordered list of non-zero
// entries.
type Iterable interface {
	Iter() Iterator
}

// Sparse is a sparse vector stored as entries with strictly increasing
// indices. It is built with Append and may only have its values (never its
// indices) changed afterwards, through Values.
type Sparse struct {
	entries []Entry
}

// NewSparse creates an empty sparse vector with room for capacity entries.
func NewSparse(capacity int) *Sparse {
	return &Sparse{entries: make([]Entry, 0, capacity)}
}

// SparseFrom builds a sparse vector from parallel index and value slices.
func SparseFrom(indices []int, values []float64) (*Sparse, error) {
	if len(indices) != len(values) {
		return nil, fmt.Errorf("%w: %d indices, %d values", ErrDimensionMismatch, len(indices), len(values))
	}
	s := NewSparse(len(indices))
	for k, idx := range indices {
		if err := s.Append(idx, values[k]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Append adds an entry. index must be greater than every index already
// present.
func (s *Sparse) Append(index int, value float64) error {
	if index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrOutOfOrder, index)
	}
	if n := len(s.entries); n > 0 && s.entries[n-1].Index >= index {
		return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, index, s.entries[n-1].Index)
	}
	s.entries = append(s.entries, Entry{Index: index, Value: value})
	return nil
}

// Reset removes all entries, keeping the allocated storage.
func (s *Sparse) Reset() { s.entries = s.entries[:0] }

// Len returns the number of stored entries.
func (s *Sparse) Len() int { return len(s.entries) }

// Entry returns the k-th stored entry.
func (s *Sparse) Entry(k int) Entry { return s.entries[k] }

// MaxIndex returns the largest stored index, or -1 when empty.
func (s *Sparse) MaxIndex() int {
	if len(s.entries) == 0 {
		return -1
	}
	return s.entries[len(s.entries)-1].Index
}

// Iter returns a read iterator positioned at the first entry.
func (s *Sparse) Iter() Iterator {
	return Iterator{entries: s.entries, scale: 1}
}

// Values returns a read/write iterator positioned at the first entry.
func (s *Sparse) Values() ValueIterator {
	return ValueIterator{entries: s.entries}
}

// CopyScaled replaces the contents of s with src multiplied by scale.
// src already satisfies the ordering invariant, so no checks are made.
func (s *Sparse) CopyScaled(src Iterable, scale float64) {
	s.entries = s.entries[:0]
	for it := src.Iter(); it.Valid(); it.Next() {
		s.entries = append(s.entries, Entry{Index: it.Index(), Value: it.Value() * scale})
	}
}

// Scale multiplies every stored value by f.
func (s *Sparse) Scale(f float64) {
	for k := range s.entries {
		s.entries[k].Value *= f
	}
}

// SquaredNorm returns the sum of squared values.
func (s *Sparse) SquaredNorm() float64 {
	var sum float64
	for _, e := range s.entries {
		sum += e.Value * e.Value
	}
	return sum
}

// Clone returns a deep copy.
func (s *Sparse) Clone() *Sparse {
	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	return &Sparse{entries: entries}
}

// Scaled is a view of a sparse vector with every value multiplied by Scale.
type Scaled struct {
	Scale  float64
	Vector *Sparse
}

// Iter returns a read iterator over the scaled values.
func (v Scaled) Iter() Iterator {
	return Iterator{entries: v.Vector.entries, scale: v.Scale}
}

// Iterator walks the non-zero entries of a sparse vector in index order.
//
//	for it := s.Iter(); it.Valid(); it.Next() {
//	    use(it.Index(), it.Value())
//	}
type Iterator struct {
	entries []Entry
	pos     int
	scale   float64
}

// Valid reports whether the iterator points at an entry.
func (it *Iterator) Valid() bool { return it.pos < len(it.entries) }

// Next advances to the next entry.
func (it *Iterator) Next() { it.pos++ }

// Index returns the index at the current position.
func (it *Iterator) Index() int { return it.entries[it.pos].Index }

// Value returns the value at the current position.
func (it *Iterator) Value() float64 { return it.scale * it.entries[it.pos].Value }

// ValueIterator walks the entries of a Sparse and allows their values to be
// changed in place.
type ValueIterator struct {
	entries []Entry
	pos     int
}

// Valid reports whether the iterator points at an entry.
func (it *ValueIterator) Valid() bool { return it.pos < len(it.entries) }

// Next advances to the next entry.
func (it *ValueIterator) Next() { it.pos++ }

// Index returns the index at the current position.
func (it *ValueIterator) Index() int { return it.entries[it.pos].Index }

// Value returns the value at the current position.
func (it *ValueIterator) Value() float64 { return it.entries[it.pos].Value }

// Set overwrites the value at the current position.
func (it *ValueIterator) Set(v float64) { it.entries[it.pos].Value = v }

// Add adds delta to the value at the current position.
func (it *ValueIterator) Add(delta float64) { it.entries[it.pos].Value += delta }
