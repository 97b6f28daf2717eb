// Package vector implements the dense and sparse vector model used by the
// oracles and solvers.
//
// Dense is a fixed-length []float64. Sparse is an append-only list of
// (index, value) entries with strictly increasing indices; it is read through
// an Iterator and mutated in place only through a ValueIterator. Scaled is a
// non-owning view that exposes a Sparse with every value multiplied by a
// constant.
//
// Functions in this package operate on any Iterable (sparse) and any Params
// (indexed read access), so the same arithmetic serves plain dense vectors and
// lazily combined parameter vectors.
package vector
