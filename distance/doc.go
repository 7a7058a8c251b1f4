// Package distance provides the vector kernels used by the memory bank.
//
// Dot products and similarity blocks run on gonum's BLAS (blas32), which
// dispatches to the registered implementation (pure Go by default, or a
// cgo-backed one when the host program registers it).
//
// # Normalization
//
// Every vector stored in a memory bank is L2-normalized, so the dot product
// of two stored vectors equals their cosine similarity:
//
//	v := []float32{3, 4}
//	_ = distance.Normalize(v) // v == [0.6 0.8]
//	sim := distance.Dot(v, v) // 1
//
// Zero vectors cannot be normalized; Normalize reports ErrZeroNorm and
// NormalizeL2InPlace returns false.
//
// # Similarity blocks
//
// SimilarityBlock computes a queries×bank block of dot products in a single
// GEMM call. Callers bound peak memory by choosing the number of query rows
// per block.
package distance
