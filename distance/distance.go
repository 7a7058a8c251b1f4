package distance

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// ErrZeroNorm is returned when a vector with zero L2 norm is normalized.
var ErrZeroNorm = errors.New("vector has zero norm")

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return blas32.Dot(vec(a), vec(b))
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return blas32.Nrm2(vec(v))
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm := Norm(v)
	if norm == 0 || math.IsNaN(float64(norm)) || math.IsInf(float64(norm), 0) {
		return false
	}
	blas32.Scal(1/norm, vec(v))
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Normalize L2-normalizes v in place and reports ErrZeroNorm when that is
// not possible.
func Normalize(v []float32) error {
	if !NormalizeL2InPlace(v) {
		return ErrZeroNorm
	}
	return nil
}

// NormalizeBatch returns normalized copies of every row in batch.
// The first row that cannot be normalized fails the whole batch.
func NormalizeBatch(batch [][]float32) ([][]float32, error) {
	out := make([][]float32, len(batch))
	for i, row := range batch {
		n, ok := NormalizeL2Copy(row)
		if !ok {
			return nil, fmt.Errorf("row %d: %w", i, ErrZeroNorm)
		}
		out[i] = n
	}
	return out, nil
}

// SimilarityBlock writes the dot products of nq query rows against nb bank
// rows into out (row-major, nq×nb):
//
//	out[i*nb+j] = dot(queries[i*dim:(i+1)*dim], bank[j*dim:(j+1)*dim])
//
// queries, bank and out are flat row-major matrices. out must hold at
// least nq*nb elements. Inputs are never modified.
func SimilarityBlock(queries []float32, nq int, bank []float32, nb int, dim int, out []float32) {
	if nq == 0 || nb == 0 {
		return
	}
	blas32.Gemm(
		blas.NoTrans,
		blas.Trans,
		1.0,
		blas32.General{Rows: nq, Cols: dim, Stride: dim, Data: queries[:nq*dim]},
		blas32.General{Rows: nb, Cols: dim, Stride: dim, Data: bank[:nb*dim]},
		0.0,
		blas32.General{Rows: nq, Cols: nb, Stride: nb, Data: out[:nq*nb]},
	)
}

func vec(v []float32) blas32.Vector {
	return blas32.Vector{N: len(v), Inc: 1, Data: v}
}
