package neighbors

import (
	"errors"
	"fmt"
)

// ErrShape is returned when a matrix's backing slices disagree with its
// dimensions.
var ErrShape = errors.New("neighbors: inconsistent shape")

// Matrix is a row-major table of neighbor indices.
type Matrix struct {
	// Rows is the number of query rows (N).
	Rows int
	// K is the number of columns per row.
	K int
	// Indices holds Rows*K dataset indices.
	Indices []int64
	// Scores optionally holds the similarity of every entry in Indices.
	Scores []float32
	// SelfIncluded reports whether column 0 is the row's own index.
	SelfIncluded bool
}

// NewMatrix allocates a rows×k matrix, with scores if withScores is set.
func NewMatrix(rows, k int, withScores bool) *Matrix {
	m := &Matrix{
		Rows:    rows,
		K:       k,
		Indices: make([]int64, rows*k),
	}
	if withScores {
		m.Scores = make([]float32, rows*k)
	}
	return m
}

// Row returns the indices of row i. The slice aliases the matrix.
func (m *Matrix) Row(i int) []int64 {
	return m.Indices[i*m.K : (i+1)*m.K]
}

// RowScores returns the scores of row i, or nil when scores were not kept.
func (m *Matrix) RowScores(i int) []float32 {
	if m.Scores == nil {
		return nil
	}
	return m.Scores[i*m.K : (i+1)*m.K]
}

// Neighbors returns row i without the leading self column.
func (m *Matrix) Neighbors(i int) []int64 {
	row := m.Row(i)
	if m.SelfIncluded && len(row) > 0 {
		return row[1:]
	}
	return row
}

// Shape returns (Rows, K).
func (m *Matrix) Shape() []int {
	return []int{m.Rows, m.K}
}

// Validate checks that the backing slices match the dimensions.
func (m *Matrix) Validate() error {
	if m.Rows < 0 || m.K < 0 {
		return fmt.Errorf("%w: %dx%d", ErrShape, m.Rows, m.K)
	}
	if len(m.Indices) != m.Rows*m.K {
		return fmt.Errorf("%w: %d indices for %dx%d", ErrShape, len(m.Indices), m.Rows, m.K)
	}
	if m.Scores != nil && len(m.Scores) != len(m.Indices) {
		return fmt.Errorf("%w: %d scores for %d indices", ErrShape, len(m.Scores), len(m.Indices))
	}
	return nil
}

// Accuracy returns the mean fraction of each row's neighbors (self column
// excluded) whose label equals the row's own label. labels is indexed by
// dataset index. It returns an error if any referenced label is negative.
func (m *Matrix) Accuracy(labels []int) (float64, error) {
	if m.Rows == 0 {
		return 0, nil
	}
	if len(labels) < m.Rows {
		return 0, fmt.Errorf("%w: %d labels for %d rows", ErrShape, len(labels), m.Rows)
	}
	var total float64
	for i := 0; i < m.Rows; i++ {
		nb := m.Neighbors(i)
		if len(nb) == 0 {
			continue
		}
		own := labels[i]
		if own < 0 {
			return 0, fmt.Errorf("row %d: missing label", i)
		}
		same := 0
		for _, j := range nb {
			if j < 0 || int(j) >= len(labels) {
				return 0, fmt.Errorf("row %d: neighbor %d out of range", i, j)
			}
			if labels[j] == own {
				same++
			}
		}
		total += float64(same) / float64(len(nb))
	}
	return total / float64(m.Rows), nil
}
