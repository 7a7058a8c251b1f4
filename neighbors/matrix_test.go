package neighbors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix_RowAccess(t *testing.T) {
	m := NewMatrix(2, 3, true)
	copy(m.Indices, []int64{1, 2, 3, 0, 2, 3})
	copy(m.Scores, []float32{0.9, 0.8, 0.7, 0.6, 0.5, 0.4})

	assert.Equal(t, []int64{0, 2, 3}, m.Row(1))
	assert.Equal(t, []float32{0.6, 0.5, 0.4}, m.RowScores(1))
	assert.Equal(t, []int{2, 3}, m.Shape())
	assert.NoError(t, m.Validate())

	noScores := NewMatrix(1, 1, false)
	assert.Nil(t, noScores.RowScores(0))
}

func TestMatrix_NeighborsDropsSelf(t *testing.T) {
	m := &Matrix{Rows: 2, K: 3, Indices: []int64{0, 1, 2, 1, 0, 2}, SelfIncluded: true}

	assert.Equal(t, []int64{1, 2}, m.Neighbors(0))
	assert.Equal(t, []int64{0, 2}, m.Neighbors(1))

	m.SelfIncluded = false
	assert.Equal(t, []int64{0, 1, 2}, m.Neighbors(0))
}

func TestMatrix_Validate(t *testing.T) {
	tests := []struct {
		name string
		m    *Matrix
	}{
		{"negative", &Matrix{Rows: -1, K: 1}},
		{"short indices", &Matrix{Rows: 2, K: 2, Indices: make([]int64, 3)}},
		{"score mismatch", &Matrix{Rows: 1, K: 2, Indices: make([]int64, 2), Scores: make([]float32, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.m.Validate(), ErrShape)
		})
	}
}

func TestMatrix_Accuracy(t *testing.T) {
	// Rows 0,1 are class 0; rows 2,3 are class 1.
	labels := []int{0, 0, 1, 1}
	m := &Matrix{Rows: 4, K: 2, Indices: []int64{
		1, 2, // 1 of 2 agree
		0, 3, // 1 of 2 agree
		3, 1, // 1 of 2 agree
		2, 0, // 1 of 2 agree
	}}

	acc, err := m.Accuracy(labels)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, acc, 1e-9)

	perfect := &Matrix{Rows: 4, K: 1, Indices: []int64{1, 0, 3, 2}}
	acc, err = perfect.Accuracy(labels)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, acc, 1e-9)
}

func TestMatrix_AccuracyIgnoresSelfColumn(t *testing.T) {
	labels := []int{0, 1}
	m := &Matrix{Rows: 2, K: 2, Indices: []int64{0, 1, 1, 0}, SelfIncluded: true}

	acc, err := m.Accuracy(labels)
	require.NoError(t, err)
	assert.Equal(t, 0.0, acc)
}

func TestMatrix_AccuracyErrors(t *testing.T) {
	m := &Matrix{Rows: 2, K: 1, Indices: []int64{1, 0}}

	_, err := m.Accuracy([]int{0})
	assert.ErrorIs(t, err, ErrShape)

	_, err = m.Accuracy([]int{-1, 0})
	assert.Error(t, err)

	bad := &Matrix{Rows: 1, K: 1, Indices: []int64{5}}
	_, err = bad.Accuracy([]int{0})
	assert.Error(t, err)
}
