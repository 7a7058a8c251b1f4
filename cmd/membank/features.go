package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/membank/internal/npy"
)

// readFeatures loads an N×D float array and returns it as N row slices
// sharing one backing array.
func readFeatures(path string, dim int) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	h, data, err := npy.ReadFloat32(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(h.Shape) != 2 {
		return nil, fmt.Errorf("%s: %w: expected a 2-D array, got shape %v", path, npy.ErrFormat, h.Shape)
	}
	if h.Shape[1] != dim {
		return nil, fmt.Errorf("%s: feature dimension %d, configured %d", path, h.Shape[1], dim)
	}

	rows := make([][]float32, h.Shape[0])
	for i := range rows {
		rows[i] = data[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return rows, nil
}

// readLabels loads a 1-D integer array. An empty path yields nil labels.
func readLabels(path string, n int) ([]int, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	h, data, err := npy.ReadInt64(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(h.Shape) != 1 || h.Shape[0] != n {
		return nil, fmt.Errorf("%s: expected %d labels, got shape %v", path, n, h.Shape)
	}

	labels := make([]int, n)
	for i, v := range data {
		labels[i] = int(v)
	}
	return labels, nil
}
