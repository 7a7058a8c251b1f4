package testutil

import (
	"math/rand"
	"slices"
	"sync"

	"github.com/hupe1980/membank/distance"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Perm returns a pseudo-random permutation of [0,n).
func (r *RNG) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// UniformVectors generates random vectors with values in range [0, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
		vectors[i] = vec
	}

	return vectors
}

// GaussianVectors generates random vectors with values from a standard normal distribution.
func (r *RNG) GaussianVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.gaussianLocked(num, dimensions)
}

func (r *RNG) gaussianLocked(num, dimensions int) [][]float32 {
	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = float32(r.rand.NormFloat64())
		}
		vectors[i] = vec
	}

	return vectors
}

// UnitVectors generates L2-normalized random vectors (on the hypersphere).
// Gaussian sampling gives a uniform distribution on the sphere.
func (r *RNG) UnitVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	vectors := r.gaussianLocked(num, dimensions)
	for _, vec := range vectors {
		if !distance.NormalizeL2InPlace(vec) {
			vec[0] = 1
		}
	}
	return vectors
}

// LabeledClusters generates num raw feature vectors around one random unit
// centroid per class, with Gaussian noise scaled by spread. Sample i
// belongs to class i % classes.
func (r *RNG) LabeledClusters(num, dim, classes int, spread float32) ([][]float32, []int) {
	centroids := r.UnitVectors(classes, dim)

	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	vectors := make([][]float32, num)
	labels := make([]int, num)

	for i := range num {
		c := i % classes
		vec := data[i*dim : (i+1)*dim]
		for j := range dim {
			vec[j] = centroids[c][j] + float32(r.rand.NormFloat64())*spread
		}
		vectors[i] = vec
		labels[i] = c
	}

	return vectors, labels
}

// ExactNeighbors returns, for every vector, the indices of its k most
// cosine-similar other vectors by full sort. It is the slow reference
// used to check mined neighbors.
func ExactNeighbors(vectors [][]float32, k int) [][]int {
	normed, err := distance.NormalizeBatch(vectors)
	if err != nil {
		panic(err)
	}

	type cand struct {
		idx int
		sim float32
	}

	out := make([][]int, len(normed))
	cands := make([]cand, 0, len(normed))
	for i, q := range normed {
		cands = cands[:0]
		for j, v := range normed {
			if j == i {
				continue
			}
			cands = append(cands, cand{idx: j, sim: distance.Dot(q, v)})
		}
		slices.SortFunc(cands, func(a, b cand) int {
			switch {
			case a.sim > b.sim:
				return -1
			case a.sim < b.sim:
				return 1
			default:
				return a.idx - b.idx
			}
		})
		row := make([]int, 0, k)
		for _, c := range cands[:min(k, len(cands))] {
			row = append(row, c.idx)
		}
		out[i] = row
	}
	return out
}

// NeighborRecall returns the mean fraction of reference neighbors found in
// the corresponding mined row, ignoring order.
func NeighborRecall(reference [][]int, mined func(i int) []int64) float64 {
	if len(reference) == 0 {
		return 1.0
	}
	var total float64
	for i, ref := range reference {
		if len(ref) == 0 {
			total++
			continue
		}
		got := mined(i)
		hits := 0
		for _, idx := range ref {
			if slices.Contains(got, int64(idx)) {
				hits++
			}
		}
		total += float64(hits) / float64(len(ref))
	}
	return total / float64(len(reference))
}
