package membank

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/membank/distance"
)

// NoLabel marks a slot whose ground-truth label is unknown.
const NoLabel = -1

// State is the population state of a MemoryBank.
type State int

const (
	// StateEmpty means no slot has been written in the current pass.
	StateEmpty State = iota
	// StatePopulating means some, but not all, slots have been written.
	StatePopulating
	// StateFull means every slot has been written in the current pass.
	StateFull
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StatePopulating:
		return "POPULATING"
	case StateFull:
		return "FULL"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MemoryBank stores one L2-normalized feature vector and one label per
// dataset index.
//
// Features live in a single row-major capacity×dimension slice so that
// similarity blocks can be computed with one BLAS call. A roaring bitmap
// tracks which slots were written in the current pass.
//
// MemoryBank is safe for concurrent use: mining and prediction take a read
// lock and may overlap; updates are exclusive.
type MemoryBank struct {
	mu sync.RWMutex

	features []float32
	labels   []int
	written  *roaring.Bitmap
	state    State

	capacity    int
	dimension   int
	numClasses  int
	temperature float32

	logger  *Logger
	metrics MetricsCollector
	compute ComputeContext
}

// New creates an empty bank for capacity samples of the given dimension.
//
// Example:
//
//	bank, err := membank.New(len(dataset), 2048, 10, 0.1)
func New(capacity, dimension, numClasses int, temperature float32, opts ...Option) (*MemoryBank, error) {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		compute:          DefaultComputeContext(),
	}
	for _, fn := range opts {
		fn(&o)
	}

	b := &MemoryBank{
		logger:  o.logger,
		metrics: o.metricsCollector,
		compute: o.compute,
	}
	if err := b.reset(capacity, dimension, numClasses, temperature); err != nil {
		return nil, err
	}
	return b, nil
}

func validateShape(capacity, dimension, numClasses int, temperature float32) error {
	if capacity < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if dimension < 1 {
		return &ErrInvalidDimension{Dimension: dimension}
	}
	if numClasses < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidNumClasses, numClasses)
	}
	t := float64(temperature)
	if t <= 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTemperature, temperature)
	}
	return nil
}

// Reset reallocates storage for a new shape and returns the bank to
// StateEmpty. Options given to New are kept.
func (b *MemoryBank) Reset(capacity, dimension, numClasses int, temperature float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.reset(capacity, dimension, numClasses, temperature)
}

func (b *MemoryBank) reset(capacity, dimension, numClasses int, temperature float32) error {
	if err := validateShape(capacity, dimension, numClasses, temperature); err != nil {
		return err
	}

	b.features = make([]float32, capacity*dimension)
	b.labels = make([]int, capacity)
	for i := range b.labels {
		b.labels[i] = NoLabel
	}
	b.written = roaring.New()
	b.state = StateEmpty
	b.capacity = capacity
	b.dimension = dimension
	b.numClasses = numClasses
	b.temperature = temperature
	return nil
}

// To binds the bank to a compute context. Storage is not moved; the context
// only decides how future similarity work is scheduled.
func (b *MemoryBank) To(cc ComputeContext) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.compute = cc
}

// ComputeContext returns the bound compute context.
func (b *MemoryBank) ComputeContext() ComputeContext {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.compute
}

// State returns the population state.
func (b *MemoryBank) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.state
}

// Capacity returns the number of slots (N).
func (b *MemoryBank) Capacity() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.capacity
}

// Dimension returns the feature dimension (D).
func (b *MemoryBank) Dimension() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.dimension
}

// NumClasses returns the number of label classes (C).
func (b *MemoryBank) NumClasses() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.numClasses
}

// Temperature returns the voting temperature (T).
func (b *MemoryBank) Temperature() float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.temperature
}

// Written returns the number of distinct slots written in the current pass.
func (b *MemoryBank) Written() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return int(b.written.GetCardinality())
}

// Coverage returns a copy of the bitmap of slots written in the current pass.
func (b *MemoryBank) Coverage() *roaring.Bitmap {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.written.Clone()
}

// Get returns a copy of the stored feature and the label of slot i.
func (b *MemoryBank) Get(i int) ([]float32, int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if i < 0 || i >= b.capacity {
		return nil, NoLabel, &ErrIndexOutOfRange{Index: i, Capacity: b.capacity}
	}
	return slices.Clone(b.row(i)), b.labels[i], nil
}

// LabelsAvailable reports whether every slot carries a label.
func (b *MemoryBank) LabelsAvailable() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.labelsAvailable()
}

func (b *MemoryBank) labelsAvailable() bool {
	return !slices.Contains(b.labels, NoLabel)
}

func (b *MemoryBank) row(i int) []float32 {
	return b.features[i*b.dimension : (i+1)*b.dimension]
}

// Update L2-normalizes features[j] into slot indices[j] and records
// labels[j]. labels may be nil, in which case every slot is stored with
// NoLabel. The whole batch is validated before any slot is written; an
// invalid sample leaves the bank untouched. Writing a slot twice keeps the
// last value.
func (b *MemoryBank) Update(ctx context.Context, indices []int, features [][]float32, labels []int) error {
	return b.update(ctx, indices, features, labels, false)
}

// beginPass clears coverage so that a new population pass can start.
// Stored features and labels are kept until overwritten.
func (b *MemoryBank) beginPass() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.written.Clear()
	b.state = StateEmpty
}

func (b *MemoryBank) update(ctx context.Context, indices []int, features [][]float32, labels []int, rejectRevisit bool) (err error) {
	start := time.Now()
	defer func() {
		b.metrics.RecordUpdate(len(indices), time.Since(start), err)
		b.logger.LogUpdate(ctx, len(indices), err)
	}()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.validate(indices, features, labels, rejectRevisit); err != nil {
		return err
	}

	for j, idx := range indices {
		slot := b.row(idx)
		copy(slot, features[j])
		// Norm was checked by validate.
		distance.NormalizeL2InPlace(slot)

		if labels != nil {
			b.labels[idx] = labels[j]
		} else {
			b.labels[idx] = NoLabel
		}
		b.written.Add(uint32(idx))
	}

	if int(b.written.GetCardinality()) == b.capacity {
		b.state = StateFull
	} else if !b.written.IsEmpty() {
		b.state = StatePopulating
	}
	return nil
}

func (b *MemoryBank) validate(indices []int, features [][]float32, labels []int, rejectRevisit bool) error {
	if len(features) != len(indices) {
		return fmt.Errorf("%w: %d indices, %d features", ErrBatchLength, len(indices), len(features))
	}
	if labels != nil && len(labels) != len(indices) {
		return fmt.Errorf("%w: %d indices, %d labels", ErrBatchLength, len(indices), len(labels))
	}

	var seen *roaring.Bitmap
	if rejectRevisit {
		seen = roaring.New()
	}

	for j, idx := range indices {
		if idx < 0 || idx >= b.capacity {
			return &ErrIndexOutOfRange{Index: idx, Capacity: b.capacity}
		}
		if len(features[j]) != b.dimension {
			return &ErrDimensionMismatch{Expected: b.dimension, Actual: len(features[j])}
		}
		n := float64(distance.Norm(features[j]))
		if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			return fmt.Errorf("sample %d (index %d): %w", j, idx, distance.ErrZeroNorm)
		}
		if labels != nil {
			if l := labels[j]; l != NoLabel && (l < 0 || l >= b.numClasses) {
				return &ErrInvalidLabel{Label: l, NumClasses: b.numClasses}
			}
		}
		if rejectRevisit {
			if b.written.Contains(uint32(idx)) || !seen.CheckedAdd(uint32(idx)) {
				return fmt.Errorf("%w: %d", ErrDuplicateIndex, idx)
			}
		}
	}
	return nil
}
