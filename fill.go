package membank

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultProgressEvery is the default batch interval of Fill progress logs.
const DefaultProgressEvery = 25

// Batch is one step of a population pass.
type Batch[T any] struct {
	// Inputs are the raw samples handed to the Encoder.
	Inputs []T
	// Labels holds one label per input, or nil when unlabeled.
	Labels []int
	// Indices holds the dataset index of every input.
	Indices []int
}

// Source yields batches for a population pass and returns io.EOF once
// every batch has been produced.
type Source[T any] interface {
	Next(ctx context.Context) (Batch[T], error)
}

// Encoder maps a batch of inputs to raw (unnormalized) feature vectors.
// Implementations run in inference mode; Fill never needs gradients.
type Encoder[T any] interface {
	Encode(ctx context.Context, inputs []T) ([][]float32, error)
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc[T any] func(ctx context.Context, inputs []T) ([][]float32, error)

// Encode calls f.
func (f EncoderFunc[T]) Encode(ctx context.Context, inputs []T) ([][]float32, error) {
	return f(ctx, inputs)
}

// IdentityEncoder passes precomputed feature vectors through unchanged.
func IdentityEncoder() Encoder[[]float32] {
	return EncoderFunc[[]float32](func(_ context.Context, inputs [][]float32) ([][]float32, error) {
		return inputs, nil
	})
}

// SliceSource serves in-memory inputs in fixed-size batches.
// Dataset indices are positions in the input slice.
type SliceSource[T any] struct {
	mu        sync.Mutex
	inputs    []T
	labels    []int
	order     []int
	batchSize int
	pos       int
}

// NewSliceSource creates a source over inputs. labels may be nil.
// batchSize <= 0 serves everything in one batch.
func NewSliceSource[T any](inputs []T, labels []int, batchSize int) *SliceSource[T] {
	if batchSize <= 0 {
		batchSize = max(len(inputs), 1)
	}
	order := make([]int, len(inputs))
	for i := range order {
		order[i] = i
	}
	return &SliceSource[T]{
		inputs:    inputs,
		labels:    labels,
		order:     order,
		batchSize: batchSize,
	}
}

// Shuffle permutes the visiting order deterministically and rewinds.
// Dataset indices are unaffected, so the filled bank is identical.
func (s *SliceSource[T]) Shuffle(seed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r.Shuffle(len(s.order), func(i, j int) {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	})
	s.pos = 0
}

// Rewind restarts the source from the first batch.
func (s *SliceSource[T]) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pos = 0
}

// Next returns the next batch or io.EOF.
func (s *SliceSource[T]) Next(ctx context.Context) (Batch[T], error) {
	if err := ctx.Err(); err != nil {
		return Batch[T]{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.order) {
		return Batch[T]{}, io.EOF
	}
	end := min(s.pos+s.batchSize, len(s.order))
	idx := s.order[s.pos:end]
	s.pos = end

	b := Batch[T]{
		Inputs:  make([]T, len(idx)),
		Indices: make([]int, len(idx)),
	}
	if s.labels != nil {
		b.Labels = make([]int, len(idx))
	}
	for j, i := range idx {
		b.Inputs[j] = s.inputs[i]
		b.Indices[j] = i
		if s.labels != nil {
			b.Labels[j] = s.labels[i]
		}
	}
	return b, nil
}

// Fill runs one population pass: every batch of src is encoded by enc and
// written into bank. Coverage is cleared first; stored vectors are kept
// until overwritten.
//
// Fill fails with ErrDuplicateIndex if a dataset index is produced twice and
// with *ErrIncompletePass if src ends before every slot was written. On
// error the bank is left partially populated.
//
// Example:
//
//	src := membank.NewSliceSource(images, labels, 256)
//	err := membank.Fill(ctx, src, model, bank, membank.WithFillWorkers(4))
func Fill[T any](ctx context.Context, src Source[T], enc Encoder[T], bank *MemoryBank, opts ...FillOption) (err error) {
	o := fillOptions{
		workers:       1,
		progressEvery: DefaultProgressEvery,
	}
	for _, fn := range opts {
		fn(&o)
	}

	f := &filler[T]{
		bank:     bank,
		enc:      enc,
		capacity: bank.Capacity(),
	}
	if o.progressEvery > 0 {
		f.progress = &rate.Sometimes{Every: o.progressEvery}
	}

	start := time.Now()
	defer func() {
		written := bank.Written()
		bank.metrics.RecordFill(f.batches, written, time.Since(start), err)
		bank.logger.LogFill(ctx, f.batches, written, time.Since(start), err)
	}()

	bank.beginPass()

	if o.workers <= 1 {
		err = f.runSequential(ctx, src)
	} else {
		err = f.runParallel(ctx, src, o.workers)
	}
	if err != nil {
		return err
	}

	if written := bank.Written(); written != f.capacity {
		return &ErrIncompletePass{Written: written, Capacity: f.capacity}
	}
	return nil
}

type filler[T any] struct {
	bank     *MemoryBank
	enc      Encoder[T]
	capacity int
	batches  int
	progress *rate.Sometimes
}

type encoded struct {
	batch    int
	indices  []int
	labels   []int
	features [][]float32
	err      error
}

func (f *filler[T]) encode(ctx context.Context, n int, b Batch[T]) encoded {
	res := encoded{batch: n, indices: b.Indices, labels: b.Labels}
	if len(b.Inputs) != len(b.Indices) {
		res.err = fmt.Errorf("batch %d: %w: %d inputs, %d indices", n, ErrBatchLength, len(b.Inputs), len(b.Indices))
		return res
	}
	feats, err := f.enc.Encode(ctx, b.Inputs)
	if err != nil {
		res.err = fmt.Errorf("batch %d: encode: %w", n, err)
		return res
	}
	if len(feats) != len(b.Indices) {
		res.err = fmt.Errorf("batch %d: %w: %d features for %d inputs", n, ErrIncompleteOutput, len(feats), len(b.Indices))
		return res
	}
	res.features = feats
	return res
}

func (f *filler[T]) apply(ctx context.Context, res encoded) error {
	if res.err != nil {
		return res.err
	}
	if err := f.bank.update(ctx, res.indices, res.features, res.labels, true); err != nil {
		return fmt.Errorf("batch %d: %w", res.batch, err)
	}
	f.batches++
	if f.progress != nil {
		f.progress.Do(func() {
			f.bank.logger.LogFillProgress(ctx, res.batch, f.bank.Written(), f.capacity)
		})
	}
	return nil
}

func (f *filler[T]) runSequential(ctx context.Context, src Source[T]) error {
	for n := 0; ; n++ {
		b, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("batch %d: source: %w", n, err)
		}
		if err := f.apply(ctx, f.encode(ctx, n, b)); err != nil {
			return err
		}
	}
}

// runParallel encodes up to workers batches concurrently while a single
// writer applies results in source order. Encoders run inside the group, so
// no Encode call outlives the pass.
func (f *filler[T]) runParallel(ctx context.Context, src Source[T], workers int) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(workers))
	order := make(chan chan encoded, workers)

	g.Go(func() error {
		defer close(order)
		for n := 0; ; n++ {
			b, err := src.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("batch %d: source: %w", n, err)
			}
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			res := make(chan encoded, 1)
			g.Go(func() error {
				defer sem.Release(1)
				res <- f.encode(gctx, n, b)
				return nil
			})
			select {
			case order <- res:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		for res := range order {
			if err := f.apply(gctx, <-res); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}
