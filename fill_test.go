package membank

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/membank/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource replays fixed batches.
type scriptedSource struct {
	batches []Batch[[]float32]
	pos     int
	err     error
}

func (s *scriptedSource) Next(context.Context) (Batch[[]float32], error) {
	if s.pos >= len(s.batches) {
		if s.err != nil {
			return Batch[[]float32]{}, s.err
		}
		return Batch[[]float32]{}, io.EOF
	}
	b := s.batches[s.pos]
	s.pos++
	return b, nil
}

func TestFill_CoversEverySlotOnce(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(9)
	const n = 103
	feats, labels := rng.LabeledClusters(n, 8, 5, 0.1)

	for _, workers := range []int{1, 4} {
		b := newTestBank(t, n, 8, 5)
		src := NewSliceSource(feats, labels, 10)
		src.Shuffle(uint64(workers))

		require.NoError(t, Fill(ctx, src, IdentityEncoder(), b, WithFillWorkers(workers)))

		assert.Equal(t, StateFull, b.State())
		cov := b.Coverage()
		assert.Equal(t, uint64(n), cov.GetCardinality())
		assert.Equal(t, uint32(0), cov.Minimum())
		assert.Equal(t, uint32(n-1), cov.Maximum())

		for i := range n {
			_, label, err := b.Get(i)
			require.NoError(t, err)
			assert.Equal(t, labels[i], label)
		}
	}
}

func TestFill_ParallelMatchesSequential(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(21)
	feats, labels := rng.LabeledClusters(80, 6, 4, 0.2)

	seq := newTestBank(t, 80, 6, 4)
	require.NoError(t, Fill(ctx, NewSliceSource(feats, labels, 7), IdentityEncoder(), seq))

	par := newTestBank(t, 80, 6, 4)
	require.NoError(t, Fill(ctx, NewSliceSource(feats, labels, 7), IdentityEncoder(), par, WithFillWorkers(8)))

	m1, acc1, err := seq.MineNearestNeighbors(ctx, 4, true)
	require.NoError(t, err)
	m2, acc2, err := par.MineNearestNeighbors(ctx, 4, true)
	require.NoError(t, err)
	assert.Equal(t, m1.Indices, m2.Indices)
	assert.Equal(t, acc1, acc2)
}

func TestFill_DuplicateIndex(t *testing.T) {
	ctx := context.Background()
	b := newTestBank(t, 2, 2, 1)
	src := &scriptedSource{batches: []Batch[[]float32]{
		{Inputs: [][]float32{{1, 0}}, Indices: []int{0}},
		{Inputs: [][]float32{{0, 1}}, Indices: []int{0}},
	}}

	err := Fill(ctx, src, IdentityEncoder(), b)
	assert.ErrorIs(t, err, ErrDuplicateIndex)

	// The first batch stays applied.
	assert.Equal(t, 1, b.Written())
	v, _, _ := b.Get(0)
	assert.Equal(t, []float32{1, 0}, v)
}

func TestFill_DuplicateWithinBatch(t *testing.T) {
	b := newTestBank(t, 2, 2, 1)
	src := &scriptedSource{batches: []Batch[[]float32]{
		{Inputs: [][]float32{{1, 0}, {0, 1}}, Indices: []int{1, 1}},
	}}

	err := Fill(context.Background(), src, IdentityEncoder(), b)
	assert.ErrorIs(t, err, ErrDuplicateIndex)
	assert.Equal(t, 0, b.Written())
}

func TestFill_IncompletePass(t *testing.T) {
	b := newTestBank(t, 3, 2, 1)
	src := NewSliceSource([][]float32{{1, 0}, {0, 1}}, nil, 1)

	err := Fill(context.Background(), src, IdentityEncoder(), b)

	var ip *ErrIncompletePass
	require.ErrorAs(t, err, &ip)
	assert.Equal(t, 2, ip.Written)
	assert.Equal(t, 3, ip.Capacity)
	assert.ErrorIs(t, err, ErrUnpopulated)
	assert.Equal(t, StatePopulating, b.State())
}

func TestFill_StartsFreshPass(t *testing.T) {
	ctx := context.Background()
	feats := [][]float32{{1, 0}, {0, 1}}
	b := newTestBank(t, 2, 2, 1)

	src := NewSliceSource(feats, nil, 1)
	require.NoError(t, Fill(ctx, src, IdentityEncoder(), b))

	// A second pass over the same indices is not a duplicate.
	src.Rewind()
	require.NoError(t, Fill(ctx, src, IdentityEncoder(), b))
	assert.Equal(t, StateFull, b.State())
}

func TestFill_EncoderErrors(t *testing.T) {
	ctx := context.Background()
	feats := [][]float32{{1, 0}, {0, 1}, {1, 1}, {1, -1}}
	boom := errors.New("boom")

	for _, workers := range []int{1, 3} {
		var calls atomic.Int32
		enc := EncoderFunc[[]float32](func(_ context.Context, in [][]float32) ([][]float32, error) {
			if calls.Add(1) == 2 {
				return nil, boom
			}
			return in, nil
		})

		b := newTestBank(t, 4, 2, 1)
		err := Fill(ctx, NewSliceSource(feats, nil, 1), enc, b, WithFillWorkers(workers))
		assert.ErrorIs(t, err, boom, "workers=%d", workers)
		assert.NotEqual(t, StateFull, b.State())
	}
}

func TestFill_NoEncoderOutlivesFailedPass(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(21)
	const n = 64
	feats, _ := rng.LabeledClusters(n, 4, 2, 0.1)
	boom := errors.New("boom")

	var inFlight, calls atomic.Int32
	enc := EncoderFunc[[]float32](func(_ context.Context, in [][]float32) ([][]float32, error) {
		inFlight.Add(1)
		defer inFlight.Add(-1)
		if calls.Add(1) == 1 {
			return nil, boom
		}
		time.Sleep(20 * time.Millisecond)
		return in, nil
	})

	b := newTestBank(t, n, 4, 2)
	err := Fill(ctx, NewSliceSource(feats, nil, 4), enc, b, WithFillWorkers(4))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(0), inFlight.Load())
}

func TestFill_EncoderShortOutput(t *testing.T) {
	enc := EncoderFunc[[]float32](func(_ context.Context, in [][]float32) ([][]float32, error) {
		return in[:len(in)-1], nil
	})
	b := newTestBank(t, 2, 2, 1)

	err := Fill(context.Background(), NewSliceSource([][]float32{{1, 0}, {0, 1}}, nil, 2), enc, b)
	assert.ErrorIs(t, err, ErrIncompleteOutput)
}

func TestFill_SourceError(t *testing.T) {
	broken := errors.New("disk gone")
	src := &scriptedSource{
		batches: []Batch[[]float32]{{Inputs: [][]float32{{1, 0}}, Indices: []int{0}}},
		err:     broken,
	}
	b := newTestBank(t, 2, 2, 1)

	assert.ErrorIs(t, Fill(context.Background(), src, IdentityEncoder(), b, WithFillWorkers(2)), broken)
}

func TestFill_BatchShapeMismatch(t *testing.T) {
	src := &scriptedSource{batches: []Batch[[]float32]{
		{Inputs: [][]float32{{1, 0}}, Indices: []int{0, 1}},
	}}
	b := newTestBank(t, 2, 2, 1)

	assert.ErrorIs(t, Fill(context.Background(), src, IdentityEncoder(), b), ErrBatchLength)
}

func TestFill_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := newTestBank(t, 2, 2, 1)

	err := Fill(ctx, NewSliceSource([][]float32{{1, 0}, {0, 1}}, nil, 1), IdentityEncoder(), b, WithFillWorkers(2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFill_Metrics(t *testing.T) {
	mc := &BasicMetricsCollector{}
	b := newTestBank(t, 4, 2, 1, WithMetricsCollector(mc))
	feats := [][]float32{{1, 0}, {0, 1}, {1, 1}, {1, -1}}

	require.NoError(t, Fill(context.Background(), NewSliceSource(feats, nil, 2), IdentityEncoder(), b))

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.FillCount)
	assert.Equal(t, int64(2), stats.FillBatches)
	assert.Equal(t, int64(2), stats.UpdateCount)
	assert.Equal(t, int64(4), stats.UpdateSamples)
}

func TestSliceSource(t *testing.T) {
	ctx := context.Background()
	src := NewSliceSource([]string{"a", "b", "c"}, []int{0, 1, 0}, 2)

	b1, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, b1.Inputs)
	assert.Equal(t, []int{0, 1}, b1.Indices)
	assert.Equal(t, []int{0, 1}, b1.Labels)

	b2, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, b2.Indices)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	src.Shuffle(1)
	seen := map[int]string{}
	for {
		b, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		for j, i := range b.Indices {
			seen[i] = b.Inputs[j]
		}
	}
	assert.Equal(t, map[int]string{0: "a", 1: "b", 2: "c"}, seen)
}
