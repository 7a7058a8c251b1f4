package membank

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/membank/distance"
	"github.com/hupe1980/membank/internal/topk"
	"github.com/hupe1980/membank/neighbors"
	"golang.org/x/sync/errgroup"
)

// MineNearestNeighbors returns, for every slot, the k most similar other
// slots in descending cosine similarity (ties broken by lower index).
// A row never lists itself as a neighbor.
//
// When calculateAccuracy is set and every slot is labeled, the second result
// is the mean fraction of neighbors sharing the row's label. Otherwise it is
// NaN.
//
// The bank must be StateFull and 1 <= k <= Capacity()-1. Rows are processed
// in parallel blocks sized by the bound ComputeContext. Either the complete
// matrix or an error is returned.
//
// Example:
//
//	m, acc, err := bank.MineNearestNeighbors(ctx, 20, true, membank.WithSelfIncluded())
func (b *MemoryBank) MineNearestNeighbors(ctx context.Context, k int, calculateAccuracy bool, opts ...MineOption) (_ *neighbors.Matrix, accuracy float64, err error) {
	o := mineOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	n := b.capacity
	start := time.Now()
	accuracy = math.NaN()
	defer func() {
		b.metrics.RecordMine(n, k, time.Since(start), err)
		b.logger.LogMine(ctx, n, k, accuracy, time.Since(start), err)
	}()

	if k < 1 || k > n-1 {
		return nil, accuracy, fmt.Errorf("%w: k=%d for %d samples (need 1 <= k <= %d)", ErrInvalidK, k, n, n-1)
	}
	if b.state != StateFull {
		return nil, accuracy, fmt.Errorf("%w: state %s, %d of %d slots written", ErrUnpopulated, b.state, b.written.GetCardinality(), n)
	}

	width := k
	if o.includeSelf {
		width++
	}
	m := neighbors.NewMatrix(n, width, o.scores)
	m.SelfIncluded = o.includeSelf

	chunk := b.compute.chunkRows(n, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.compute.workers())

	for lo := 0; lo < n; lo += chunk {
		if gctx.Err() != nil {
			break
		}
		hi := min(lo+chunk, n)
		g.Go(func() error {
			return b.mineBlock(gctx, lo, hi, k, m)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, accuracy, err
	}
	if err := ctx.Err(); err != nil {
		return nil, accuracy, err
	}

	if calculateAccuracy && b.labelsAvailable() {
		acc, err := m.Accuracy(b.labels)
		if err != nil {
			return nil, math.NaN(), err
		}
		accuracy = acc
	}
	return m, accuracy, nil
}

// mineBlock fills rows [lo, hi) of m.
func (b *MemoryBank) mineBlock(ctx context.Context, lo, hi, k int, m *neighbors.Matrix) error {
	rc := b.compute.Resources
	if err := rc.AcquireWorker(ctx); err != nil {
		return err
	}
	defer rc.ReleaseWorker()

	n, d := b.capacity, b.dimension
	rows := hi - lo
	bytes := int64(rows) * int64(n) * 4
	if err := rc.AcquireMemory(ctx, bytes); err != nil {
		return fmt.Errorf("similarity block rows [%d, %d): %w", lo, hi, err)
	}
	defer rc.ReleaseMemory(bytes)

	sims := make([]float32, rows*n)
	distance.SimilarityBlock(b.features[lo*d:hi*d], rows, b.features, n, d, sims)

	sel := topk.New(k)
	items := make([]topk.Item, 0, k)

	for r := range rows {
		i := lo + r
		sel.Reset()
		sel.PushScores(sims[r*n:(r+1)*n], 0, i)
		items = sel.AppendSorted(items[:0])

		out := m.Row(i)
		scores := m.RowScores(i)
		col := 0
		if m.SelfIncluded {
			out[0] = int64(i)
			if scores != nil {
				scores[0] = sims[r*n+i]
			}
			col = 1
		}

		for j, it := range items {
			out[col+j] = int64(it.Index)
			if scores != nil {
				scores[col+j] = it.Score
			}
		}
	}
	return nil
}
