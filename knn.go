package membank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/hupe1980/membank/distance"
	"github.com/hupe1980/membank/internal/topk"
	"github.com/hupe1980/membank/neighbors"
)

// Prediction is the result of KNNPredict.
type Prediction struct {
	// Neighbors holds the k nearest bank slots of every query, with scores.
	Neighbors *neighbors.Matrix

	// Classes ranks the class ids of every query by descending vote.
	// Nil unless WithClassVotes was given.
	Classes [][]int

	// Votes holds the temperature-weighted vote mass per class id.
	// Nil unless WithClassVotes was given.
	Votes [][]float64
}

// Top1 returns the highest-voted class of every query.
func (p *Prediction) Top1() []int {
	if p.Classes == nil {
		return nil
	}
	out := make([]int, len(p.Classes))
	for i, c := range p.Classes {
		out[i] = c[0]
	}
	return out
}

// ClassAccuracy returns the fraction of queries whose target is among the
// top highest-voted classes (top-1 and top-5 in the usual monitor).
func (p *Prediction) ClassAccuracy(targets []int, top int) (float64, error) {
	if p.Classes == nil {
		return 0, fmt.Errorf("%w: prediction has no class votes", ErrLabelsUnavailable)
	}
	if len(targets) != len(p.Classes) {
		return 0, fmt.Errorf("%w: %d targets for %d queries", ErrBatchLength, len(targets), len(p.Classes))
	}
	if top < 1 {
		return 0, errors.New("top must be positive")
	}
	if len(targets) == 0 {
		return 0, nil
	}
	hits := 0
	for i, t := range targets {
		ranked := p.Classes[i]
		if slices.Contains(ranked[:min(top, len(ranked))], t) {
			hits++
		}
	}
	return float64(hits) / float64(len(targets)), nil
}

// KNNPredict finds the k most similar bank slots for every query. Queries
// are compared as given; normalize them for cosine similarity. The bank is
// never modified.
//
// With WithClassVotes every neighbor adds exp(sim/T) to its label's vote and
// classes are ranked by descending vote, ties broken by lower class id.
//
// Example:
//
//	pred, err := bank.KNNPredict(ctx, queries, 200, membank.WithClassVotes())
//	top1, _ := pred.ClassAccuracy(targets, 1)
func (b *MemoryBank) KNNPredict(ctx context.Context, queries [][]float32, k int, opts ...PredictOption) (_ *Prediction, err error) {
	o := predictOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	start := time.Now()
	defer func() {
		b.metrics.RecordPredict(len(queries), k, time.Since(start), err)
		b.logger.LogPredict(ctx, len(queries), k, err)
	}()

	n, d := b.capacity, b.dimension
	if k < 1 || k > n {
		return nil, fmt.Errorf("%w: k=%d for %d samples (need 1 <= k <= %d)", ErrInvalidK, k, n, n)
	}
	if b.state != StateFull {
		return nil, fmt.Errorf("%w: state %s", ErrUnpopulated, b.state)
	}
	if o.votes && !b.labelsAvailable() {
		return nil, fmt.Errorf("%w: class votes need every slot labeled", ErrLabelsUnavailable)
	}

	flat := make([]float32, len(queries)*d)
	for i, q := range queries {
		if len(q) != d {
			return nil, &ErrDimensionMismatch{Expected: d, Actual: len(q)}
		}
		copy(flat[i*d:], q)
	}

	nq := len(queries)
	m := neighbors.NewMatrix(nq, k, true)
	p := &Prediction{Neighbors: m}
	if o.votes {
		p.Classes = make([][]int, nq)
		p.Votes = make([][]float64, nq)
	}

	chunk := b.compute.chunkRows(nq, n)
	sel := topk.New(k)
	items := make([]topk.Item, 0, k)
	sims := make([]float32, chunk*n)

	for lo := 0; lo < nq; lo += chunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := min(lo+chunk, nq)
		rows := hi - lo
		distance.SimilarityBlock(flat[lo*d:hi*d], rows, b.features, n, d, sims)

		for r := range rows {
			i := lo + r
			sel.Reset()
			sel.PushScores(sims[r*n:(r+1)*n], 0, -1)
			items = sel.AppendSorted(items[:0])

			idx, scores := m.Row(i), m.RowScores(i)
			for j, it := range items {
				idx[j] = int64(it.Index)
				scores[j] = it.Score
			}
			if o.votes {
				p.Votes[i], p.Classes[i] = b.vote(items)
			}
		}
	}
	return p, nil
}

func (b *MemoryBank) vote(items []topk.Item) ([]float64, []int) {
	votes := make([]float64, b.numClasses)
	t := float64(b.temperature)
	for _, it := range items {
		votes[b.labels[it.Index]] += math.Exp(float64(it.Score) / t)
	}
	classes := make([]int, b.numClasses)
	for c := range classes {
		classes[c] = c
	}
	slices.SortStableFunc(classes, func(a, c int) int {
		switch {
		case votes[a] > votes[c]:
			return -1
		case votes[a] < votes[c]:
			return 1
		default:
			return 0
		}
	})
	return votes, classes
}
