package benchmark_test

import (
	"context"
	"runtime"
	"testing"

	"github.com/hupe1980/membank"
	"github.com/hupe1980/membank/resource"
	"github.com/hupe1980/membank/testutil"
)

// BenchmarkMine measures exact top-k mining across bank sizes.
func BenchmarkMine(b *testing.B) {
	const dim = 128

	for _, n := range []int{1_000, 5_000, 20_000} {
		b.Run(formatCount(n), func(b *testing.B) {
			bank := filledBank(b, n, dim)
			ctx := context.Background()
			b.ResetTimer()

			for b.Loop() {
				if _, _, err := bank.MineNearestNeighbors(ctx, 20, true); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkMineDimensions measures mining cost against feature width.
func BenchmarkMineDimensions(b *testing.B) {
	for _, dim := range []int{128, 512, 2048} {
		b.Run(formatDim(dim), func(b *testing.B) {
			bank := filledBank(b, 2_000, dim)
			ctx := context.Background()
			b.ResetTimer()

			for b.Loop() {
				if _, _, err := bank.MineNearestNeighbors(ctx, 50, false); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkMineMemoryLimit compares unbounded blocks with a tight budget.
func BenchmarkMineMemoryLimit(b *testing.B) {
	const (
		n   = 10_000
		dim = 128
	)
	limits := map[string]int64{
		"unbounded": 0,
		"4MiB":      4 << 20,
	}

	for name, limit := range limits {
		b.Run(name, func(b *testing.B) {
			cc := membank.DefaultComputeContext()
			if limit > 0 {
				cc.Resources = resource.NewController(resource.Config{
					MemoryLimitBytes: limit,
					MaxWorkers:       int64(runtime.GOMAXPROCS(0)),
				})
			}
			bank := filledBank(b, n, dim, membank.WithComputeContext(cc))
			ctx := context.Background()
			b.ResetTimer()

			for b.Loop() {
				if _, _, err := bank.MineNearestNeighbors(ctx, 20, false); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkFill measures a full population pass with and without
// concurrent encoding.
func BenchmarkFill(b *testing.B) {
	const (
		n   = 20_000
		dim = 256
	)
	rng := testutil.NewRNG(7)
	features, labels := rng.LabeledClusters(n, dim, 10, 0.2)

	for _, workers := range []int{1, 4} {
		b.Run(formatCount(workers)+"-workers", func(b *testing.B) {
			bank, err := membank.New(n, dim, 10, 0.1)
			if err != nil {
				b.Fatal(err)
			}
			src := membank.NewSliceSource(features, labels, 512)
			ctx := context.Background()
			b.ResetTimer()

			for b.Loop() {
				src.Rewind()
				if err := membank.Fill(ctx, src, membank.IdentityEncoder(), bank, membank.WithFillWorkers(workers)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkKNNPredict measures weighted voting for a batch of queries.
func BenchmarkKNNPredict(b *testing.B) {
	const dim = 128
	bank := filledBank(b, 10_000, dim)
	queries := testutil.NewRNG(3).UnitVectors(256, dim)
	ctx := context.Background()
	b.ResetTimer()

	for b.Loop() {
		if _, err := bank.KNNPredict(ctx, queries, 200, membank.WithClassVotes()); err != nil {
			b.Fatal(err)
		}
	}
}
