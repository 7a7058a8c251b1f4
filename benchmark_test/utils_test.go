package benchmark_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/hupe1980/membank"
	"github.com/hupe1980/membank/testutil"
)

func formatDim(dim int) string {
	return fmt.Sprintf("dim=%d", dim)
}

func formatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("n=%dM", n/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("n=%dK", n/1_000)
	default:
		return fmt.Sprintf("n=%d", n)
	}
}

// filledBank returns a FULL bank of n clustered vectors.
func filledBank(b *testing.B, n, dim int, opts ...membank.Option) *membank.MemoryBank {
	b.Helper()

	rng := testutil.NewRNG(42)
	features, labels := rng.LabeledClusters(n, dim, 10, 0.2)

	bank, err := membank.New(n, dim, 10, 0.1, opts...)
	if err != nil {
		b.Fatal(err)
	}
	src := membank.NewSliceSource(features, labels, 1024)
	if err := membank.Fill(context.Background(), src, membank.IdentityEncoder(), bank); err != nil {
		b.Fatal(err)
	}
	return bank
}
