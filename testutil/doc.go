// Package testutil provides testing utilities for membank.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random feature vectors, labeled
// clusters, and exact reference neighbor lists.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UnitVectors(1000, 128)
//	feats, labels := rng.LabeledClusters(1000, 128, 10, 0.05)
//
// # Ground Truth
//
//	ref := testutil.ExactNeighbors(feats, k)
//	recall := testutil.NeighborRecall(ref, mined)
package testutil
