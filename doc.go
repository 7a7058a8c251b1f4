// Package membank provides an in-memory feature bank with exact k-nearest
// neighbor mining for SCAN-style self-supervised clustering pipelines.
//
// A MemoryBank holds one L2-normalized feature vector and one label per
// dataset index. Once every slot has been written, the bank can mine the
// exact top-k cosine neighbors of every sample, score them against the
// ground-truth labels, and answer kNN queries with temperature-weighted
// class votes.
//
// # Quick Start
//
//	ctx := context.Background()
//	bank, _ := membank.New(len(images), 2048, 10, 0.1)
//
//	// One population pass: encode every batch and store the features.
//	src := membank.NewSliceSource(images, labels, 256)
//	if err := membank.Fill(ctx, src, model, bank); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Mine the 50 nearest neighbors of every sample.
//	m, acc, _ := bank.MineNearestNeighbors(ctx, 50, true)
//	fmt.Printf("top-50 neighbor accuracy: %.2f\n", 100*acc)
//
//	// Persist the N×50 index matrix as a NumPy artifact.
//	_ = neighbors.Save(ctx, blobstore.NewLocalStore("./out"), "topk-train-neighbors.npy", m)
//
// # Lifecycle
//
// A bank starts EMPTY, becomes POPULATING on the first Update and FULL once
// every slot has been written in the current pass. Mining and prediction
// require FULL and fail with ErrUnpopulated otherwise. Fill starts a fresh
// pass and rejects a dataset index produced twice.
//
// # Compute
//
// Similarity is computed block-wise with a single BLAS GEMM per block. The
// ComputeContext bound with WithComputeContext or To decides the number of
// parallel blocks, the rows per block, and an optional resource.Controller
// that caps block memory across banks.
//
// # Key Features
//
//   - Exact brute-force cosine kNN (no approximation)
//   - Deterministic ordering: descending similarity, ties by lower index
//   - Self-exclusion by index, optional SCAN N×(k+1) layout (WithSelfIncluded)
//   - Parallel encoder fan-out during population (WithFillWorkers)
//   - Structured logging (log/slog) and pluggable metrics
package membank
