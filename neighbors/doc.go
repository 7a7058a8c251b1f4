// Package neighbors holds mined neighbor matrices and persists them as
// NumPy .npy artifacts.
//
// A Matrix is the sole persisted output of neighbor mining: an N×K int64
// array of dataset indices in descending similarity order. Artifacts can be
// written raw (".npy"), LZ4 framed (".npy.lz4") or zstd compressed
// (".npy.zst"); the compression is picked from the artifact name.
//
//	m, acc, _ := bank.MineNearestNeighbors(ctx, 50, true)
//	_ = neighbors.Save(ctx, store, "topk-train-neighbors.npy", m)
//
// Publish additionally moves a "CURRENT" pointer next to the artifact so
// that downstream stages can locate the latest mining run.
package neighbors
