// Package s3 provides an S3 implementation of the blobstore.Store interface.
//
// # Usage
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(s3sdk.NewFromConfig(cfg), "my-bucket", "scan/")
//	_ = neighbors.Save(ctx, store, "topk-train-neighbors.npy", m)
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads for large neighbor artifacts
//   - CRC32C integrity checks on uploads
//   - Automatic pagination for listing
//   - DynamoDB-backed CURRENT pointers for concurrent publishers (DDBCommitStore)
package s3
