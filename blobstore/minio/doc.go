// Package minio provides a blobstore.Store backed by the MinIO client.
//
// It works against MinIO and other S3-compatible object stores (Ceph,
// SeaweedFS, Garage) without pulling in the AWS SDK, which makes it the
// natural choice for on-prem clusters that mine neighbor artifacts next to
// their training data.
//
//	store, err := minioblob.Dial(minioblob.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	    Bucket:    "scan",
//	    Prefix:    "cifar10/",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = neighbors.Save(ctx, store, "topk-train-neighbors.npy", m)
package minio
