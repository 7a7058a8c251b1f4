package main

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/membank"
	"github.com/hupe1980/membank/blobstore"
	"github.com/hupe1980/membank/blobstore/minio"
	"github.com/hupe1980/membank/blobstore/s3"
	"github.com/hupe1980/membank/config"
	"github.com/hupe1980/membank/resource"
)

// openStore returns the artifact store selected by cfg.
func openStore(ctx context.Context, cfg config.Store) (blobstore.Store, error) {
	switch cfg.Kind {
	case config.StoreLocal:
		return blobstore.NewLocalStore(cfg.Root), nil
	case config.StoreMemory:
		return blobstore.NewMemoryStore(), nil
	case config.StoreMinIO:
		return minio.Dial(minio.Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			Secure:    cfg.Secure,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
		})
	case config.StoreS3:
		var optFns []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = &cfg.Endpoint
				o.UsePathStyle = true
			}
		})
		store := s3.NewStore(client, cfg.Bucket, cfg.Prefix)
		if cfg.CommitTable == "" {
			return store, nil
		}
		baseURI := "s3://" + strings.TrimSuffix(cfg.Bucket+"/"+cfg.Prefix, "/")
		return s3.NewDDBCommitStore(store, dynamodb.NewFromConfig(awsCfg), cfg.CommitTable, baseURI), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}

// computeContext maps the compute settings onto a bank compute context.
// A resource controller is attached whenever a limit is configured.
func computeContext(c config.Compute) membank.ComputeContext {
	cc := membank.ComputeContext{
		Workers:   c.Workers,
		ChunkSize: c.ChunkSize,
	}
	if c.MemoryLimitBytes == 0 && c.IOLimitBytesPerSec == 0 {
		return cc
	}
	rc := c.Resources()
	if rc.MaxWorkers <= 0 {
		rc.MaxWorkers = int64(runtime.GOMAXPROCS(0))
	}
	cc.Resources = resource.NewController(rc)
	return cc
}
