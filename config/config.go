// Package config loads the YAML configuration of a neighbor mining run.
//
// A file is decoded on top of Default, then MEMBANK_* environment
// variables override individual fields:
//
//	cfg, err := config.Load("configs/cifar10.yml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bank, _ := membank.New(n, cfg.FeatureDim, cfg.NumClasses, cfg.Temperature)
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/hupe1980/membank/neighbors"
	"github.com/hupe1980/membank/resource"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MEMBANK_"

// Store kinds.
const (
	StoreLocal  = "local"
	StoreMemory = "memory"
	StoreS3     = "s3"
	StoreMinIO  = "minio"
)

// Config describes a mining run.
type Config struct {
	FeatureDim  int     `yaml:"feature_dim"`
	NumClasses  int     `yaml:"num_classes"`
	Temperature float32 `yaml:"temperature"`

	// TopKTrain and TopKVal are the neighbor counts mined per split.
	TopKTrain int `yaml:"topk_train"`
	TopKVal   int `yaml:"topk_val"`

	// IncludeSelf stores every row's own index as column 0.
	IncludeSelf bool `yaml:"include_self"`

	Compression string `yaml:"compression"`

	Paths   Paths   `yaml:"paths"`
	Compute Compute `yaml:"compute"`
	Store   Store   `yaml:"store"`
	Log     Log     `yaml:"log"`
}

// Paths names the inputs and outputs of a run.
type Paths struct {
	TrainFeatures string `yaml:"train_features"`
	TrainLabels   string `yaml:"train_labels"`
	ValFeatures   string `yaml:"val_features"`
	ValLabels     string `yaml:"val_labels"`

	TopKNeighborsTrain string `yaml:"topk_neighbors_train"`
	TopKNeighborsVal   string `yaml:"topk_neighbors_val"`
}

// Compute bounds the similarity work.
type Compute struct {
	Workers            int   `yaml:"workers"`
	ChunkSize          int   `yaml:"chunk_size"`
	MemoryLimitBytes   int64 `yaml:"memory_limit_bytes"`
	IOLimitBytesPerSec int64 `yaml:"io_limit_bytes_per_sec"`
	FillWorkers        int   `yaml:"fill_workers"`
	BatchSize          int   `yaml:"batch_size"`
}

// Store selects where artifacts are written.
type Store struct {
	Kind   string `yaml:"kind"`
	Root   string `yaml:"root"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`

	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`

	// CommitTable enables DynamoDB-backed CURRENT pointers on S3.
	CommitTable string `yaml:"commit_table"`
}

// Log configures the structured logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings of the reference CIFAR-10 pipeline.
func Default() Config {
	return Config{
		FeatureDim:  2048,
		NumClasses:  10,
		Temperature: 0.1,
		TopKTrain:   50,
		TopKVal:     5,
		IncludeSelf: true,
		Compression: "none",
		Paths: Paths{
			TopKNeighborsTrain: "topk/topk-train-neighbors.npy",
			TopKNeighborsVal:   "topk/topk-val-neighbors.npy",
		},
		Compute: Compute{
			FillWorkers: 1,
			BatchSize:   512,
		},
		Store: Store{
			Kind: StoreLocal,
			Root: ".",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default. Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MEMBANK_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	int64v := func(key string, dst *int64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	integer("FEATURE_DIM", &c.FeatureDim)
	integer("NUM_CLASSES", &c.NumClasses)
	if v, ok := lookup(EnvPrefix + "TEMPERATURE"); ok {
		t, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sTEMPERATURE: %w", EnvPrefix, err))
		} else {
			c.Temperature = float32(t)
		}
	}
	integer("TOPK_TRAIN", &c.TopKTrain)
	integer("TOPK_VAL", &c.TopKVal)
	boolean("INCLUDE_SELF", &c.IncludeSelf)
	str("COMPRESSION", &c.Compression)

	integer("WORKERS", &c.Compute.Workers)
	integer("CHUNK_SIZE", &c.Compute.ChunkSize)
	int64v("MEMORY_LIMIT_BYTES", &c.Compute.MemoryLimitBytes)
	int64v("IO_LIMIT_BYTES_PER_SEC", &c.Compute.IOLimitBytesPerSec)
	integer("FILL_WORKERS", &c.Compute.FillWorkers)
	integer("BATCH_SIZE", &c.Compute.BatchSize)

	str("STORE_KIND", &c.Store.Kind)
	str("STORE_ROOT", &c.Store.Root)
	str("STORE_BUCKET", &c.Store.Bucket)
	str("STORE_PREFIX", &c.Store.Prefix)
	str("STORE_REGION", &c.Store.Region)
	str("STORE_ENDPOINT", &c.Store.Endpoint)
	str("STORE_ACCESS_KEY", &c.Store.AccessKey)
	str("STORE_SECRET_KEY", &c.Store.SecretKey)
	boolean("STORE_SECURE", &c.Store.Secure)
	str("STORE_COMMIT_TABLE", &c.Store.CommitTable)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if c.FeatureDim < 1 {
		errs = append(errs, fmt.Errorf("feature_dim must be positive, got %d", c.FeatureDim))
	}
	if c.NumClasses < 1 {
		errs = append(errs, fmt.Errorf("num_classes must be positive, got %d", c.NumClasses))
	}
	if t := float64(c.Temperature); t <= 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		errs = append(errs, fmt.Errorf("temperature must be positive, got %v", c.Temperature))
	}
	if c.TopKTrain < 1 {
		errs = append(errs, fmt.Errorf("topk_train must be positive, got %d", c.TopKTrain))
	}
	if c.TopKVal < 1 {
		errs = append(errs, fmt.Errorf("topk_val must be positive, got %d", c.TopKVal))
	}
	if _, err := neighbors.ParseCompression(c.Compression); err != nil {
		errs = append(errs, err)
	}
	if c.Compute.Workers < 0 || c.Compute.ChunkSize < 0 || c.Compute.FillWorkers < 0 || c.Compute.BatchSize < 0 {
		errs = append(errs, errors.New("compute settings must not be negative"))
	}
	if c.Compute.MemoryLimitBytes < 0 || c.Compute.IOLimitBytesPerSec < 0 {
		errs = append(errs, errors.New("compute limits must not be negative"))
	}

	switch c.Store.Kind {
	case StoreLocal:
		if c.Store.Root == "" {
			errs = append(errs, errors.New("store.root is required for local stores"))
		}
	case StoreMemory:
	case StoreS3:
		if c.Store.Bucket == "" {
			errs = append(errs, errors.New("store.bucket is required for s3 stores"))
		}
	case StoreMinIO:
		if c.Store.Bucket == "" || c.Store.Endpoint == "" {
			errs = append(errs, errors.New("store.bucket and store.endpoint are required for minio stores"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.kind %q", c.Store.Kind))
	}
	if c.Store.CommitTable != "" && c.Store.Kind != StoreS3 {
		errs = append(errs, errors.New("store.commit_table requires an s3 store"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// CompressionCodec returns the parsed artifact codec.
func (c Config) CompressionCodec() neighbors.Compression {
	codec, _ := neighbors.ParseCompression(c.Compression)
	return codec
}

// Resources returns the resource controller limits.
func (c Compute) Resources() resource.Config {
	return resource.Config{
		MemoryLimitBytes:   c.MemoryLimitBytes,
		MaxWorkers:         int64(c.Workers),
		IOLimitBytesPerSec: c.IOLimitBytesPerSec,
	}
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
