package membank

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	compute          ComputeContext
}

// Option configures a MemoryBank.
type Option func(*options)

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example:
//
//	bank, _ := membank.New(n, 2048, 10, 0.1,
//	    membank.WithLogger(membank.NewTextLogger(slog.LevelDebug)))
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &membank.BasicMetricsCollector{}
//	bank, _ := membank.New(n, 2048, 10, 0.1, membank.WithMetricsCollector(metrics))
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithComputeContext configures workers, block size and resource limits.
func WithComputeContext(cc ComputeContext) Option {
	return func(o *options) {
		o.compute = cc
	}
}

type mineOptions struct {
	includeSelf bool
	scores      bool
}

// MineOption configures MineNearestNeighbors.
type MineOption func(*mineOptions)

// WithSelfIncluded prepends each row's own index as column 0, producing the
// N×(k+1) layout expected by SCAN-style clustering stages.
func WithSelfIncluded() MineOption {
	return func(o *mineOptions) {
		o.includeSelf = true
	}
}

// WithScores also returns the similarity of every mined neighbor.
func WithScores() MineOption {
	return func(o *mineOptions) {
		o.scores = true
	}
}

type predictOptions struct {
	votes bool
}

// PredictOption configures KNNPredict.
type PredictOption func(*predictOptions)

// WithClassVotes enables temperature-weighted class voting.
func WithClassVotes() PredictOption {
	return func(o *predictOptions) {
		o.votes = true
	}
}

type fillOptions struct {
	workers       int
	progressEvery int
}

// FillOption configures Fill.
type FillOption func(*fillOptions)

// WithFillWorkers runs up to n encoder calls concurrently. Updates are
// still applied one batch at a time in source order.
func WithFillWorkers(n int) FillOption {
	return func(o *fillOptions) {
		o.workers = n
	}
}

// WithProgressEvery logs progress on the first batch and every n-th batch
// after it. n <= 0 disables progress logging.
func WithProgressEvery(n int) FillOption {
	return func(o *fillOptions) {
		o.progressEvery = n
	}
}
