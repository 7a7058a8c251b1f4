package membank

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus (see package metrics/prometheus).
type MetricsCollector interface {
	// RecordUpdate is called after each bank update.
	// count is the number of samples in the batch.
	RecordUpdate(count int, duration time.Duration, err error)

	// RecordFill is called after each population pass.
	RecordFill(batches, samples int, duration time.Duration, err error)

	// RecordMine is called after each neighbor mining run.
	RecordMine(n, k int, duration time.Duration, err error)

	// RecordPredict is called after each kNN prediction.
	RecordPredict(queries, k int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordUpdate(int, time.Duration, error)       {}
func (NoopMetricsCollector) RecordFill(int, int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordMine(int, int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordPredict(int, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	UpdateCount       atomic.Int64
	UpdateSamples     atomic.Int64
	UpdateErrors      atomic.Int64
	FillCount         atomic.Int64
	FillBatches       atomic.Int64
	FillErrors        atomic.Int64
	FillTotalNanos    atomic.Int64
	MineCount         atomic.Int64
	MineErrors        atomic.Int64
	MineTotalNanos    atomic.Int64
	PredictCount      atomic.Int64
	PredictQueries    atomic.Int64
	PredictErrors     atomic.Int64
	PredictTotalNanos atomic.Int64
}

// RecordUpdate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpdate(count int, _ time.Duration, err error) {
	b.UpdateCount.Add(1)
	b.UpdateSamples.Add(int64(count))
	if err != nil {
		b.UpdateErrors.Add(1)
	}
}

// RecordFill implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFill(batches, _ int, duration time.Duration, err error) {
	b.FillCount.Add(1)
	b.FillBatches.Add(int64(batches))
	b.FillTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FillErrors.Add(1)
	}
}

// RecordMine implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMine(_, _ int, duration time.Duration, err error) {
	b.MineCount.Add(1)
	b.MineTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.MineErrors.Add(1)
	}
}

// RecordPredict implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPredict(queries, _ int, duration time.Duration, err error) {
	b.PredictCount.Add(1)
	b.PredictQueries.Add(int64(queries))
	b.PredictTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PredictErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		UpdateCount:    b.UpdateCount.Load(),
		UpdateSamples:  b.UpdateSamples.Load(),
		UpdateErrors:   b.UpdateErrors.Load(),
		FillCount:      b.FillCount.Load(),
		FillBatches:    b.FillBatches.Load(),
		FillErrors:     b.FillErrors.Load(),
		MineCount:      b.MineCount.Load(),
		MineErrors:     b.MineErrors.Load(),
		MineAvgNanos:   avg(b.MineTotalNanos.Load(), b.MineCount.Load()),
		PredictCount:   b.PredictCount.Load(),
		PredictQueries: b.PredictQueries.Load(),
		PredictErrors:  b.PredictErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	UpdateCount    int64
	UpdateSamples  int64
	UpdateErrors   int64
	FillCount      int64
	FillBatches    int64
	FillErrors     int64
	MineCount      int64
	MineErrors     int64
	MineAvgNanos   int64
	PredictCount   int64
	PredictQueries int64
	PredictErrors  int64
}
