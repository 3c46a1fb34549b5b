package sigtree

import (
	"sync/atomic"
	"time"
)

// Check names passed to MetricsCollector.RecordQuery.
const (
	CheckSpatial   = "spatial"
	CheckToken     = "token"
	CheckTokenCell = "token_cell"
)

// MetricsCollector defines an interface for collecting build and validation
// metrics. Implement this interface to integrate with monitoring systems
// like Prometheus (see package metric).
type MetricsCollector interface {
	// RecordStage is called when a build stage finishes.
	// count is the number of regions, cells or items processed.
	RecordStage(stage string, count int, duration time.Duration, err error)

	// RecordInsert is called after the items of one cell were inserted.
	RecordInsert(items int, duration time.Duration)

	// RecordConsistencyCheck is called after every tree consistency check.
	RecordConsistencyCheck(duration time.Duration, err error)

	// RecordQuery is called after every validation query.
	// check is one of CheckSpatial, CheckToken or CheckTokenCell.
	RecordQuery(check string, mismatch bool, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordStage(string, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordInsert(int, time.Duration)               {}
func (NoopMetricsCollector) RecordConsistencyCheck(time.Duration, error)   {}
func (NoopMetricsCollector) RecordQuery(string, bool, time.Duration)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and tests without external dependencies.
type BasicMetricsCollector struct {
	StageCount        atomic.Int64
	StageErrors       atomic.Int64
	StageTotalNanos   atomic.Int64
	InsertedItems     atomic.Int64
	InsertedCells     atomic.Int64
	InsertTotalNanos  atomic.Int64
	CheckCount        atomic.Int64
	CheckFailures     atomic.Int64
	QueryCount        atomic.Int64
	QueryMismatches   atomic.Int64
	QueryTotalNanos   atomic.Int64
	SpatialMismatches atomic.Int64
}

// RecordStage implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStage(_ string, _ int, duration time.Duration, err error) {
	b.StageCount.Add(1)
	b.StageTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.StageErrors.Add(1)
	}
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(items int, duration time.Duration) {
	b.InsertedCells.Add(1)
	b.InsertedItems.Add(int64(items))
	b.InsertTotalNanos.Add(duration.Nanoseconds())
}

// RecordConsistencyCheck implements MetricsCollector.
func (b *BasicMetricsCollector) RecordConsistencyCheck(_ time.Duration, err error) {
	b.CheckCount.Add(1)
	if err != nil {
		b.CheckFailures.Add(1)
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(check string, mismatch bool, duration time.Duration) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if mismatch {
		b.QueryMismatches.Add(1)
		if check == CheckSpatial {
			b.SpatialMismatches.Add(1)
		}
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		StageCount:        b.StageCount.Load(),
		StageErrors:       b.StageErrors.Load(),
		InsertedItems:     b.InsertedItems.Load(),
		InsertedCells:     b.InsertedCells.Load(),
		CheckCount:        b.CheckCount.Load(),
		CheckFailures:     b.CheckFailures.Load(),
		QueryCount:        b.QueryCount.Load(),
		QueryMismatches:   b.QueryMismatches.Load(),
		QueryAvgNanos:     b.getAvgQueryNanos(),
		SpatialMismatches: b.SpatialMismatches.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgQueryNanos() int64 {
	count := b.QueryCount.Load()
	if count == 0 {
		return 0
	}
	return b.QueryTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	StageCount        int64
	StageErrors       int64
	InsertedItems     int64
	InsertedCells     int64
	CheckCount        int64
	CheckFailures     int64
	QueryCount        int64
	QueryMismatches   int64
	QueryAvgNanos     int64
	SpatialMismatches int64
}
