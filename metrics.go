package ncpack

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems;
// metrics/prom provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordSlab is called after each slab is read and processed.
	RecordSlab(rows int, bytes int64, duration time.Duration, err error)

	// RecordMemoryCheck is called after each memory probe.
	RecordMemoryCheck(observed uint64, budget int64)

	// RecordReduce is called after each reduction.
	RecordReduce(rows int, duration time.Duration, err error)

	// RecordPack is called after each pack operation.
	RecordPack(values int, saturated uint64, packedBytes int64, duration time.Duration, err error)

	// RecordUnpack is called after each unpack operation.
	RecordUnpack(values int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSlab(int, int64, time.Duration, error)         {}
func (NoopMetricsCollector) RecordMemoryCheck(uint64, int64)                     {}
func (NoopMetricsCollector) RecordReduce(int, time.Duration, error)              {}
func (NoopMetricsCollector) RecordPack(int, uint64, int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordUnpack(int, time.Duration, error)              {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SlabCount      atomic.Int64
	SlabErrors     atomic.Int64
	SlabBytes      atomic.Int64
	SlabTotalNanos atomic.Int64
	MemoryChecks   atomic.Int64
	PeakMemory     atomic.Uint64
	ReduceCount    atomic.Int64
	ReduceErrors   atomic.Int64
	ReduceRows     atomic.Int64
	PackCount      atomic.Int64
	PackErrors     atomic.Int64
	PackValues     atomic.Int64
	PackSaturated  atomic.Uint64
	PackBytes      atomic.Int64
	PackTotalNanos atomic.Int64
	UnpackCount    atomic.Int64
	UnpackErrors   atomic.Int64
	UnpackValues   atomic.Int64
}

// RecordSlab implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSlab(rows int, bytes int64, duration time.Duration, err error) {
	b.SlabCount.Add(1)
	b.SlabTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SlabErrors.Add(1)
		return
	}
	b.SlabBytes.Add(bytes)
}

// RecordMemoryCheck implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMemoryCheck(observed uint64, _ int64) {
	b.MemoryChecks.Add(1)
	for {
		peak := b.PeakMemory.Load()
		if observed <= peak || b.PeakMemory.CompareAndSwap(peak, observed) {
			return
		}
	}
}

// RecordReduce implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReduce(rows int, _ time.Duration, err error) {
	b.ReduceCount.Add(1)
	if err != nil {
		b.ReduceErrors.Add(1)
		return
	}
	b.ReduceRows.Add(int64(rows))
}

// RecordPack implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPack(values int, saturated uint64, packedBytes int64, duration time.Duration, err error) {
	b.PackCount.Add(1)
	b.PackTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PackErrors.Add(1)
		return
	}
	b.PackValues.Add(int64(values))
	b.PackSaturated.Add(saturated)
	b.PackBytes.Add(packedBytes)
}

// RecordUnpack implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUnpack(values int, _ time.Duration, err error) {
	b.UnpackCount.Add(1)
	if err != nil {
		b.UnpackErrors.Add(1)
		return
	}
	b.UnpackValues.Add(int64(values))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SlabCount:     b.SlabCount.Load(),
		SlabErrors:    b.SlabErrors.Load(),
		SlabBytes:     b.SlabBytes.Load(),
		SlabAvgNanos:  avg(b.SlabTotalNanos.Load(), b.SlabCount.Load()),
		MemoryChecks:  b.MemoryChecks.Load(),
		PeakMemory:    b.PeakMemory.Load(),
		ReduceCount:   b.ReduceCount.Load(),
		ReduceErrors:  b.ReduceErrors.Load(),
		ReduceRows:    b.ReduceRows.Load(),
		PackCount:     b.PackCount.Load(),
		PackErrors:    b.PackErrors.Load(),
		PackValues:    b.PackValues.Load(),
		PackSaturated: b.PackSaturated.Load(),
		PackBytes:     b.PackBytes.Load(),
		PackAvgNanos:  avg(b.PackTotalNanos.Load(), b.PackCount.Load()),
		UnpackCount:   b.UnpackCount.Load(),
		UnpackErrors:  b.UnpackErrors.Load(),
		UnpackValues:  b.UnpackValues.Load(),
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
	SlabCount     int64
	SlabErrors    int64
	SlabBytes     int64
	SlabAvgNanos  int64
	MemoryChecks  int64
	PeakMemory    uint64
	ReduceCount   int64
	ReduceErrors  int64
	ReduceRows    int64
	PackCount     int64
	PackErrors    int64
	PackValues    int64
	PackSaturated uint64
	PackBytes     int64
	PackAvgNanos  int64
	UnpackCount   int64
	UnpackErrors  int64
	UnpackValues  int64
}
