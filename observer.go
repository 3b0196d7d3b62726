package ncpack

import (
	"context"

	"github.com/hupe1980/ncpack/reduce"
)

// observer forwards reducer progress to the engine's logger and metrics.
type observer struct {
	logger  *Logger
	metrics MetricsCollector
}

var _ reduce.Observer = (*observer)(nil)

func (o *observer) OnSlab(ev reduce.SlabEvent) {
	o.metrics.RecordSlab(ev.Range.Len(), ev.Bytes, ev.Elapsed, ev.Err)
	o.logger.LogSlab(context.Background(), ev)
}

func (o *observer) OnMemoryCheck(ev reduce.MemoryCheck) {
	o.metrics.RecordMemoryCheck(ev.Observed, ev.Budget)
	o.logger.LogMemoryCheck(context.Background(), ev)
}
