// Package prom exports engine metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	c, _ := prom.NewCollector(reg, "ncpack")
//	eng, _ := ncpack.New(ncpack.WithMetricsCollector(c))
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records engine operations as Prometheus metrics.
// It satisfies ncpack.MetricsCollector.
type Collector struct {
	opLatency      *prometheus.HistogramVec
	slabs          *prometheus.CounterVec
	slabBytes      prometheus.Counter
	memoryUsed     prometheus.Gauge
	memoryBudget   prometheus.Gauge
	memoryChecks   prometheus.Counter
	rowsReduced    prometheus.Counter
	valuesPacked   prometheus.Counter
	saturated      prometheus.Counter
	packedBytes    prometheus.Counter
	valuesUnpacked prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer, namespace string) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of engine operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		slabs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slabs_total",
			Help:      "Slabs processed",
		}, []string{"status"}),
		slabBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slab_bytes_total",
			Help:      "Bytes reserved for slab buffers",
		}),
		memoryUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_observed_bytes",
			Help:      "Process memory reported by the last probe",
		}),
		memoryBudget: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_budget_bytes",
			Help:      "Configured memory budget",
		}),
		memoryChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_checks_total",
			Help:      "Memory probe checks",
		}),
		rowsReduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_reduced_total",
			Help:      "First-axis rows reduced",
		}),
		valuesPacked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "values_packed_total",
			Help:      "Values written to archives",
		}),
		saturated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "values_saturated_total",
			Help:      "Values clamped to the container range",
		}),
		packedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packed_bytes_total",
			Help:      "Archive bytes written",
		}),
		valuesUnpacked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "values_unpacked_total",
			Help:      "Values decoded from archives",
		}),
	}

	for _, m := range []prometheus.Collector{
		c.opLatency, c.slabs, c.slabBytes, c.memoryUsed, c.memoryBudget, c.memoryChecks,
		c.rowsReduced, c.valuesPacked, c.saturated, c.packedBytes, c.valuesUnpacked,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordSlab records one processed slab.
func (c *Collector) RecordSlab(_ int, bytes int64, d time.Duration, err error) {
	c.opLatency.WithLabelValues("slab", status(err)).Observe(d.Seconds())
	c.slabs.WithLabelValues(status(err)).Inc()
	if err == nil {
		c.slabBytes.Add(float64(bytes))
	}
}

// RecordMemoryCheck records one probe reading.
func (c *Collector) RecordMemoryCheck(observed uint64, budget int64) {
	c.memoryChecks.Inc()
	c.memoryUsed.Set(float64(observed))
	c.memoryBudget.Set(float64(budget))
}

// RecordReduce records a finished reduction.
func (c *Collector) RecordReduce(rows int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("reduce", status(err)).Observe(d.Seconds())
	c.rowsReduced.Add(float64(rows))
}

// RecordPack records a finished pack.
func (c *Collector) RecordPack(values int, saturated uint64, packedBytes int64, d time.Duration, err error) {
	c.opLatency.WithLabelValues("pack", status(err)).Observe(d.Seconds())
	if err != nil {
		return
	}
	c.valuesPacked.Add(float64(values))
	c.saturated.Add(float64(saturated))
	c.packedBytes.Add(float64(packedBytes))
}

// RecordUnpack records a finished unpack.
func (c *Collector) RecordUnpack(values int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("unpack", status(err)).Observe(d.Seconds())
	c.valuesUnpacked.Add(float64(values))
}
