package prom_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ncpack"
	"github.com/hupe1980/ncpack/blobstore"
	"github.com/hupe1980/ncpack/memprobe"
	"github.com/hupe1980/ncpack/metrics/prom"
	"github.com/hupe1980/ncpack/reduce"
	"github.com/hupe1980/ncpack/source"
	"github.com/hupe1980/ncpack/testutil"
)

var _ ncpack.MetricsCollector = (*prom.Collector)(nil)

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestCollector_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := prom.NewCollector(reg, "test")
	require.NoError(t, err)

	c.RecordSlab(4, 1024, time.Millisecond, nil)
	c.RecordSlab(4, 1024, time.Millisecond, errors.New("boom"))
	c.RecordMemoryCheck(300, 1000)
	c.RecordReduce(8, time.Millisecond, nil)
	c.RecordPack(100, 2, 60, time.Millisecond, nil)
	c.RecordPack(100, 0, 0, time.Millisecond, errors.New("boom"))
	c.RecordUnpack(100, time.Millisecond, nil)

	got := gather(t, reg)
	assert.Equal(t, 2.0, got["test_slabs_total"])
	assert.Equal(t, 1024.0, got["test_slab_bytes_total"])
	assert.Equal(t, 300.0, got["test_memory_observed_bytes"])
	assert.Equal(t, 1000.0, got["test_memory_budget_bytes"])
	assert.Equal(t, 1.0, got["test_memory_checks_total"])
	assert.Equal(t, 8.0, got["test_rows_reduced_total"])
	assert.Equal(t, 100.0, got["test_values_packed_total"])
	assert.Equal(t, 2.0, got["test_values_saturated_total"])
	assert.Equal(t, 60.0, got["test_packed_bytes_total"])
	assert.Equal(t, 100.0, got["test_values_unpacked_total"])
	assert.Equal(t, 6.0, got["test_operation_latency_seconds"])
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := prom.NewCollector(reg, "dup")
	require.NoError(t, err)

	_, err = prom.NewCollector(reg, "dup")
	var are prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &are)
}

func TestCollector_Engine(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := prom.NewCollector(reg, "ncpack")
	require.NoError(t, err)

	src, err := source.NewDense(testutil.SyntheticField(30, 8))
	require.NoError(t, err)

	eng, err := ncpack.New(
		ncpack.WithMemoryBudget(5*source.RowBytes(src)),
		ncpack.WithProbe(memprobe.Nop{}),
		ncpack.WithMetricsCollector(c),
	)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = eng.Reduce(ctx, src, reduce.Mean)
	require.NoError(t, err)
	_, err = eng.Pack(ctx, src, blobstore.NewMemoryStore(), "x.ncpk")
	require.NoError(t, err)

	got := gather(t, reg)
	assert.Equal(t, 30.0, got["ncpack_rows_reduced_total"])
	assert.Equal(t, 240.0, got["ncpack_values_packed_total"])
	// one reduce pass plus the range and encode passes of Pack
	assert.Equal(t, 18.0, got["ncpack_slabs_total"])
}
