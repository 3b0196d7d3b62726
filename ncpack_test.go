package ncpack

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ncpack/blobstore"
	"github.com/hupe1980/ncpack/codec"
	"github.com/hupe1980/ncpack/config"
	"github.com/hupe1980/ncpack/memprobe"
	"github.com/hupe1980/ncpack/quantization"
	"github.com/hupe1980/ncpack/reduce"
	"github.com/hupe1980/ncpack/resource"
	"github.com/hupe1980/ncpack/source"
	"github.com/hupe1980/ncpack/source/netcdf"
	"github.com/hupe1980/ncpack/testutil"
)

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := New(append([]Option{WithProbe(memprobe.Nop{})}, opts...)...)
	require.NoError(t, err)
	return eng
}

func dense(t *testing.T, arr *sparse.DenseArray) *source.Dense {
	t.Helper()
	src, err := source.NewDense(arr)
	require.NoError(t, err)
	return src
}

func TestNew(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		eng := newEngine(t)
		assert.Equal(t, int64(512<<20), eng.MemoryBudget())
		assert.Equal(t, quantization.Bits16, eng.opts.bits)
		assert.Equal(t, codec.ZSTD, eng.opts.compression)
		assert.Positive(t, eng.opts.workers)
		assert.Equal(t, int64(512<<20), eng.Controller().MemoryLimit())
	})

	t.Run("UnsupportedBits", func(t *testing.T) {
		_, err := New(WithBits(12))
		assert.ErrorIs(t, err, ErrUnsupportedBits)
	})

	t.Run("ZeroBudget", func(t *testing.T) {
		_, err := New(WithMemoryBudget(0))
		var ce *ConfigurationError
		assert.ErrorAs(t, err, &ce)
	})

	t.Run("WithConfig", func(t *testing.T) {
		cfg := config.Default()
		cfg.MemoryBudgetBytes = 1 << 20
		cfg.Bits = quantization.Bits8
		cfg.Compression = codec.LZ4
		cfg.Probe = "none"
		cfg.Workers = 2

		eng, err := New(WithConfig(cfg), WithLogger(nil))
		require.NoError(t, err)
		assert.Equal(t, int64(1<<20), eng.MemoryBudget())
		assert.Equal(t, quantization.Bits8, eng.opts.bits)
		assert.Equal(t, codec.LZ4, eng.opts.compression)
		assert.Equal(t, memprobe.Nop{}, eng.opts.probe)
		assert.Equal(t, 2, eng.opts.workers)
	})

	t.Run("WithConfigBadProbe", func(t *testing.T) {
		cfg := config.Default()
		cfg.Probe = "psychic"
		_, err := New(WithConfig(cfg))
		assert.Error(t, err)
	})
}

func TestEngine_Reduce(t *testing.T) {
	arr := testutil.SyntheticField(256, 8, 8)
	src := dense(t, arr)
	metrics := &BasicMetricsCollector{}

	eng := newEngine(t,
		WithMemoryBudget(6*source.RowBytes(src)),
		WithMetricsCollector(metrics),
	)

	k, err := eng.SlabSize(src)
	require.NoError(t, err)
	assert.Equal(t, 6, k)

	got, err := eng.Reduce(context.Background(), src, reduce.Mean)
	require.NoError(t, err)
	require.Len(t, got, 256)

	for d := range got {
		var sum float64
		for z := 0; z < 64; z++ {
			sum += arr.Elements[d*64+z]
		}
		assert.InDelta(t, sum/64, got[d], 1e-12)
	}

	stats := metrics.GetStats()
	assert.Equal(t, int64(43), stats.SlabCount)
	assert.Equal(t, int64(44), stats.MemoryChecks)
	assert.Equal(t, int64(1), stats.ReduceCount)
	assert.Equal(t, int64(256), stats.ReduceRows)
	assert.Equal(t, int64(256*64*8), stats.SlabBytes)
}

func TestEngine_ReduceAxis(t *testing.T) {
	src := dense(t, testutil.SyntheticField(100, 10))
	eng := newEngine(t, WithMemoryBudget(1<<20))

	got, err := eng.ReduceAxis(context.Background(), src, 40, 800, reduce.Max)
	require.NoError(t, err)
	assert.Len(t, got, 40)

	_, err = eng.ReduceAxis(context.Background(), src, 40, 2<<20, reduce.Max)
	var ce *ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestEngine_MemoryBudgetExceeded(t *testing.T) {
	src := dense(t, testutil.SyntheticField(20, 4))
	budget := int64(1 << 20)

	calls := 0
	probe := memprobe.ProbeFunc(func() (uint64, error) {
		calls++
		if calls > 3 {
			return uint64(budget) + 1, nil
		}
		return 1024, nil
	})

	eng, err := New(WithMemoryBudget(budget), WithProbe(probe))
	require.NoError(t, err)

	_, err = eng.ReduceAxis(context.Background(), src, 20, budget/4, reduce.Sum)
	var mbe *MemoryBudgetExceededError
	require.ErrorAs(t, err, &mbe)
	assert.Equal(t, reduce.PhaseAfter, mbe.Phase)
	assert.Equal(t, 2, mbe.Slab)
	assert.Equal(t, budget, mbe.Budget)
}

func TestEngine_Cancelled(t *testing.T) {
	src := dense(t, testutil.SyntheticField(20, 4))
	eng := newEngine(t, WithMemoryBudget(64))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Reduce(ctx, src, reduce.Sum)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_RangeAndParameters(t *testing.T) {
	arr := testutil.SyntheticField(64, 16)
	arr.Elements[3] = math.NaN()
	src := dense(t, arr)

	eng := newEngine(t, WithMemoryBudget(4*source.RowBytes(src)), WithBits(quantization.Bits8))

	lo, hi, err := eng.Range(context.Background(), src)
	require.NoError(t, err)

	var wantLo, wantHi = math.Inf(1), math.Inf(-1)
	for i, v := range arr.Elements {
		if i == 3 {
			continue
		}
		wantLo, wantHi = math.Min(wantLo, v), math.Max(wantHi, v)
	}
	assert.Equal(t, wantLo, lo)
	assert.Equal(t, wantHi, hi)

	params, err := eng.ComputeParameters(context.Background(), src)
	require.NoError(t, err)
	want, err := quantization.ComputeParametersWithFill(wantLo, wantHi, quantization.Bits8)
	require.NoError(t, err)
	assert.Equal(t, want, params)
}

func TestEngine_ExtractPoint(t *testing.T) {
	src := dense(t, testutil.SyntheticField(30, 4, 5))
	eng := newEngine(t, WithMemoryBudget(3*source.RowBytes(src)))

	series, err := eng.ExtractPoint(context.Background(), src, 2, 3)
	require.NoError(t, err)
	require.Len(t, series, 30)
	for d, v := range series {
		assert.Equal(t, testutil.SyntheticValue(d, 2, 3), v)
	}
}

func TestEngine_PackUnpack(t *testing.T) {
	stores := map[string]blobstore.BlobStore{
		"memory": blobstore.NewMemoryStore(),
		"local":  blobstore.NewLocalStore(t.TempDir()),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			arr := testutil.SyntheticField(120, 6, 10)
			src := dense(t, arr)
			metrics := &BasicMetricsCollector{}

			eng := newEngine(t,
				WithMemoryBudget(7*source.RowBytes(src)),
				WithCompression(codec.ZSTD),
				WithMetricsCollector(metrics),
				WithWorkers(3),
			)

			report, err := eng.Pack(ctx, src, store, "fields/synthetic.ncpk")
			require.NoError(t, err)
			assert.Equal(t, 120*60, report.Values)
			assert.Equal(t, int64(120*60*8), report.RawBytes)
			assert.Greater(t, report.Ratio(), 3.0)
			assert.Equal(t, uint64(0), report.Saturated)
			assert.Equal(t, 18, report.Encode.Slabs)
			assert.Equal(t, quantization.Bits16, report.Params.Bits)
			assert.Contains(t, report.String(), "fields/synthetic.ncpk")

			got, err := eng.Unpack(ctx, store, "fields/synthetic.ncpk")
			require.NoError(t, err)
			assert.Equal(t, []int{120, 6, 10}, got.Shape)
			for i, v := range got.Elements {
				assert.Less(t, math.Abs(v-arr.Elements[i]), report.Params.Scale+1e-12, "element %d", i)
			}

			stats := metrics.GetStats()
			assert.Equal(t, int64(1), stats.PackCount)
			assert.Equal(t, int64(120*60), stats.PackValues)
			assert.Equal(t, report.PackedBytes, stats.PackBytes)
			assert.Equal(t, int64(1), stats.UnpackCount)
		})
	}
}

func TestEngine_ReduceArchive(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	arr := testutil.SyntheticField(90, 4, 4)
	src := dense(t, arr)

	eng := newEngine(t, WithMemoryBudget(5*source.RowBytes(src)), WithCompression(codec.LZ4))

	report, err := eng.Pack(ctx, src, store, "a.ncpk")
	require.NoError(t, err)

	a, err := eng.OpenArchive(ctx, store, "a.ncpk")
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	assert.Equal(t, 2, a.ElementSize())

	got, err := eng.Reduce(ctx, a, reduce.Mean)
	require.NoError(t, err)
	want, err := eng.Reduce(ctx, src, reduce.Mean)
	require.NoError(t, err)
	for i := range want {
		assert.InDelta(t, want[i], got[i], report.Params.Scale)
	}
}

func TestEngine_ReduceCachedArchive(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewCachingStore(blobstore.NewMemoryStore(), 64, 1<<10)
	src := dense(t, testutil.SyntheticField(64, 8, 8))

	eng := newEngine(t, WithMemoryBudget(8*source.RowBytes(src)))
	_, err := eng.Pack(ctx, src, store, "cached.ncpk")
	require.NoError(t, err)

	a, err := eng.OpenArchive(ctx, store, "cached.ncpk")
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	first, err := eng.Reduce(ctx, a, reduce.Max)
	require.NoError(t, err)
	misses := store.Stats().Misses

	second, err := eng.Reduce(ctx, a, reduce.Max)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, misses, store.Stats().Misses)
	assert.Positive(t, store.Stats().Hits)
}

var errSourceGone = errors.New("source gone")

// failingSource fails every ReadSlab after the first ok calls.
type failingSource struct {
	source.ArraySource
	ok    int
	calls atomic.Int32
}

func (s *failingSource) ReadSlab(ctx context.Context, begin, end int) (*source.Slab, error) {
	if int(s.calls.Add(1)) > s.ok {
		return nil, errSourceGone
	}
	return s.ArraySource.ReadSlab(ctx, begin, end)
}

func TestEngine_PackAbortsOnFailure(t *testing.T) {
	ctx := context.Background()
	arr := testutil.SyntheticField(40, 5)

	for name, store := range map[string]blobstore.BlobStore{
		"memory": blobstore.NewMemoryStore(),
		"local":  blobstore.NewLocalStore(t.TempDir()),
	} {
		t.Run(name, func(t *testing.T) {
			metrics := &BasicMetricsCollector{}
			eng := newEngine(t, WithMemoryBudget(10*5*8), WithMetricsCollector(metrics))

			// Four slabs per pass: the scan succeeds, the encode pass fails
			// after writing its first block.
			src := &failingSource{ArraySource: dense(t, arr), ok: 5}
			_, err := eng.Pack(ctx, src, store, "broken.ncpk")
			assert.ErrorIs(t, err, errSourceGone)

			names, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, names)
			assert.Equal(t, int64(1), metrics.GetStats().PackErrors)
		})
	}
}

func TestEngine_PackRejectsInfinity(t *testing.T) {
	ctx := context.Background()
	arr := testutil.SyntheticField(40, 5)
	arr.Elements[150] = math.Inf(1)
	store := blobstore.NewMemoryStore()

	eng := newEngine(t, WithMemoryBudget(1<<10))
	_, err := eng.Pack(ctx, dense(t, arr), store, "inf.ncpk")
	assert.ErrorIs(t, err, ErrNotFinite)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestEngine_PackMissingValues(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	arr := sparse.ZerosDense(4, 3)
	for i := range arr.Elements {
		arr.Elements[i] = float64(i)
	}
	arr.Elements[5] = math.NaN()

	eng := newEngine(t, WithMemoryBudget(3*8))

	lo, hi, err := eng.Range(ctx, dense(t, arr))
	require.NoError(t, err)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 11.0, hi)

	report, err := eng.Pack(ctx, dense(t, arr), store, "gaps.ncpk")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Missing)
	assert.True(t, report.Params.Fill)

	a, err := eng.OpenArchive(ctx, store, "gaps.ncpk")
	require.NoError(t, err)
	assert.True(t, a.Footer().Params.Fill)
	require.NoError(t, a.Close())

	got, err := eng.Unpack(ctx, store, "gaps.ncpk")
	require.NoError(t, err)
	for i, v := range got.Elements {
		if i == 5 {
			assert.True(t, math.IsNaN(v))
			continue
		}
		assert.Less(t, math.Abs(v-arr.Elements[i]), report.Params.Scale+1e-12, "element %d", i)
	}
}

func TestEngine_UnpackHoldsWorkerSlots(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	src := dense(t, testutil.SyntheticField(16, 4))

	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20, MaxWorkers: 1})
	eng := newEngine(t, WithMemoryBudget(4*source.RowBytes(src)), WithResourceController(rc))
	_, err := eng.Pack(ctx, src, store, "w.ncpk")
	require.NoError(t, err)

	require.NoError(t, rc.AcquireWorker(ctx))
	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = eng.Unpack(tctx, store, "w.ncpk")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	rc.ReleaseWorker()
	got, err := eng.Unpack(ctx, store, "w.ncpk")
	require.NoError(t, err)
	assert.Len(t, got.Elements, 64)
}

func TestEngine_PackEmptySource(t *testing.T) {
	arr := sparse.ZerosDense(4, 2)
	for i := range arr.Elements {
		arr.Elements[i] = math.NaN()
	}

	eng := newEngine(t, WithMemoryBudget(1<<10))
	_, err := eng.Pack(context.Background(), dense(t, arr), blobstore.NewMemoryStore(), "x")
	assert.ErrorIs(t, err, ErrEmptySource)

	_, err = eng.Pack(context.Background(), dense(t, arr), nil, "x")
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestEngine_UnpackMissing(t *testing.T) {
	eng := newEngine(t)
	_, err := eng.Unpack(context.Background(), blobstore.NewMemoryStore(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_RawRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewLocalStore(t.TempDir())
	arr := testutil.SyntheticField(50, 3, 7)
	src := dense(t, arr)

	eng := newEngine(t, WithMemoryBudget(4*source.RowBytes(src)), WithIOLimit(64<<20))

	n, err := eng.WriteRaw(ctx, src, store, "tas.f32", source.Float32)
	require.NoError(t, err)
	assert.Equal(t, int64(50*21*4), n)

	raw, err := eng.OpenRaw(ctx, store, "tas.f32", source.RawConfig{Shape: []int{50, 3, 7}, DType: source.Float32})
	require.NoError(t, err)
	defer func() { _ = raw.Close() }()
	assert.Equal(t, 4, raw.ElementSize())

	got, err := eng.Reduce(ctx, raw, reduce.Mean)
	require.NoError(t, err)
	want, err := eng.Reduce(ctx, src, reduce.Mean)
	require.NoError(t, err)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-6)
	}

	_, err = eng.OpenRaw(ctx, store, "tas.f32", source.RawConfig{Shape: []int{51, 3, 7}, DType: source.Float32})
	assert.ErrorIs(t, err, source.ErrShortArray)
}

func TestEngine_PackNetCDF(t *testing.T) {
	ctx := context.Background()
	arr := testutil.SyntheticField(24, 4, 6)
	src := dense(t, arr)
	eng := newEngine(t, WithMemoryBudget(5*source.RowBytes(src)), WithBits(quantization.Bits16))

	mf := testutil.NewMemFile(nil)
	res, err := eng.PackNetCDF(ctx, src, mf, "tas", "time", "lat", "lon")
	require.NoError(t, err)
	assert.Equal(t, 24, res.Stats.Rows)

	v, err := netcdf.Open(mf, "tas")
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "lat", "lon"}, v.Dimensions())
	scale, _, ok := v.Packing()
	require.True(t, ok)

	slab, err := v.ReadSlab(ctx, 0, 24)
	require.NoError(t, err)
	for i, x := range slab.Data {
		assert.Less(t, math.Abs(x-arr.Elements[i]), scale+1e-12)
	}
	assert.Nil(t, v.Attribute(netcdf.AttrFillValue))
}

func TestEngine_PackNetCDFMissingValues(t *testing.T) {
	ctx := context.Background()
	arr := testutil.SyntheticField(12, 3, 4)
	arr.Elements[17] = math.NaN()
	src := dense(t, arr)
	eng := newEngine(t, WithMemoryBudget(5*source.RowBytes(src)), WithBits(quantization.Bits8))

	mf := testutil.NewMemFile(nil)
	_, err := eng.PackNetCDF(ctx, src, mf, "tas")
	require.NoError(t, err)

	v, err := netcdf.Open(mf, "tas")
	require.NoError(t, err)
	assert.NotNil(t, v.Attribute(netcdf.AttrFillValue))
	scale, _, ok := v.Packing()
	require.True(t, ok)

	slab, err := v.ReadSlab(ctx, 0, 12)
	require.NoError(t, err)
	for i, x := range slab.Data {
		if i == 17 {
			assert.True(t, math.IsNaN(x))
			continue
		}
		assert.Less(t, math.Abs(x-arr.Elements[i]), scale+1e-12, "element %d", i)
	}
}

func TestEngine_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	src := dense(t, testutil.SyntheticField(10, 2))
	eng := newEngine(t, WithMemoryBudget(4*source.RowBytes(src)), WithLogger(logger))

	_, err := eng.Reduce(context.Background(), src, reduce.Sum)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"slab processed"`)
	assert.Contains(t, out, `"msg":"memory check"`)
	assert.Contains(t, out, `"msg":"reduce completed"`)
	assert.Contains(t, out, `"slab_size":4`)
}
