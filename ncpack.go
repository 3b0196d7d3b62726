package ncpack

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/dustin/go-humanize"

	"github.com/hupe1980/ncpack/blobstore"
	"github.com/hupe1980/ncpack/codec"
	"github.com/hupe1980/ncpack/packfile"
	"github.com/hupe1980/ncpack/quantization"
	"github.com/hupe1980/ncpack/reduce"
	"github.com/hupe1980/ncpack/resource"
	"github.com/hupe1980/ncpack/source"
	"github.com/hupe1980/ncpack/source/netcdf"
)

// Engine runs memory-bounded reductions and packing over array sources.
// It holds no per-operation state and is safe for concurrent use; concurrent
// operations share the memory budget through the resource controller.
type Engine struct {
	opts    options
	ctrl    *resource.Controller
	reducer *reduce.Reducer
	obs     *observer
}

// New creates an Engine.
func New(optFns ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	if o.err != nil {
		return nil, o.err
	}
	if err := o.bits.Validate(); err != nil {
		return nil, err
	}
	if o.workers <= 0 {
		o.workers = runtime.GOMAXPROCS(0)
	}

	ctrl := o.controller
	if ctrl == nil {
		ctrl = resource.NewController(resource.Config{
			MemoryLimitBytes:   o.memoryBudget,
			MaxWorkers:         int64(o.workers),
			IOLimitBytesPerSec: o.ioLimit,
		})
	}

	obs := &observer{logger: o.logger, metrics: o.metricsCollector}

	r, err := reduce.New(reduce.Config{
		MemoryBudgetBytes: o.memoryBudget,
		Probe:             o.probe,
		Controller:        ctrl,
		Observer:          obs,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{opts: o, ctrl: ctrl, reducer: r, obs: obs}, nil
}

// MemoryBudget returns the memory budget in bytes.
func (e *Engine) MemoryBudget() int64 {
	return e.opts.memoryBudget
}

// Reducer returns the underlying reducer.
func (e *Engine) Reducer() *reduce.Reducer {
	return e.reducer
}

// Controller returns the resource controller.
func (e *Engine) Controller() *resource.Controller {
	return e.ctrl
}

// SlabSize returns the number of first-axis rows per slab for src.
func (e *Engine) SlabSize(src source.ArraySource) (int, error) {
	return e.reducer.SlabSize(src)
}

// Reduce applies fn to every first-axis row of src and returns one value per row.
func (e *Engine) Reduce(ctx context.Context, src source.ArraySource, fn reduce.ReductionFunc) ([]float64, error) {
	shape := src.Shape()
	if len(shape) == 0 {
		return nil, ErrEmptyShape
	}

	result := make([]float64, shape[0])
	stats, err := e.reducer.ForEachSlab(ctx, src, func(s *source.Slab) error {
		for i := 0; i < s.Rows(); i++ {
			result[s.Begin+i] = fn(s.Row(i))
		}
		return nil
	})

	e.opts.metricsCollector.RecordReduce(stats.Rows, stats.Elapsed, err)
	e.opts.logger.WithShape(shape).LogReduce(ctx, stats, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReduceAxis reduces the first axisLength rows of src with an explicit
// per-row size, under the engine's budget, probe and controller.
func (e *Engine) ReduceAxis(ctx context.Context, src source.ArraySource, axisLength int, perStepBytes int64, fn reduce.ReductionFunc) ([]float64, error) {
	start := time.Now()
	result, err := reduce.ReduceAxis(ctx, src, axisLength, perStepBytes, e.opts.memoryBudget, fn,
		reduce.WithProbe(e.opts.probe),
		reduce.WithController(e.ctrl),
		reduce.WithObserver(e.obs),
	)
	e.opts.metricsCollector.RecordReduce(len(result), time.Since(start), err)
	return result, err
}

// ExtractPoint returns the first-axis series at one position of the inner axes.
func (e *Engine) ExtractPoint(ctx context.Context, src source.ArraySource, index ...int) ([]float64, error) {
	return reduce.ExtractPoint(ctx, e.reducer, src, index...)
}

// Range returns the smallest and largest finite values of src in one bounded pass.
func (e *Engine) Range(ctx context.Context, src source.ArraySource) (lo, hi float64, err error) {
	return e.reducer.Extent(ctx, src)
}

// ComputeParameters scans src for its range and derives quantization
// parameters for the engine's bit width. When src holds NaN the lowest
// container value is reserved as the fill code; infinities are rejected
// with ErrNotFinite.
func (e *Engine) ComputeParameters(ctx context.Context, src source.ArraySource) (quantization.Params, error) {
	sum, err := e.reducer.Scan(ctx, src)
	if err != nil {
		return quantization.Params{}, err
	}
	return e.paramsFor(sum)
}

func (e *Engine) paramsFor(sum reduce.Summary) (quantization.Params, error) {
	if sum.Infinite > 0 {
		return quantization.Params{}, fmt.Errorf("%w: %d infinite values", ErrNotFinite, sum.Infinite)
	}
	if sum.Missing > 0 {
		return quantization.ComputeParametersWithFill(sum.Min, sum.Max, e.opts.bits)
	}
	return quantization.ComputeParameters(sum.Min, sum.Max, e.opts.bits)
}

// PackReport summarizes a Pack run.
type PackReport struct {
	Name        string
	Shape       []int
	Params      quantization.Params
	Compression codec.Compression
	Values      int

	// Saturated counts values clamped to the container range.
	Saturated uint64
	// Missing counts NaN values stored as the fill code.
	Missing int

	RawBytes    int64
	PackedBytes int64

	// ScanElapsed is the duration of the range pass; Encode covers the packing pass.
	ScanElapsed time.Duration
	Encode      reduce.Stats
	Elapsed     time.Duration
}

// Ratio returns RawBytes / PackedBytes.
func (r *PackReport) Ratio() float64 {
	if r.PackedBytes == 0 {
		return 0
	}
	return float64(r.RawBytes) / float64(r.PackedBytes)
}

func (r *PackReport) String() string {
	return fmt.Sprintf("%s: %d values as %s/%s, %s -> %s (%.2fx), max error %g, %s",
		r.Name, r.Values, r.Params.Bits, r.Compression,
		humanize.IBytes(uint64(r.RawBytes)), humanize.IBytes(uint64(r.PackedBytes)),
		r.Ratio(), r.Params.MaxError(), r.Elapsed.Round(time.Millisecond))
}

// Pack writes src to store as a packfile archive named name.
//
// It makes two bounded passes over src: a range scan that fixes the
// quantization parameters, then an encoding pass that writes each slab as
// compressed blocks. NaN elements are stored as the fill code and
// infinities fail the scan before anything is written. On failure the
// partial blob is discarded.
func (e *Engine) Pack(ctx context.Context, src source.ArraySource, store blobstore.BlobStore, name string) (report *PackReport, err error) {
	if store == nil {
		return nil, ErrNoStore
	}
	shape := src.Shape()
	if len(shape) == 0 {
		return nil, ErrEmptyShape
	}

	start := time.Now()
	logger := e.opts.logger.WithBlob(name).WithShape(shape)
	defer func() {
		if err != nil {
			e.opts.metricsCollector.RecordPack(0, 0, 0, time.Since(start), err)
		} else {
			e.opts.metricsCollector.RecordPack(report.Values, report.Saturated, report.PackedBytes, report.Elapsed, nil)
		}
		logger.LogPack(ctx, report, err)
	}()

	sum, err := e.reducer.Scan(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("range scan: %w", err)
	}
	scanned := time.Since(start)

	params, err := e.paramsFor(sum)
	if err != nil {
		return nil, fmt.Errorf("range scan: %w", err)
	}
	q, err := quantization.New(params, e.opts.policy)
	if err != nil {
		return nil, err
	}
	logger.WithParams(params).DebugContext(ctx, "quantization parameters computed",
		"min", sum.Min, "max", sum.Max, "missing", sum.Missing)

	blob, err := store.Create(ctx, name)
	if err != nil {
		return nil, err
	}

	var w io.Writer = blob
	if e.opts.ioLimit > 0 {
		w = resource.NewRateLimitedWriter(ctx, blob, e.ctrl)
	}

	pw, err := packfile.NewWriter(w, params, shape, e.opts.compression)
	if err != nil {
		_ = blobstore.Abort(blob)
		return nil, err
	}

	encode, err := e.reducer.ForEachSlab(ctx, src, func(s *source.Slab) error {
		return pw.WriteValues(q, s.Data, s.Rows())
	})
	if err == nil {
		err = pw.Close()
	}
	if err != nil {
		_ = blobstore.Abort(blob)
		return nil, err
	}
	if err := blob.Close(); err != nil {
		return nil, err
	}

	values := source.Product(shape)
	return &PackReport{
		Name:        name,
		Shape:       shape,
		Params:      params,
		Compression: e.opts.compression,
		Values:      values,
		Saturated:   pw.Saturated(),
		Missing:     sum.Missing,
		RawBytes:    int64(values) * int64(src.ElementSize()),
		PackedBytes: pw.BytesWritten(),
		ScanElapsed: scanned,
		Encode:      encode,
		Elapsed:     time.Since(start),
	}, nil
}

// Archive is an open packfile archive backed by a blob.
// It is a source.ArraySource, so it can be reduced or repacked without
// unpacking it whole.
type Archive struct {
	*packfile.Reader
	blob blobstore.Blob
}

// Close releases the underlying blob.
func (a *Archive) Close() error {
	return a.blob.Close()
}

// OpenArchive opens the archive name in store. Reads through the archive
// use ctx for cancellation where the store supports it.
func (e *Engine) OpenArchive(ctx context.Context, store blobstore.BlobStore, name string) (*Archive, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	r := blobstore.ReaderAt(ctx, blob)
	if e.opts.ioLimit > 0 {
		r = resource.NewRateLimitedReaderAt(ctx, r, e.ctrl)
	}

	rd, err := packfile.Open(r, blob.Size())
	if err != nil {
		_ = blob.Close()
		return nil, fmt.Errorf("open archive %s: %w", name, err)
	}
	return &Archive{Reader: rd, blob: blob}, nil
}

// Unpack reads the archive name from store and decodes it whole. Each block
// in flight holds one of the controller's worker slots. The result is not
// bounded by the memory budget; use OpenArchive to process large archives
// slab by slab.
func (e *Engine) Unpack(ctx context.Context, store blobstore.BlobStore, name string) (arr *sparse.DenseArray, err error) {
	start := time.Now()
	defer func() {
		n := 0
		if arr != nil {
			n = len(arr.Elements)
		}
		e.opts.metricsCollector.RecordUnpack(n, time.Since(start), err)
		e.opts.logger.WithBlob(name).LogUnpack(ctx, n, err)
	}()

	a, err := e.OpenArchive(ctx, store, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	out := sparse.ZerosDense(append([]int(nil), a.Shape()...)...)
	if err := a.UnpackInto(ctx, out.Elements, e.ctrl); err != nil {
		return nil, err
	}
	return out, nil
}

// RawArray is a raw binary array backed by a blob.
type RawArray struct {
	*source.Raw
	blob blobstore.Blob
}

// Close releases the underlying blob.
func (a *RawArray) Close() error {
	return a.blob.Close()
}

// OpenRaw opens the blob name in store as a raw array described by cfg.
// The blob size is checked against the declared shape.
func (e *Engine) OpenRaw(ctx context.Context, store blobstore.BlobStore, name string, cfg source.RawConfig) (*RawArray, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	cfg.Size = blob.Size()
	if cfg.Controller == nil && e.opts.ioLimit > 0 {
		cfg.Controller = e.ctrl
	}

	raw, err := source.NewRaw(blobstore.ReaderAt(ctx, blob), cfg)
	if err != nil {
		_ = blob.Close()
		return nil, fmt.Errorf("open raw array %s: %w", name, err)
	}
	return &RawArray{Raw: raw, blob: blob}, nil
}

// WriteRaw stores src in store as a little-endian raw array of dtype,
// slab by slab. It returns the number of bytes written.
func (e *Engine) WriteRaw(ctx context.Context, src source.ArraySource, store blobstore.BlobStore, name string, dtype source.DType) (int64, error) {
	if store == nil {
		return 0, ErrNoStore
	}
	if dtype.Size() == 0 {
		return 0, fmt.Errorf("invalid dtype %v", dtype)
	}

	blob, err := store.Create(ctx, name)
	if err != nil {
		return 0, err
	}

	var w io.Writer = blob
	if e.opts.ioLimit > 0 {
		w = resource.NewRateLimitedWriter(ctx, blob, e.ctrl)
	}

	var written int64
	var buf []byte
	_, err = e.reducer.ForEachSlab(ctx, src, func(s *source.Slab) error {
		buf = source.AppendValues(buf[:0], dtype, binary.LittleEndian, s.Data)
		n, err := w.Write(buf)
		written += int64(n)
		return err
	})
	if err != nil {
		_ = blobstore.Abort(blob)
		return 0, err
	}
	if err := blob.Close(); err != nil {
		return 0, err
	}
	return written, nil
}

// PackNetCDF writes src as a packed integer NetCDF variable into dst.
// Parameters are computed by a range pass as in Pack; the file carries
// scale_factor and add_offset, plus _FillValue when src holds NaN, so that
// netcdf.Open unpacks it transparently.
func (e *Engine) PackNetCDF(ctx context.Context, src source.ArraySource, dst cdf.ReaderWriterAt, variable string, dims ...string) (*netcdf.PackResult, error) {
	if dst == nil {
		return nil, errors.New("netcdf destination is required")
	}

	params, err := e.ComputeParameters(ctx, src)
	if err != nil {
		return nil, err
	}

	res, err := netcdf.WritePacked(ctx, e.reducer, dst, src, netcdf.PackSpec{
		Variable:   variable,
		Dimensions: dims,
		Params:     params,
		Policy:     e.opts.policy,
	})
	if err != nil {
		e.opts.logger.ErrorContext(ctx, "netcdf pack failed", "variable", variable, "error", err)
		return nil, err
	}

	e.opts.logger.WithParams(params).InfoContext(ctx, "netcdf pack completed",
		"variable", variable,
		"rows", res.Stats.Rows,
		"saturated", res.Saturated,
	)
	return res, nil
}
