package reduce

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/hupe1980/ncpack/memprobe"
	"github.com/hupe1980/ncpack/resource"
	"github.com/hupe1980/ncpack/source"
)

// ErrSlabShape is returned when a source returns a slab that does not match the request.
var ErrSlabShape = errors.New("source returned a slab of unexpected shape")

// ErrEmptySource is returned when the source holds no finite values.
var ErrEmptySource = errors.New("source holds no finite values")

// Config configures a Reducer.
type Config struct {
	// MemoryBudgetBytes bounds the slab buffer and the observed process memory.
	MemoryBudgetBytes int64

	// Probe reports process memory. If nil, only slab reservations are checked.
	Probe memprobe.Probe

	// Controller reserves slab buffers. If nil, a controller limited to
	// MemoryBudgetBytes is created.
	Controller *resource.Controller

	// Observer receives per-slab and per-check callbacks.
	Observer Observer

	// PerStepBytes overrides the per-row size derived from the source.
	PerStepBytes int64
}

// Reducer runs memory-bounded passes over array sources.
// A Reducer holds no per-run state and may be reused.
type Reducer struct {
	cfg  Config
	ctrl *resource.Controller
	obs  Observer
}

// New creates a Reducer.
func New(cfg Config) (*Reducer, error) {
	if cfg.MemoryBudgetBytes <= 0 {
		return nil, &ConfigurationError{MemoryBudgetBytes: cfg.MemoryBudgetBytes, PerStepBytes: cfg.PerStepBytes, Reason: "memory budget must be positive"}
	}

	ctrl := cfg.Controller
	if ctrl == nil {
		ctrl = resource.NewController(resource.Config{MemoryLimitBytes: cfg.MemoryBudgetBytes})
	}

	var obs Observer = nopObserver{}
	if cfg.Observer != nil {
		obs = cfg.Observer
	}

	return &Reducer{cfg: cfg, ctrl: ctrl, obs: obs}, nil
}

// MemoryBudget returns the configured budget in bytes.
func (r *Reducer) MemoryBudget() int64 {
	return r.cfg.MemoryBudgetBytes
}

// SlabSize returns the number of rows per slab for src.
func (r *Reducer) SlabSize(src source.ArraySource) (int, error) {
	return ComputeSlabSize(r.cfg.MemoryBudgetBytes, r.perStep(src))
}

func (r *Reducer) perStep(src source.ArraySource) int64 {
	if r.cfg.PerStepBytes > 0 {
		return r.cfg.PerStepBytes
	}
	return PerStepBytes(src)
}

// ForEachSlab visits the slabs of src in ascending order.
// The slab passed to visit must not be retained after visit returns.
func (r *Reducer) ForEachSlab(ctx context.Context, src source.ArraySource, visit func(*source.Slab) error) (Stats, error) {
	shape := src.Shape()
	if len(shape) == 0 {
		return Stats{}, source.ErrEmptyShape
	}
	return r.run(ctx, src, shape[0], r.perStep(src), visit)
}

// ReduceAxis applies fn to every first-axis row of src and returns one value per row.
func (r *Reducer) ReduceAxis(ctx context.Context, src source.ArraySource, fn ReductionFunc) ([]float64, error) {
	shape := src.Shape()
	if len(shape) == 0 {
		return nil, source.ErrEmptyShape
	}
	return r.reduce(ctx, src, shape[0], r.perStep(src), fn)
}

func (r *Reducer) reduce(ctx context.Context, src source.ArraySource, axisLength int, perStep int64, fn ReductionFunc) ([]float64, error) {
	result := make([]float64, axisLength)
	_, err := r.run(ctx, src, axisLength, perStep, func(s *source.Slab) error {
		for i := 0; i < s.Rows(); i++ {
			result[s.Begin+i] = fn(s.Row(i))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Reducer) run(ctx context.Context, src source.ArraySource, axisLength int, perStep int64, visit func(*source.Slab) error) (Stats, error) {
	k, err := ComputeSlabSize(r.cfg.MemoryBudgetBytes, perStep)
	if err != nil {
		return Stats{}, err
	}
	if axisLength < 0 || axisLength > src.Shape()[0] {
		return Stats{}, &source.RangeError{Begin: 0, End: axisLength, Length: src.Shape()[0]}
	}

	stats := Stats{SlabSize: k}
	start := time.Now()

	if err := r.checkMemory(0, PhaseBefore); err != nil {
		return stats, err
	}

	for i, rg := range Plan(axisLength, k) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		slabBytes := int64(rg.Len()) * perStep
		if err := r.ctrl.AcquireMemory(slabBytes); err != nil {
			return stats, &MemoryBudgetExceededError{
				Observed: uint64(r.ctrl.MemoryUsage() + slabBytes),
				Budget:   r.cfg.MemoryBudgetBytes,
				Slab:     i,
				Phase:    PhaseReserve,
				cause:    err,
			}
		}

		t0 := time.Now()
		err := r.processSlab(ctx, src, rg, visit)
		r.ctrl.ReleaseMemory(slabBytes)

		r.obs.OnSlab(SlabEvent{Index: i, Range: rg, Bytes: slabBytes, Elapsed: time.Since(t0), Err: err})
		if err != nil {
			return stats, fmt.Errorf("slab %d [%d, %d): %w", i, rg.Begin, rg.End, err)
		}

		stats.Slabs++
		stats.Rows += rg.Len()
		stats.BytesRead += slabBytes

		if err := r.checkMemory(i, PhaseAfter); err != nil {
			return stats, err
		}
	}

	stats.Elapsed = time.Since(start)
	return stats, nil
}

func (r *Reducer) processSlab(ctx context.Context, src source.ArraySource, rg Range, visit func(*source.Slab) error) error {
	slab, err := src.ReadSlab(ctx, rg.Begin, rg.End)
	if err != nil {
		return err
	}
	if slab.Begin != rg.Begin || slab.Rows() != rg.Len() || len(slab.Data) != rg.Len()*slab.RowLen() {
		return fmt.Errorf("%w: got rows [%d, %d) with %d elements", ErrSlabShape, slab.Begin, slab.End, len(slab.Data))
	}
	return visit(slab)
}

func (r *Reducer) checkMemory(slab int, phase Phase) error {
	if r.cfg.Probe == nil {
		return nil
	}

	used, err := r.cfg.Probe.MemoryUsage()
	if err != nil {
		return fmt.Errorf("memory probe %s slab %d: %w", phase, slab, err)
	}

	r.obs.OnMemoryCheck(MemoryCheck{Slab: slab, Phase: phase, Observed: used, Budget: r.cfg.MemoryBudgetBytes})

	if used > uint64(r.cfg.MemoryBudgetBytes) {
		return &MemoryBudgetExceededError{
			Observed: used,
			Budget:   r.cfg.MemoryBudgetBytes,
			Slab:     slab,
			Phase:    phase,
		}
	}
	return nil
}

// Summary is the result of Scan.
type Summary struct {
	// Min and Max are the smallest and largest finite values.
	Min, Max float64
	// Missing counts NaN values; Infinite counts infinities.
	Missing, Infinite int
}

// Scan makes one pass over src and returns its finite extent along with
// the number of NaN and infinite values. It returns ErrEmptySource when
// src holds no finite value.
func (r *Reducer) Scan(ctx context.Context, src source.ArraySource) (Summary, error) {
	sum := Summary{Min: math.Inf(1), Max: math.Inf(-1)}
	_, err := r.ForEachSlab(ctx, src, func(s *source.Slab) error {
		if !floats.HasNaN(s.Data) {
			slo, shi := floats.Min(s.Data), floats.Max(s.Data)
			if !math.IsInf(slo, 0) && !math.IsInf(shi, 0) {
				sum.Min, sum.Max = math.Min(sum.Min, slo), math.Max(sum.Max, shi)
				return nil
			}
		}
		for _, v := range s.Data {
			switch {
			case math.IsNaN(v):
				sum.Missing++
			case math.IsInf(v, 0):
				sum.Infinite++
			default:
				sum.Min, sum.Max = math.Min(sum.Min, v), math.Max(sum.Max, v)
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	if sum.Min > sum.Max {
		return sum, ErrEmptySource
	}
	return sum, nil
}

// Extent returns the smallest and largest finite values of src.
// NaN and infinite values are ignored.
func (r *Reducer) Extent(ctx context.Context, src source.ArraySource) (lo, hi float64, err error) {
	sum, err := r.Scan(ctx, src)
	if err != nil {
		return 0, 0, err
	}
	return sum.Min, sum.Max, nil
}

// ExtractPoint returns the series along the first axis at the given
// position of the remaining axes.
func (r *Reducer) ExtractPoint(ctx context.Context, src source.ArraySource, index ...int) ([]float64, error) {
	shape := src.Shape()
	if len(shape) == 0 {
		return nil, source.ErrEmptyShape
	}
	inner := shape[1:]
	if len(index) != len(inner) {
		return nil, fmt.Errorf("index has %d components, array has %d inner axes", len(index), len(inner))
	}

	off := 0
	for i, idx := range index {
		if idx < 0 || idx >= inner[i] {
			return nil, &source.RangeError{Begin: idx, End: idx + 1, Length: inner[i]}
		}
		off = off*inner[i] + idx
	}

	series := make([]float64, shape[0])
	_, err := r.ForEachSlab(ctx, src, func(s *source.Slab) error {
		for i := 0; i < s.Rows(); i++ {
			series[s.Begin+i] = s.Row(i)[off]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return series, nil
}

// Option configures the package-level ReduceAxis.
type Option func(*Config)

// WithProbe sets the memory probe.
func WithProbe(p memprobe.Probe) Option {
	return func(c *Config) { c.Probe = p }
}

// WithController sets the resource controller used for slab reservations.
func WithController(rc *resource.Controller) Option {
	return func(c *Config) { c.Controller = rc }
}

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option {
	return func(c *Config) { c.Observer = o }
}

// ReduceAxis reduces the first axisLength rows of src with slabs sized so
// that a slab of perStepBytes rows fits in memoryBudgetBytes.
func ReduceAxis(ctx context.Context, src source.ArraySource, axisLength int, perStepBytes, memoryBudgetBytes int64, fn ReductionFunc, opts ...Option) ([]float64, error) {
	cfg := Config{MemoryBudgetBytes: memoryBudgetBytes, PerStepBytes: perStepBytes}
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, err := ComputeSlabSize(memoryBudgetBytes, perStepBytes); err != nil {
		return nil, err
	}

	r, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if len(src.Shape()) == 0 {
		return nil, source.ErrEmptyShape
	}
	return r.reduce(ctx, src, axisLength, perStepBytes, fn)
}

// ExtractPoint is shorthand for r.ExtractPoint.
func ExtractPoint(ctx context.Context, r *Reducer, src source.ArraySource, index ...int) ([]float64, error) {
	return r.ExtractPoint(ctx, src, index...)
}
