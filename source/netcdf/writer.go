package netcdf

import (
	"context"
	"errors"
	"fmt"

	"github.com/ctessum/cdf"

	"github.com/hupe1980/ncpack/quantization"
	"github.com/hupe1980/ncpack/reduce"
	"github.com/hupe1980/ncpack/source"
)

// PackSpec describes the packed variable WritePacked creates.
type PackSpec struct {
	// Variable is the name of the packed variable.
	Variable string

	// Dimensions names the axes; defaults to dim0, dim1, ...
	Dimensions []string

	Params quantization.Params
	Policy quantization.OverflowPolicy

	// Units is copied to the units attribute when non-empty.
	Units string
}

// PackResult summarizes a WritePacked run.
type PackResult struct {
	Stats reduce.Stats
	// Saturated counts values clamped to the container range.
	Saturated uint64
}

// WritePacked creates a NetCDF file in dst holding src packed into integers
// with spec.Params. The file carries scale_factor, add_offset, valid_min and
// valid_max attributes, and _FillValue when the params reserve a fill code,
// so Open unpacks it transparently with NaN for missing elements.
//
// src is read slab by slab through r; only one slab is held at a time.
func WritePacked(ctx context.Context, r *reduce.Reducer, dst cdf.ReaderWriterAt, src source.ArraySource, spec PackSpec) (*PackResult, error) {
	if spec.Variable == "" {
		return nil, errors.New("netcdf: variable name is required")
	}

	q, err := quantization.New(spec.Params, spec.Policy)
	if err != nil {
		return nil, err
	}

	shape := src.Shape()
	dims := spec.Dimensions
	if len(dims) == 0 {
		dims = make([]string, len(shape))
		for i := range dims {
			dims[i] = fmt.Sprintf("dim%d", i)
		}
	}
	if len(dims) != len(shape) {
		return nil, fmt.Errorf("netcdf: %d dimension names for %d axes", len(dims), len(shape))
	}

	h := cdf.NewHeader(dims, shape)
	h.AddVariable(spec.Variable, dims, containerZero(spec.Params.Bits))
	h.AddAttribute(spec.Variable, AttrScaleFactor, []float64{spec.Params.Scale})
	h.AddAttribute(spec.Variable, AttrAddOffset, []float64{spec.Params.Offset})
	lo, hi := spec.Params.ValidRange()
	h.AddAttribute(spec.Variable, AttrValidMin, containerValues(spec.Params.Bits, lo))
	h.AddAttribute(spec.Variable, AttrValidMax, containerValues(spec.Params.Bits, hi))
	if spec.Params.Fill {
		h.AddAttribute(spec.Variable, AttrFillValue, containerValues(spec.Params.Bits, spec.Params.FillCode()))
	}
	if spec.Units != "" {
		h.AddAttribute(spec.Variable, AttrUnits, spec.Units)
	}
	h.Define()

	if errs := h.Check(); len(errs) > 0 {
		return nil, fmt.Errorf("netcdf: invalid header: %w", errors.Join(errs...))
	}

	f, err := cdf.Create(dst, h)
	if err != nil {
		return nil, fmt.Errorf("netcdf: create: %w", err)
	}

	res := &PackResult{}
	res.Stats, err = r.ForEachSlab(ctx, src, func(s *source.Slab) error {
		buf, saturated, err := encodeSlab(q, s.Data)
		if err != nil {
			return err
		}
		res.Saturated += saturated

		b := make([]int, len(shape))
		e := make([]int, len(shape))
		b[0], e[0] = s.Begin, s.End

		if _, err := f.Writer(spec.Variable, b, e).Write(buf); err != nil {
			return fmt.Errorf("netcdf: write %s[%d:%d]: %w", spec.Variable, s.Begin, s.End, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// containerZero returns the cdf type template for a packed container.
// NetCDF bytes travel as []uint8 holding the two's complement pattern.
func containerZero(bits quantization.Bits) interface{} {
	switch bits {
	case quantization.Bits8:
		return []uint8{0}
	case quantization.Bits16:
		return []int16{0}
	default:
		return []int32{0}
	}
}

func containerValues(bits quantization.Bits, v int64) interface{} {
	switch bits {
	case quantization.Bits8:
		return []uint8{uint8(int8(v))}
	case quantization.Bits16:
		return []int16{int16(v)}
	default:
		return []int32{int32(v)}
	}
}

func encodeSlab(q *quantization.Quantizer, data []float64) (interface{}, uint64, error) {
	switch q.Params().Bits {
	case quantization.Bits8:
		packed := make([]int8, len(data))
		sat, err := quantization.EncodeSlice(q, packed, data)
		if err != nil {
			return nil, 0, err
		}
		out := make([]uint8, len(packed))
		for i, p := range packed {
			out[i] = uint8(p)
		}
		return out, sat.GetCardinality(), nil
	case quantization.Bits16:
		packed := make([]int16, len(data))
		sat, err := quantization.EncodeSlice(q, packed, data)
		if err != nil {
			return nil, 0, err
		}
		return packed, sat.GetCardinality(), nil
	default:
		packed := make([]int32, len(data))
		sat, err := quantization.EncodeSlice(q, packed, data)
		if err != nil {
			return nil, 0, err
		}
		return packed, sat.GetCardinality(), nil
	}
}
