package netcdf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/ctessum/cdf"

	"github.com/hupe1980/ncpack/source"
)

var (
	// ErrVariableNotFound is returned when the file has no variable of the requested name.
	ErrVariableNotFound = errors.New("netcdf: variable not found")
	// ErrUnsupportedType is returned for CHAR variables and unknown element types.
	ErrUnsupportedType = errors.New("netcdf: unsupported element type")
)

// CF packing attribute names.
const (
	AttrScaleFactor = "scale_factor"
	AttrAddOffset   = "add_offset"
	AttrFillValue   = "_FillValue"
	AttrValidMin    = "valid_min"
	AttrValidMax    = "valid_max"
	AttrUnits       = "units"
)

// Variable is a NetCDF variable read slab by slab along its first dimension.
// It implements source.ArraySource and is safe for concurrent use.
type Variable struct {
	mu sync.Mutex
	f  *cdf.File

	name  string
	dims  []string
	shape []int
	dtype source.DType

	scale, offset float64
	packed        bool

	fill    float64
	hasFill bool
}

var _ source.ArraySource = (*Variable)(nil)

// Open reads the header of rw and returns the named variable.
func Open(rw cdf.ReaderWriterAt, name string) (*Variable, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("netcdf: open: %w", err)
	}
	return FromFile(f, name)
}

// FromFile returns the named variable of an already opened file.
func FromFile(f *cdf.File, name string) (*Variable, error) {
	if !slices.Contains(f.Header.Variables(), name) {
		return nil, fmt.Errorf("%w: %q", ErrVariableNotFound, name)
	}
	shape := f.Header.Lengths(name)
	if len(shape) == 0 {
		return nil, fmt.Errorf("netcdf: variable %q: %w", name, source.ErrEmptyShape)
	}

	dtype, err := dtypeOf(f.Reader(name, nil, nil).Zero(0))
	if err != nil {
		return nil, fmt.Errorf("netcdf: variable %q: %w", name, err)
	}

	v := &Variable{
		f:     f,
		name:  name,
		dims:  f.Header.Dimensions(name),
		shape: shape,
		dtype: dtype,
		scale: 1,
	}

	scale, hasScale := attrFloat(f.Header.GetAttribute(name, AttrScaleFactor))
	offset, hasOffset := attrFloat(f.Header.GetAttribute(name, AttrAddOffset))
	if hasScale {
		v.scale = scale
	}
	if hasOffset {
		v.offset = offset
	}
	v.packed = hasScale || hasOffset

	v.fill, v.hasFill = attrFloat(f.Header.GetAttribute(name, AttrFillValue))

	return v, nil
}

// Name returns the variable name.
func (v *Variable) Name() string { return v.name }

// Dimensions returns the dimension names.
func (v *Variable) Dimensions() []string { return v.dims }

// DType returns the stored element type.
func (v *Variable) DType() source.DType { return v.dtype }

// Packing returns the scale_factor/add_offset pair and whether either is present.
func (v *Variable) Packing() (scale, offset float64, ok bool) {
	return v.scale, v.offset, v.packed
}

// Attribute returns a raw attribute value, or nil.
func (v *Variable) Attribute(name string) interface{} {
	return v.f.Header.GetAttribute(v.name, name)
}

// Shape implements source.ArraySource.
func (v *Variable) Shape() []int { return v.shape }

// ElementSize implements source.ArraySource.
func (v *Variable) ElementSize() int { return v.dtype.Size() }

// RowFootprint implements source.Footprinter. A slab holds the stored
// values read from the file and their float64 conversion at once.
func (v *Variable) RowFootprint() int64 {
	return int64(source.Product(v.shape[1:])) * int64(v.dtype.Size()+8)
}

// ReadSlab implements source.ArraySource.
func (v *Variable) ReadSlab(ctx context.Context, begin, end int) (*source.Slab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := source.CheckRange(begin, end, v.shape[0]); err != nil {
		return nil, err
	}

	rows := end - begin
	n := rows * source.Product(v.shape[1:])
	data := make([]float64, n)

	if n > 0 {
		if err := v.read(data, begin, end); err != nil {
			return nil, err
		}
	}

	shape := make([]int, len(v.shape))
	copy(shape, v.shape)
	shape[0] = rows

	return &source.Slab{Begin: begin, End: end, Shape: shape, Data: data}, nil
}

func (v *Variable) read(dst []float64, begin, end int) error {
	b := make([]int, len(v.shape))
	e := make([]int, len(v.shape))
	b[0], e[0] = begin, end

	v.mu.Lock()
	r := v.f.Reader(v.name, b, e)
	buf := r.Zero(len(dst))
	_, err := r.Read(buf)
	v.mu.Unlock()

	if err != nil {
		return fmt.Errorf("netcdf: read %s[%d:%d]: %w", v.name, begin, end, err)
	}
	if err := toFloat64(dst, buf); err != nil {
		return err
	}

	for i, x := range dst {
		if v.hasFill && x == v.fill {
			dst[i] = math.NaN()
			continue
		}
		if v.packed {
			dst[i] = x*v.scale + v.offset
		}
	}
	return nil
}
