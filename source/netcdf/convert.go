package netcdf

import (
	"fmt"

	"github.com/hupe1980/ncpack/source"
)

// dtypeOf maps the slice type cdf returns for a variable to a DType.
func dtypeOf(zero interface{}) (source.DType, error) {
	switch zero.(type) {
	case []uint8:
		return source.Int8, nil
	case []int16:
		return source.Int16, nil
	case []int32:
		return source.Int32, nil
	case []float32:
		return source.Float32, nil
	case []float64:
		return source.Float64, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedType, zero)
	}
}

// toFloat64 widens a cdf value slice into dst. NetCDF bytes are signed.
func toFloat64(dst []float64, buf interface{}) error {
	switch b := buf.(type) {
	case []uint8:
		for i, v := range b {
			dst[i] = float64(int8(v))
		}
	case []int16:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []int32:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []float32:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []float64:
		copy(dst, b)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, buf)
	}
	return nil
}

// attrFloat returns the first element of a numeric attribute.
func attrFloat(attr interface{}) (float64, bool) {
	switch a := attr.(type) {
	case []uint8:
		if len(a) > 0 {
			return float64(int8(a[0])), true
		}
	case []int16:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []float32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []float64:
		if len(a) > 0 {
			return a[0], true
		}
	}
	return 0, false
}
