package source

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DType is the stored element type of a raw array.
type DType uint8

const (
	Int8 DType = iota + 1
	Int16
	Int32
	Float32
	Float64
)

// Size returns the element byte width.
func (d DType) Size() int {
	switch d {
	case Int8:
		return 1
	case Int16:
		return 2
	case Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("DType(%d)", uint8(d))
	}
}

// ParseDType parses the String form of a DType.
func ParseDType(s string) (DType, error) {
	switch s {
	case "int8", "i1", "byte":
		return Int8, nil
	case "int16", "i2", "short":
		return Int16, nil
	case "int32", "i4", "int":
		return Int32, nil
	case "float32", "f4", "float":
		return Float32, nil
	case "float64", "f8", "double":
		return Float64, nil
	default:
		return 0, fmt.Errorf("unknown dtype %q", s)
	}
}

// decode converts len(dst) stored elements from buf.
func (d DType) decode(dst []float64, buf []byte, order binary.ByteOrder) {
	switch d {
	case Int8:
		for i := range dst {
			dst[i] = float64(int8(buf[i]))
		}
	case Int16:
		for i := range dst {
			dst[i] = float64(int16(order.Uint16(buf[i*2:])))
		}
	case Int32:
		for i := range dst {
			dst[i] = float64(int32(order.Uint32(buf[i*4:])))
		}
	case Float32:
		for i := range dst {
			dst[i] = float64(math.Float32frombits(order.Uint32(buf[i*4:])))
		}
	case Float64:
		for i := range dst {
			dst[i] = math.Float64frombits(order.Uint64(buf[i*8:]))
		}
	}
}

// AppendValues encodes values as d in the given byte order and appends them to dst.
// Integer types truncate toward zero.
func AppendValues(dst []byte, d DType, order binary.AppendByteOrder, values []float64) []byte {
	for _, v := range values {
		switch d {
		case Int8:
			dst = append(dst, byte(int8(v)))
		case Int16:
			dst = order.AppendUint16(dst, uint16(int16(v)))
		case Int32:
			dst = order.AppendUint32(dst, uint32(int32(v)))
		case Float32:
			dst = order.AppendUint32(dst, math.Float32bits(float32(v)))
		case Float64:
			dst = order.AppendUint64(dst, math.Float64bits(v))
		}
	}
	return dst
}
