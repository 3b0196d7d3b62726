package quantization

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Bits is the width of the signed integer container packed values are stored in.
type Bits int

const (
	Bits8  Bits = 8
	Bits16 Bits = 16
	Bits32 Bits = 32
)

// Validate returns ErrUnsupportedBits unless b is 8, 16 or 32.
func (b Bits) Validate() error {
	switch b {
	case Bits8, Bits16, Bits32:
		return nil
	default:
		return ErrUnsupportedBits
	}
}

func (b Bits) String() string {
	return fmt.Sprintf("int%d", int(b))
}

// Range returns the representable range [-2^(b-1), 2^(b-1)-1].
func (b Bits) Range() (lo, hi int64) {
	half := int64(1) << (uint(b) - 1)
	return -half, half - 1
}

// Bytes returns the container size in bytes.
func (b Bits) Bytes() int {
	return int(b) / 8
}

// Params are the scale/offset pair of an affine quantization.
// They are computed once per dataset and reused for every value.
//
// With Fill set the lowest container value is reserved as the fill code:
// NaN encodes to it and it decodes to NaN, and the data range maps onto
// the remaining 2^b - 1 codes.
type Params struct {
	Scale  float64
	Offset float64
	Bits   Bits
	Fill   bool
}

// ComputeParameters derives scale and offset for packing [min, max] into a
// signed integer of the given width.
//
// If max == min the returned Params have a zero Scale (see Degenerate).
func ComputeParameters(min, max float64, bits Bits) (Params, error) {
	if err := bits.Validate(); err != nil {
		return Params{}, err
	}
	if math.IsNaN(min) || math.IsNaN(max) || max < min {
		return Params{}, &InvalidRangeError{Min: min, Max: max}
	}

	steps := math.Exp2(float64(bits)) - 1
	scale := (max - min) / steps
	offset := min + math.Exp2(float64(bits-1))*scale

	return Params{Scale: scale, Offset: offset, Bits: bits}, nil
}

// ComputeParametersWithFill is ComputeParameters with the lowest container
// value reserved as the fill code, so [min, max] maps onto
// [-2^(b-1)+1, 2^(b-1)-1] and the range loses one step.
func ComputeParametersWithFill(min, max float64, bits Bits) (Params, error) {
	if err := bits.Validate(); err != nil {
		return Params{}, err
	}
	if math.IsNaN(min) || math.IsNaN(max) || max < min {
		return Params{}, &InvalidRangeError{Min: min, Max: max}
	}

	steps := math.Exp2(float64(bits)) - 2
	scale := (max - min) / steps
	offset := min + (math.Exp2(float64(bits-1))-1)*scale

	return Params{Scale: scale, Offset: offset, Bits: bits, Fill: true}, nil
}

// ParamsFor computes Params from the observed extent of values.
func ParamsFor(values []float64, bits Bits) (Params, error) {
	if len(values) == 0 {
		return Params{}, &InvalidRangeError{Min: math.NaN(), Max: math.NaN()}
	}
	return ComputeParameters(floats.Min(values), floats.Max(values), bits)
}

// Degenerate reports whether the params describe a constant input (zero scale).
func (p Params) Degenerate() bool {
	return p.Scale == 0
}

// MaxError returns the bound on |Unpack(Pack(v)) - v| for v inside the range.
func (p Params) MaxError() float64 {
	return p.Scale
}

// Min returns the smallest value the params represent exactly.
func (p Params) Min() float64 {
	lo, _ := p.ValidRange()
	return Unpack(lo, p.Scale, p.Offset)
}

// Max returns the largest value the params represent exactly.
func (p Params) Max() float64 {
	_, hi := p.ValidRange()
	return Unpack(hi, p.Scale, p.Offset)
}

// ValidRange returns the container values data may pack to. It excludes
// the fill code when Fill is set.
func (p Params) ValidRange() (lo, hi int64) {
	lo, hi = p.Bits.Range()
	if p.Fill {
		lo++
	}
	return lo, hi
}

// FillCode returns the container value reserved for missing data.
// It is meaningful only when Fill is set.
func (p Params) FillCode() int64 {
	lo, _ := p.Bits.Range()
	return lo
}

const (
	paramsBinarySize = 17
	fillFlag         = 0x80
)

// MarshalBinary implements encoding.BinaryMarshaler.
// Format (little-endian): [bits:uint8][scale:float64][offset:float64].
// The high bit of the first byte is set when Fill is.
func (p Params) MarshalBinary() ([]byte, error) {
	if err := p.Bits.Validate(); err != nil {
		return nil, err
	}
	b := make([]byte, paramsBinarySize)
	b[0] = uint8(p.Bits)
	if p.Fill {
		b[0] |= fillFlag
	}
	binary.LittleEndian.PutUint64(b[1:9], math.Float64bits(p.Scale))
	binary.LittleEndian.PutUint64(b[9:17], math.Float64bits(p.Offset))
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *Params) UnmarshalBinary(data []byte) error {
	if len(data) != paramsBinarySize {
		return ErrInvalidParams
	}
	bits := Bits(data[0] &^ fillFlag)
	if err := bits.Validate(); err != nil {
		return err
	}
	p.Bits = bits
	p.Fill = data[0]&fillFlag != 0
	p.Scale = math.Float64frombits(binary.LittleEndian.Uint64(data[1:9]))
	p.Offset = math.Float64frombits(binary.LittleEndian.Uint64(data[9:17]))
	return nil
}
