// Package quantization implements the scale/offset integer packing convention
// used by NetCDF and CF-compliant datasets.
//
// A floating-point range [min, max] is mapped onto the full range of a signed
// 8, 16 or 32 bit integer container:
//
//	scale  = (max - min) / (2^bits - 1)
//	offset = min + 2^(bits-1) * scale
//
//	packed   = floor((value - offset) / scale)
//	unpacked = packed*scale + offset
//
// Rounding is floor, not round-to-nearest. The minimum of the range maps
// exactly onto the smallest representable integer and the maximum onto the
// largest one; the reconstruction error is bounded by one scale step.
//
// # Low-level functions
//
// Pack and Unpack are the raw formulas. Pack does not check the destination
// range, so a value outside [min, max] yields an integer outside the
// container's range:
//
//	p, _ := quantization.ComputeParameters(-100, 100, quantization.Bits8)
//	quantization.Pack(-100, p.Scale, p.Offset) // -128
//	quantization.Pack(100, p.Scale, p.Offset)  // 127
//
// # Quantizer
//
// Quantizer binds a Params to an OverflowPolicy and is what higher layers use:
//
//	q := quantization.New(p, quantization.Clamp)
//	dst := make([]int16, len(values))
//	saturated, err := quantization.EncodeSlice(q, dst, values)
//
// Policies:
//
//	| Policy    | Out-of-range value                   |
//	|-----------|--------------------------------------|
//	| Reject    | *OutOfRangeError (default)           |
//	| Clamp     | saturated to the container bounds    |
//	| Unchecked | raw integer, may overflow container  |
//
// # Constant input
//
// When max == min the scale is zero and the map is not invertible.
// ComputeParameters still returns the Params (Degenerate reports true);
// a Quantizer encodes the constant itself as 0 and applies the overflow
// policy to every other value.
package quantization
