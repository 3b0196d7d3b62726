package quantization

import (
	"errors"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

// ErrLengthMismatch is returned when source and destination slices differ in length.
var ErrLengthMismatch = errors.New("source and destination lengths differ")

// snapUlps bounds, in units of machine epsilon relative to the magnitudes
// involved, how far a quotient may sit below an integer and still be treated
// as that integer before flooring. It absorbs the rounding of the
// scale/offset arithmetic so range endpoints land on the container bounds.
const snapUlps = 4

const epsilon = 0x1p-52

// Pack maps value to its packed integer: floor((value - offset) / scale).
//
// The result is not checked against any container range. A zero scale
// yields math.MaxInt64 or math.MinInt64 (or 0 for value == offset).
func Pack(value, scale, offset float64) int64 {
	q := (value - offset) / scale
	switch {
	case math.IsNaN(q):
		return 0
	case math.IsInf(q, 1):
		return math.MaxInt64
	case math.IsInf(q, -1):
		return math.MinInt64
	}

	r := math.Round(q)
	if math.Abs(q-r) <= snapTolerance(value, scale, offset, q) {
		q = r
	}
	f := math.Floor(q)
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	if f <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(f)
}

// snapTolerance is the rounding noise (value - offset) / scale can carry:
// a few ulps of each operand carried through the division.
func snapTolerance(value, scale, offset, q float64) float64 {
	return snapUlps * epsilon * ((math.Abs(value)+math.Abs(offset))/math.Abs(scale) + math.Abs(q))
}

// Unpack maps a packed integer back to its value: packed*scale + offset.
func Unpack(packed int64, scale, offset float64) float64 {
	return float64(packed)*scale + offset
}

// OverflowPolicy decides what happens to values that pack outside the container range.
type OverflowPolicy int

const (
	// Reject fails with *OutOfRangeError.
	Reject OverflowPolicy = iota
	// Clamp saturates to the nearest container bound.
	Clamp
	// Unchecked returns the raw packed integer.
	Unchecked
)

func (p OverflowPolicy) String() string {
	switch p {
	case Reject:
		return "reject"
	case Clamp:
		return "clamp"
	case Unchecked:
		return "unchecked"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy parses the String form of a policy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "reject":
		return Reject, nil
	case "clamp", "saturate":
		return Clamp, nil
	case "unchecked":
		return Unchecked, nil
	default:
		return Reject, errors.New("unknown overflow policy: " + s)
	}
}

// Quantizer packs and unpacks values with fixed Params and an OverflowPolicy.
// It is immutable and safe for concurrent use.
type Quantizer struct {
	params Params
	policy OverflowPolicy
	lo, hi int64
}

// New creates a Quantizer. Params must carry a supported Bits value.
func New(params Params, policy OverflowPolicy) (*Quantizer, error) {
	if err := params.Bits.Validate(); err != nil {
		return nil, err
	}
	lo, hi := params.ValidRange()
	return &Quantizer{params: params, policy: policy, lo: lo, hi: hi}, nil
}

// Params returns the quantization parameters.
func (q *Quantizer) Params() Params {
	return q.params
}

// Policy returns the overflow policy.
func (q *Quantizer) Policy() OverflowPolicy {
	return q.policy
}

// Encode packs a single value. NaN packs to the fill code when the params
// reserve one.
func (q *Quantizer) Encode(v float64) (int64, error) {
	p, _, err := q.encode(v)
	return p, err
}

// Decode unpacks a single value. The fill code decodes to NaN.
func (q *Quantizer) Decode(p int64) float64 {
	if q.params.Fill && p == q.params.FillCode() {
		return math.NaN()
	}
	if q.params.Degenerate() {
		return q.params.Offset
	}
	return Unpack(p, q.params.Scale, q.params.Offset)
}

func (q *Quantizer) encode(v float64) (packed int64, saturated bool, err error) {
	if q.params.Fill && math.IsNaN(v) {
		return q.params.FillCode(), false, nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, ErrNotFinite
	}

	if q.params.Degenerate() && v == q.params.Offset {
		return 0, false, nil
	}

	packed = Pack(v, q.params.Scale, q.params.Offset)
	if packed >= q.lo && packed <= q.hi {
		return packed, false, nil
	}

	switch q.policy {
	case Clamp:
		if packed < q.lo {
			return q.lo, true, nil
		}
		return q.hi, true, nil
	case Unchecked:
		return packed, false, nil
	default:
		return 0, false, &OutOfRangeError{Value: v, Packed: packed, Bits: q.params.Bits}
	}
}

// Integer is the set of signed containers packed values are stored in.
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64
}

// EncodeSlice packs src into dst. It returns the indices that were saturated
// under the Clamp policy; the bitmap is empty for other policies.
//
// Under Unchecked, values that overflow T wrap around.
func EncodeSlice[T Integer](q *Quantizer, dst []T, src []float64) (*roaring.Bitmap, error) {
	if len(dst) != len(src) {
		return nil, ErrLengthMismatch
	}
	saturated := roaring.New()
	for i, v := range src {
		p, sat, err := q.encode(v)
		if err != nil {
			return nil, err
		}
		if sat {
			saturated.Add(uint32(i))
		}
		dst[i] = T(p)
	}
	return saturated, nil
}

// DecodeSlice unpacks src into dst.
func DecodeSlice[T Integer](q *Quantizer, dst []float64, src []T) error {
	if len(dst) != len(src) {
		return ErrLengthMismatch
	}
	for i, p := range src {
		dst[i] = q.Decode(int64(p))
	}
	return nil
}
