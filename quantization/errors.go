package quantization

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedBits is returned for a container width other than 8, 16 or 32.
	ErrUnsupportedBits = errors.New("unsupported bit width")

	// ErrNotFinite is returned when encoding an infinity, or NaN under
	// params without a fill code.
	ErrNotFinite = errors.New("value is not finite")

	// ErrInvalidParams is returned when decoding malformed binary params.
	ErrInvalidParams = errors.New("invalid quantization params")
)

// InvalidRangeError indicates a value range whose maximum is below its minimum.
type InvalidRangeError struct {
	Min float64
	Max float64
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: max %g is less than min %g", e.Max, e.Min)
}

// OutOfRangeError indicates a value whose packed form does not fit the
// destination container.
type OutOfRangeError struct {
	Value  float64
	Packed int64
	Bits   Bits
}

func (e *OutOfRangeError) Error() string {
	lo, hi := e.Bits.Range()
	return fmt.Sprintf("value %g packs to %d, outside int%d range [%d, %d]", e.Value, e.Packed, int(e.Bits), lo, hi)
}
