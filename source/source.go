package source

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyShape is returned for arrays without dimensions.
var ErrEmptyShape = errors.New("array has no dimensions")

// ArraySource is a read-only multidimensional numeric array.
type ArraySource interface {
	// Shape returns the per-axis extents. The caller must not modify it.
	Shape() []int

	// ElementSize returns the stored byte width of one element.
	ElementSize() int

	// ReadSlab returns rows [begin, end) along the first axis.
	ReadSlab(ctx context.Context, begin, end int) (*Slab, error)
}

// Footprinter is implemented by sources whose ReadSlab keeps more than the
// stored bytes of a row alive while a slab is read.
type Footprinter interface {
	// RowFootprint returns the bytes one first-axis row occupies while
	// its slab is live.
	RowFootprint() int64
}

// Slab is a dense block of rows read from an ArraySource.
// Data is row-major with Shape[0] == End-Begin.
type Slab struct {
	Begin int
	End   int
	Shape []int
	Data  []float64
}

// Rows returns the number of rows along the iteration axis.
func (s *Slab) Rows() int {
	return s.End - s.Begin
}

// RowLen returns the number of elements in one row.
func (s *Slab) RowLen() int {
	return Product(s.Shape[1:])
}

// Row returns the elements of row i (relative to Begin).
func (s *Slab) Row(i int) []float64 {
	n := s.RowLen()
	return s.Data[i*n : (i+1)*n]
}

// RangeError reports a slab request outside the source's first axis.
type RangeError struct {
	Begin, End, Length int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("slab [%d, %d) out of bounds for axis of length %d", e.Begin, e.End, e.Length)
}

// CheckRange validates a half-open slab range against an axis length.
func CheckRange(begin, end, length int) error {
	if begin < 0 || end > length || begin > end {
		return &RangeError{Begin: begin, End: end, Length: length}
	}
	return nil
}

// Product returns the product of dims (1 for an empty slice).
func Product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// RowBytes returns the stored size of one first-axis row of src.
func RowBytes(src ArraySource) int64 {
	return int64(Product(src.Shape()[1:])) * int64(src.ElementSize())
}

// RowFootprint returns the bytes one first-axis row of src occupies while
// its slab is live: the source's own report if it is a Footprinter,
// otherwise RowBytes.
func RowFootprint(src ArraySource) int64 {
	if f, ok := src.(Footprinter); ok {
		return f.RowFootprint()
	}
	return RowBytes(src)
}

func slabShape(shape []int, rows int) []int {
	s := make([]int, len(shape))
	copy(s, shape)
	s[0] = rows
	return s
}
