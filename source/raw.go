package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/ncpack/resource"
)

// ErrShortArray is returned when the backing storage is smaller than the declared shape.
var ErrShortArray = errors.New("backing storage smaller than array shape")

// RawConfig describes a dense row-major array stored at Offset in a ReaderAt.
type RawConfig struct {
	Shape  []int
	DType  DType
	Order  binary.ByteOrder // default little-endian
	Offset int64

	// Size is the size of the backing storage; if positive it is checked
	// against the declared shape.
	Size int64

	// Controller throttles reads; nil means unlimited.
	Controller *resource.Controller
}

// Raw is an ArraySource over raw binary data, e.g. a mapped file or a blob.
type Raw struct {
	r   io.ReaderAt
	cfg RawConfig
}

// NewRaw creates a Raw source.
func NewRaw(r io.ReaderAt, cfg RawConfig) (*Raw, error) {
	if len(cfg.Shape) == 0 {
		return nil, ErrEmptyShape
	}
	if cfg.DType.Size() == 0 {
		return nil, fmt.Errorf("invalid dtype %v", cfg.DType)
	}
	if cfg.Order == nil {
		cfg.Order = binary.LittleEndian
	}
	if cfg.Size > 0 {
		need := cfg.Offset + int64(Product(cfg.Shape))*int64(cfg.DType.Size())
		if cfg.Size < need {
			return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrShortArray, need, cfg.Size)
		}
	}
	return &Raw{r: r, cfg: cfg}, nil
}

// Shape implements ArraySource.
func (s *Raw) Shape() []int { return s.cfg.Shape }

// ElementSize implements ArraySource.
func (s *Raw) ElementSize() int { return s.cfg.DType.Size() }

// RowFootprint implements Footprinter. A slab holds the stored bytes and
// the decoded float64 values at once.
func (s *Raw) RowFootprint() int64 {
	return int64(Product(s.cfg.Shape[1:])) * int64(s.cfg.DType.Size()+8)
}

// ReadSlab implements ArraySource.
func (s *Raw) ReadSlab(ctx context.Context, begin, end int) (*Slab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := CheckRange(begin, end, s.cfg.Shape[0]); err != nil {
		return nil, err
	}

	row := Product(s.cfg.Shape[1:])
	elem := s.cfg.DType.Size()
	n := (end - begin) * row

	buf := make([]byte, n*elem)
	off := s.cfg.Offset + int64(begin*row*elem)

	var ra io.ReaderAt = s.r
	if s.cfg.Controller != nil {
		ra = resource.NewRateLimitedReaderAt(ctx, s.r, s.cfg.Controller)
	}
	read, err := ra.ReadAt(buf, off)
	if err != nil && !(errors.Is(err, io.EOF) && read == len(buf)) {
		return nil, fmt.Errorf("read rows [%d, %d): %w", begin, end, err)
	}

	data := make([]float64, n)
	s.cfg.DType.decode(data, buf, s.cfg.Order)

	return &Slab{
		Begin: begin,
		End:   end,
		Shape: slabShape(s.cfg.Shape, end-begin),
		Data:  data,
	}, nil
}
