package source

import (
	"context"

	"github.com/ctessum/sparse"
)

// Dense is an in-memory ArraySource over a sparse.DenseArray.
type Dense struct {
	arr *sparse.DenseArray
}

// NewDense wraps arr. The array must not be modified while in use.
func NewDense(arr *sparse.DenseArray) (*Dense, error) {
	if len(arr.Shape) == 0 {
		return nil, ErrEmptyShape
	}
	return &Dense{arr: arr}, nil
}

// Shape implements ArraySource.
func (d *Dense) Shape() []int { return d.arr.Shape }

// ElementSize implements ArraySource.
func (d *Dense) ElementSize() int { return 8 }

// ReadSlab implements ArraySource. The returned data is a copy.
func (d *Dense) ReadSlab(ctx context.Context, begin, end int) (*Slab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := CheckRange(begin, end, d.arr.Shape[0]); err != nil {
		return nil, err
	}

	row := Product(d.arr.Shape[1:])
	data := make([]float64, (end-begin)*row)
	copy(data, d.arr.Elements[begin*row:end*row])

	return &Slab{
		Begin: begin,
		End:   end,
		Shape: slabShape(d.arr.Shape, end-begin),
		Data:  data,
	}, nil
}
