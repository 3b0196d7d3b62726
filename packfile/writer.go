package packfile

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/ncpack/codec"
	"github.com/hupe1980/ncpack/quantization"
	"github.com/hupe1980/ncpack/source"
)

// DefaultMaxBlockBytes caps the uncompressed size of a block.
const DefaultMaxBlockBytes = 1 << 20

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithMaxBlockBytes caps the uncompressed size of a block. Larger writes
// are split into several blocks; a block always holds at least one row.
// Readers keep one decompressed block per sequential pass, so the cap
// bounds that buffer.
func WithMaxBlockBytes(n int64) WriterOption {
	return func(w *Writer) { w.maxBlockBytes = n }
}

// Writer streams blocks into an archive. It is not safe for concurrent use.
type Writer struct {
	w      io.Writer
	off    int64
	footer Footer
	rowLen int
	rows   int

	maxBlockBytes int64

	saturated *roaring64.Bitmap
	closed    bool
}

// NewWriter writes the archive header to w.
func NewWriter(w io.Writer, params quantization.Params, shape []int, compression codec.Compression, opts ...WriterOption) (*Writer, error) {
	if err := params.Bits.Validate(); err != nil {
		return nil, err
	}
	if len(shape) == 0 {
		return nil, source.ErrEmptyShape
	}
	if _, err := compression.MarshalText(); err != nil {
		return nil, err
	}

	n, err := w.Write(encodeHeader())
	if err != nil {
		return nil, fmt.Errorf("packfile: write header: %w", err)
	}

	wr := &Writer{
		w:   w,
		off: int64(n),
		footer: Footer{
			Version:     Version,
			Params:      ParamsInfo{Scale: params.Scale, Offset: params.Offset, Bits: int(params.Bits), Fill: params.Fill},
			Shape:       append([]int(nil), shape...),
			Compression: compression,
		},
		rowLen:        source.Product(shape[1:]),
		maxBlockBytes: DefaultMaxBlockBytes,
		saturated:     roaring64.New(),
	}
	for _, opt := range opts {
		opt(wr)
	}
	return wr, nil
}

// blockRows returns the most rows one block may hold.
func (w *Writer) blockRows() int {
	rowBytes := int64(w.rowLen) * int64(quantization.Bits(w.footer.Params.Bits).Bytes())
	if w.maxBlockBytes <= 0 || rowBytes == 0 {
		return w.footer.Shape[0]
	}
	return int(max(1, w.maxBlockBytes/rowBytes))
}

// WriteBlock appends rows*rowLen packed integers, split into blocks of at
// most the configured block size.
func (w *Writer) WriteBlock(ints []int64, rows int) error {
	if w.closed {
		return ErrClosed
	}
	if rows <= 0 || len(ints) != rows*w.rowLen {
		return fmt.Errorf("packfile: block of %d values does not hold %d rows of %d", len(ints), rows, w.rowLen)
	}
	if w.rows+rows > w.footer.Shape[0] {
		return &source.RangeError{Begin: w.rows, End: w.rows + rows, Length: w.footer.Shape[0]}
	}

	step := w.blockRows()
	for done := 0; done < rows; done += step {
		n := min(step, rows-done)
		if err := w.writeBlock(ints[done*w.rowLen:(done+n)*w.rowLen], n); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeBlock(ints []int64, rows int) error {
	bits := quantization.Bits(w.footer.Params.Bits)
	raw := appendInts(make([]byte, 0, len(ints)*bits.Bytes()), ints, bits)

	block, err := codec.CompressBlock(raw, w.footer.Compression)
	if err != nil {
		return fmt.Errorf("packfile: compress block %d: %w", len(w.footer.Blocks), err)
	}

	n, err := w.w.Write(block)
	if err != nil {
		return fmt.Errorf("packfile: write block %d: %w", len(w.footer.Blocks), err)
	}

	w.footer.Blocks = append(w.footer.Blocks, BlockInfo{Offset: w.off, Length: int64(n), Rows: rows})
	w.footer.SlabSize = max(w.footer.SlabSize, rows)
	w.off += int64(n)
	w.rows += rows
	return nil
}

// WriteValues packs values with q and appends them like WriteBlock. Elements
// saturated under the Clamp policy are recorded in the footer.
func (w *Writer) WriteValues(q *quantization.Quantizer, values []float64, rows int) error {
	ints := make([]int64, len(values))
	sat, err := quantization.EncodeSlice(q, ints, values)
	if err != nil {
		return err
	}

	base := uint64(w.rows) * uint64(w.rowLen)
	if err := w.WriteBlock(ints, rows); err != nil {
		return err
	}

	it := sat.Iterator()
	for it.HasNext() {
		w.saturated.Add(base + uint64(it.Next()))
	}
	return nil
}

// Rows returns the number of rows written so far.
func (w *Writer) Rows() int { return w.rows }

// BytesWritten returns the archive size so far.
func (w *Writer) BytesWritten() int64 { return w.off }

// Saturated returns the number of saturated elements recorded so far.
func (w *Writer) Saturated() uint64 { return w.saturated.GetCardinality() }

// Close writes the footer and trailer. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return ErrClosed
	}
	if w.rows != w.footer.Shape[0] {
		return fmt.Errorf("%w: wrote %d of %d rows", ErrIncomplete, w.rows, w.footer.Shape[0])
	}
	w.closed = true

	w.footer.Saturated = w.saturated.GetCardinality()
	if w.footer.Saturated > 0 {
		idx, err := w.saturated.MarshalBinary()
		if err != nil {
			return fmt.Errorf("packfile: encode saturated index: %w", err)
		}
		w.footer.SaturatedIndex = idx
	}

	data, err := codec.Default.Marshal(&w.footer)
	if err != nil {
		return fmt.Errorf("packfile: encode footer: %w", err)
	}

	trailer := make([]byte, trailerSize)
	binary.LittleEndian.PutUint32(trailer, uint32(len(data)))
	copy(trailer[4:], Magic)

	for _, b := range [][]byte{data, trailer} {
		n, err := w.w.Write(b)
		if err != nil {
			return fmt.Errorf("packfile: write footer: %w", err)
		}
		w.off += int64(n)
	}
	return nil
}
