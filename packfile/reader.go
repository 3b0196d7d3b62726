package packfile

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/ncpack/codec"
	"github.com/hupe1980/ncpack/quantization"
	"github.com/hupe1980/ncpack/resource"
	"github.com/hupe1980/ncpack/source"
)

// Reader reads an archive. It is safe for concurrent use if the underlying
// io.ReaderAt is.
type Reader struct {
	r      io.ReaderAt
	size   int64
	footer Footer
	q      *quantization.Quantizer
	rowLen int

	// firstRow[i] is the first row of block i; firstRow[len(blocks)] == shape[0].
	firstRow []int

	// The last block ReadSlab decompressed. Consecutive slabs of a
	// sequential pass share it instead of reading the block again.
	mu          sync.Mutex
	cachedBlock int
	cachedData  []byte
}

var _ source.ArraySource = (*Reader)(nil)

// Open validates the header and trailer of an archive of the given size
// and decodes its footer.
func Open(r io.ReaderAt, size int64) (*Reader, error) {
	if size < headerSize+trailerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, size)
	}

	hdr, err := readFull(r, 0, headerSize)
	if err != nil {
		return nil, fmt.Errorf("packfile: read header: %w", err)
	}
	if err := checkHeader(hdr); err != nil {
		return nil, err
	}

	trailer, err := readFull(r, size-trailerSize, trailerSize)
	if err != nil {
		return nil, fmt.Errorf("packfile: read trailer: %w", err)
	}
	if string(trailer[4:]) != Magic {
		return nil, ErrBadMagic
	}

	footerLen := int64(binary.LittleEndian.Uint32(trailer))
	footerOff := size - trailerSize - footerLen
	if footerOff < headerSize {
		return nil, fmt.Errorf("%w: footer length %d", ErrCorrupt, footerLen)
	}

	data, err := readFull(r, footerOff, int(footerLen))
	if err != nil {
		return nil, fmt.Errorf("packfile: read footer: %w", err)
	}

	rd := &Reader{r: r, size: size, cachedBlock: -1}
	if err := codec.Default.Unmarshal(data, &rd.footer); err != nil {
		return nil, fmt.Errorf("%w: footer: %w", ErrCorrupt, err)
	}
	if err := rd.init(footerOff); err != nil {
		return nil, err
	}
	return rd, nil
}

func (rd *Reader) init(bodyEnd int64) error {
	f := &rd.footer
	if f.Version != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.Version)
	}
	if len(f.Shape) == 0 {
		return fmt.Errorf("%w: %w", ErrCorrupt, source.ErrEmptyShape)
	}

	q, err := quantization.New(f.QuantizationParams(), quantization.Unchecked)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	rd.q = q
	rd.rowLen = source.Product(f.Shape[1:])

	rd.firstRow = make([]int, len(f.Blocks)+1)
	off := int64(headerSize)
	for i, b := range f.Blocks {
		if b.Offset != off || b.Length < 0 || b.Offset+b.Length > bodyEnd || b.Rows <= 0 {
			return fmt.Errorf("%w: block %d at [%d, +%d)", ErrCorrupt, i, b.Offset, b.Length)
		}
		off += b.Length
		rd.firstRow[i+1] = rd.firstRow[i] + b.Rows
	}
	if rd.firstRow[len(f.Blocks)] != f.Shape[0] {
		return fmt.Errorf("%w: blocks hold %d rows, shape declares %d", ErrCorrupt, rd.firstRow[len(f.Blocks)], f.Shape[0])
	}
	return nil
}

// Footer returns the decoded footer. The caller must not modify it.
func (rd *Reader) Footer() *Footer { return &rd.footer }

// Params returns the quantization parameters.
func (rd *Reader) Params() quantization.Params { return rd.q.Params() }

// Shape implements source.ArraySource.
func (rd *Reader) Shape() []int { return rd.footer.Shape }

// ElementSize implements source.ArraySource. It is the container width.
func (rd *Reader) ElementSize() int { return rd.q.Params().Bits.Bytes() }

// RowFootprint implements source.Footprinter. A slab row is decoded from
// the cached block straight into float64 values.
func (rd *Reader) RowFootprint() int64 { return int64(rd.rowLen) * 8 }

// MaxBlockBytes returns the decompressed size of the largest block, which
// bounds the block ReadSlab keeps cached.
func (rd *Reader) MaxBlockBytes() int64 {
	return int64(rd.footer.SlabSize) * int64(rd.rowLen) * int64(rd.ElementSize())
}

// NumBlocks returns the number of blocks.
func (rd *Reader) NumBlocks() int { return len(rd.footer.Blocks) }

// Size returns the archive size in bytes.
func (rd *Reader) Size() int64 { return rd.size }

// Saturated returns the flat indices of elements clamped during packing.
func (rd *Reader) Saturated() (*roaring64.Bitmap, error) {
	bm := roaring64.New()
	if len(rd.footer.SaturatedIndex) == 0 {
		return bm, nil
	}
	if err := bm.UnmarshalBinary(rd.footer.SaturatedIndex); err != nil {
		return nil, fmt.Errorf("%w: saturated index: %w", ErrCorrupt, err)
	}
	return bm, nil
}

// ReadBlock returns the packed integers of block i.
func (rd *Reader) ReadBlock(i int) ([]int64, error) {
	data, err := rd.blockData(i)
	if err != nil {
		return nil, err
	}
	ints := make([]int64, len(data)/rd.ElementSize())
	decodeInts(ints, data, rd.q.Params().Bits)
	return ints, nil
}

// blockData reads and decompresses block i.
func (rd *Reader) blockData(i int) ([]byte, error) {
	if i < 0 || i >= len(rd.footer.Blocks) {
		return nil, fmt.Errorf("packfile: block %d out of range [0, %d)", i, len(rd.footer.Blocks))
	}
	b := rd.footer.Blocks[i]

	raw, err := readFull(rd.r, b.Offset, int(b.Length))
	if err != nil {
		return nil, fmt.Errorf("packfile: read block %d: %w", i, err)
	}

	data, err := codec.DecompressBlock(raw, rd.footer.Compression)
	if err != nil {
		return nil, fmt.Errorf("packfile: block %d: %w", i, err)
	}

	if want := b.Rows * rd.rowLen * rd.ElementSize(); len(data) != want {
		return nil, fmt.Errorf("%w: block %d holds %d bytes, want %d", ErrCorrupt, i, len(data), want)
	}
	return data, nil
}

// Unpack decodes the whole archive with up to workers blocks in flight.
func (rd *Reader) Unpack(ctx context.Context, workers int) ([]float64, error) {
	out := make([]float64, source.Product(rd.footer.Shape))
	rc := resource.NewController(resource.Config{MaxWorkers: int64(workers)})
	if err := rd.UnpackInto(ctx, out, rc); err != nil {
		return nil, err
	}
	return out, nil
}

// UnpackInto decodes the whole archive into out, which must hold exactly
// prod(Shape()) values. Each block in flight holds one of rc's worker slots.
func (rd *Reader) UnpackInto(ctx context.Context, out []float64, rc *resource.Controller) error {
	if n := source.Product(rd.footer.Shape); len(out) != n {
		return fmt.Errorf("packfile: destination holds %d values, archive has %d", len(out), n)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := range rd.footer.Blocks {
		if err := rc.AcquireWorker(ctx); err != nil {
			if werr := g.Wait(); werr != nil {
				return werr
			}
			return err
		}

		dst := out[rd.firstRow[i]*rd.rowLen : rd.firstRow[i+1]*rd.rowLen]
		g.Go(func() error {
			defer rc.ReleaseWorker()
			data, err := rd.blockData(i)
			if err != nil {
				return err
			}
			decodeValues(rd.q, dst, data)
			return nil
		})
	}

	return g.Wait()
}

// cachedBlockData returns block i from the single-block cache, reading it
// on a miss. The returned bytes must not be modified.
func (rd *Reader) cachedBlockData(i int) ([]byte, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	if rd.cachedBlock == i {
		return rd.cachedData, nil
	}
	data, err := rd.blockData(i)
	if err != nil {
		return nil, err
	}
	rd.cachedBlock, rd.cachedData = i, data
	return data, nil
}

// ReadSlab implements source.ArraySource by decoding the rows of [begin, end)
// from the blocks that overlap it. Besides the slab itself it holds at most
// one decompressed block, so a sequential pass reads every block once.
func (rd *Reader) ReadSlab(ctx context.Context, begin, end int) (*source.Slab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := source.CheckRange(begin, end, rd.footer.Shape[0]); err != nil {
		return nil, err
	}

	shape := append([]int(nil), rd.footer.Shape...)
	shape[0] = end - begin
	slab := &source.Slab{Begin: begin, End: end, Shape: shape, Data: make([]float64, (end-begin)*rd.rowLen)}
	if begin == end {
		return slab, nil
	}

	width := rd.ElementSize()
	first := sort.SearchInts(rd.firstRow, begin+1) - 1
	for i := first; i < len(rd.footer.Blocks) && rd.firstRow[i] < end; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := rd.cachedBlockData(i)
		if err != nil {
			return nil, err
		}

		lo := max(begin, rd.firstRow[i])
		hi := min(end, rd.firstRow[i+1])
		src := data[(lo-rd.firstRow[i])*rd.rowLen*width : (hi-rd.firstRow[i])*rd.rowLen*width]
		decodeValues(rd.q, slab.Data[(lo-begin)*rd.rowLen:(hi-begin)*rd.rowLen], src)
	}
	return slab, nil
}
