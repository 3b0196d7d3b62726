package packfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/ncpack/codec"
	"github.com/hupe1980/ncpack/quantization"
)

const (
	// Magic identifies an archive.
	Magic = "NCPK"
	// Version is the current format version.
	Version uint16 = 1

	headerSize  = 8
	trailerSize = 8
)

var (
	// ErrBadMagic is returned when the data is not an archive.
	ErrBadMagic = errors.New("packfile: bad magic")
	// ErrUnsupportedVersion is returned for archives written by a newer format.
	ErrUnsupportedVersion = errors.New("packfile: unsupported version")
	// ErrCorrupt is returned when the footer or block index is inconsistent.
	ErrCorrupt = errors.New("packfile: corrupt archive")
	// ErrIncomplete is returned by Close when fewer rows were written than the shape declares.
	ErrIncomplete = errors.New("packfile: incomplete archive")
	// ErrClosed is returned when writing to a closed Writer.
	ErrClosed = errors.New("packfile: writer closed")
)

// BlockInfo locates one block in the archive body.
type BlockInfo struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
	Rows   int   `json:"rows"`
}

// ParamsInfo is the footer form of quantization.Params. Fill marks the
// lowest container value as the code for missing (NaN) elements.
type ParamsInfo struct {
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
	Bits   int     `json:"bits"`
	Fill   bool    `json:"fill,omitempty"`
}

// Footer is the archive metadata.
type Footer struct {
	Version     uint16            `json:"version"`
	Params      ParamsInfo        `json:"params"`
	Shape       []int             `json:"shape"`
	SlabSize    int               `json:"slab_size"`
	Compression codec.Compression `json:"compression"`
	Blocks      []BlockInfo       `json:"blocks"`

	// Saturated counts elements clamped during packing; SaturatedIndex is
	// the serialized roaring64 bitmap of their flat indices.
	Saturated      uint64 `json:"saturated"`
	SaturatedIndex []byte `json:"saturated_index,omitempty"`
}

// QuantizationParams returns the footer params as quantization.Params.
func (f *Footer) QuantizationParams() quantization.Params {
	return quantization.Params{
		Scale:  f.Params.Scale,
		Offset: f.Params.Offset,
		Bits:   quantization.Bits(f.Params.Bits),
		Fill:   f.Params.Fill,
	}
}

func encodeHeader() []byte {
	b := make([]byte, headerSize)
	copy(b, Magic)
	binary.LittleEndian.PutUint16(b[4:], Version)
	return b
}

func checkHeader(b []byte) error {
	if string(b[:4]) != Magic {
		return ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(b[4:]); v != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	return nil
}

// appendInts encodes ints little-endian at the container width.
// Values outside the container wrap.
func appendInts(dst []byte, ints []int64, bits quantization.Bits) []byte {
	switch bits {
	case quantization.Bits8:
		for _, v := range ints {
			dst = append(dst, byte(int8(v)))
		}
	case quantization.Bits16:
		for _, v := range ints {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(int16(v)))
		}
	default:
		for _, v := range ints {
			dst = binary.LittleEndian.AppendUint32(dst, uint32(int32(v)))
		}
	}
	return dst
}

func decodeInts(dst []int64, b []byte, bits quantization.Bits) {
	switch bits {
	case quantization.Bits8:
		for i := range dst {
			dst[i] = int64(int8(b[i]))
		}
	case quantization.Bits16:
		for i := range dst {
			dst[i] = int64(int16(binary.LittleEndian.Uint16(b[2*i:])))
		}
	default:
		for i := range dst {
			dst[i] = int64(int32(binary.LittleEndian.Uint32(b[4*i:])))
		}
	}
}

// decodeValues unpacks the container-width integers in b into dst.
func decodeValues(q *quantization.Quantizer, dst []float64, b []byte) {
	switch q.Params().Bits {
	case quantization.Bits8:
		for i := range dst {
			dst[i] = q.Decode(int64(int8(b[i])))
		}
	case quantization.Bits16:
		for i := range dst {
			dst[i] = q.Decode(int64(int16(binary.LittleEndian.Uint16(b[2*i:]))))
		}
	default:
		for i := range dst {
			dst[i] = q.Decode(int64(int32(binary.LittleEndian.Uint32(b[4*i:]))))
		}
	}
}

func readFull(r io.ReaderAt, off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := r.ReadAt(buf, off)
	if got == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, err
}
