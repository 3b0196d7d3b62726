package ncpack

import (
	"errors"

	"github.com/hupe1980/ncpack/blobstore"
	"github.com/hupe1980/ncpack/packfile"
	"github.com/hupe1980/ncpack/quantization"
	"github.com/hupe1980/ncpack/reduce"
	"github.com/hupe1980/ncpack/source"
)

var (
	// ErrNoStore is returned when a blob store argument is nil.
	ErrNoStore = errors.New("blob store is required")

	// ErrNotFound is returned when a blob does not exist.
	ErrNotFound = blobstore.ErrNotFound

	// ErrUnsupportedBits is returned for a container width other than 8, 16 or 32.
	ErrUnsupportedBits = quantization.ErrUnsupportedBits

	// ErrNotFinite is returned when packing an infinity.
	ErrNotFinite = quantization.ErrNotFinite

	// ErrEmptySource is returned when a source holds no finite values.
	ErrEmptySource = reduce.ErrEmptySource

	// ErrEmptyShape is returned for arrays without dimensions.
	ErrEmptyShape = source.ErrEmptyShape

	// ErrCorruptArchive is returned when an archive fails validation.
	ErrCorruptArchive = packfile.ErrCorrupt
)

type (
	// InvalidRangeError indicates a value range whose maximum is below its minimum.
	InvalidRangeError = quantization.InvalidRangeError

	// OutOfRangeError indicates a value that does not fit the packed container.
	OutOfRangeError = quantization.OutOfRangeError

	// ConfigurationError indicates a memory budget too small for one row.
	ConfigurationError = reduce.ConfigurationError

	// MemoryBudgetExceededError indicates memory use above the budget.
	MemoryBudgetExceededError = reduce.MemoryBudgetExceededError

	// RangeError indicates a slab request outside the array.
	RangeError = source.RangeError
)
