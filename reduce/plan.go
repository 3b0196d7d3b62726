package reduce

import "github.com/hupe1980/ncpack/source"

// ComputeSlabSize returns the number of rows of perStepBytes that fit in
// memoryBudgetBytes.
func ComputeSlabSize(memoryBudgetBytes, perStepBytes int64) (int, error) {
	if perStepBytes <= 0 {
		return 0, &ConfigurationError{MemoryBudgetBytes: memoryBudgetBytes, PerStepBytes: perStepBytes, Reason: "per-step size must be positive"}
	}
	if memoryBudgetBytes <= 0 {
		return 0, &ConfigurationError{MemoryBudgetBytes: memoryBudgetBytes, PerStepBytes: perStepBytes, Reason: "memory budget must be positive"}
	}
	if perStepBytes > memoryBudgetBytes {
		return 0, &ConfigurationError{MemoryBudgetBytes: memoryBudgetBytes, PerStepBytes: perStepBytes, Reason: "one step does not fit in the budget"}
	}
	return int(memoryBudgetBytes / perStepBytes), nil
}

// Range is a half-open span [Begin, End) of the iteration axis.
type Range struct {
	Begin int
	End   int
}

// Len returns End - Begin.
func (r Range) Len() int { return r.End - r.Begin }

// Plan splits an axis of the given length into slabs of k rows.
// The last slab holds the remainder.
func Plan(axisLength, k int) []Range {
	if axisLength <= 0 || k <= 0 {
		return nil
	}
	ranges := make([]Range, 0, (axisLength+k-1)/k)
	for t := 0; t < axisLength; t += k {
		ranges = append(ranges, Range{Begin: t, End: min(t+k, axisLength)})
	}
	return ranges
}

// PerStepBytes returns the bytes one row of src occupies while its slab is
// live, including any staging buffer the source decodes from.
func PerStepBytes(src source.ArraySource) int64 {
	return source.RowFootprint(src)
}
