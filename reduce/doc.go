// Package reduce iterates over an out-of-core array in memory-bounded slabs.
//
// The slab size k is the number of first-axis rows that fit in the memory
// budget:
//
//	k = floor(budget / (prod(shape[1:]) * elementSize))
//
// ReduceAxis reads rows [t, t+k) for t = 0, k, 2k, ... (the last slab may be
// shorter), applies a ReductionFunc to every row and stores one value per
// row in a pre-allocated result.
//
// # Memory verification
//
// The budget is checked against a memprobe.Probe before the first slab and
// after every slab. Observed usage above the budget aborts the run with a
// *MemoryBudgetExceededError. Slab buffers are additionally reserved against
// a resource.Controller sized to the budget.
//
//	r, _ := reduce.New(reduce.Config{
//	    MemoryBudgetBytes: 50 << 20,
//	    Probe:             memprobe.ProcfsProbe{Metric: memprobe.DataSegment},
//	})
//	means, err := r.ReduceAxis(ctx, src, reduce.Mean)
//
// Failures are fatal to the whole operation; no partial result is returned.
package reduce
