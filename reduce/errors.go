package reduce

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ConfigurationError indicates slab parameters that cannot produce a
// non-empty slab.
type ConfigurationError struct {
	MemoryBudgetBytes int64
	PerStepBytes      int64
	Reason            string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid slab configuration (budget %d bytes, per-step %d bytes): %s",
		e.MemoryBudgetBytes, e.PerStepBytes, e.Reason)
}

// Phase identifies where a memory check happened.
type Phase string

const (
	PhaseBefore  Phase = "before"
	PhaseAfter   Phase = "after"
	PhaseReserve Phase = "reserve"
)

// MemoryBudgetExceededError indicates observed memory usage above the budget.
type MemoryBudgetExceededError struct {
	Observed uint64
	Budget   int64
	// Slab is the index of the slab the check belongs to.
	Slab  int
	Phase Phase

	cause error
}

func (e *MemoryBudgetExceededError) Error() string {
	return fmt.Sprintf("memory budget exceeded %s slab %d: using %s, limit %s",
		e.Phase, e.Slab, humanize.IBytes(e.Observed), humanize.IBytes(uint64(max(e.Budget, 0))))
}

func (e *MemoryBudgetExceededError) Unwrap() error { return e.cause }
