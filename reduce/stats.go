package reduce

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats summarizes one pass over a source.
type Stats struct {
	Slabs     int
	Rows      int
	SlabSize  int
	BytesRead int64
	Elapsed   time.Duration
}

// Throughput returns bytes read per second (0 if nothing was timed).
func (s Stats) Throughput() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.BytesRead) / secs
}

func (s Stats) String() string {
	return fmt.Sprintf("%d slabs, %d rows, %s in %s (%s/s)",
		s.Slabs, s.Rows, humanize.IBytes(uint64(s.BytesRead)), s.Elapsed.Round(time.Microsecond),
		humanize.IBytes(uint64(s.Throughput())))
}

// SlabEvent describes one processed slab.
type SlabEvent struct {
	Index   int
	Range   Range
	Bytes   int64
	Elapsed time.Duration
	Err     error
}

// MemoryCheck describes one probe of process memory.
type MemoryCheck struct {
	Slab     int
	Phase    Phase
	Observed uint64
	Budget   int64
}

// Observer receives progress callbacks. Implementations must be fast;
// they run on the iteration path.
type Observer interface {
	OnSlab(ev SlabEvent)
	OnMemoryCheck(ev MemoryCheck)
}

type nopObserver struct{}

func (nopObserver) OnSlab(SlabEvent)          {}
func (nopObserver) OnMemoryCheck(MemoryCheck) {}
