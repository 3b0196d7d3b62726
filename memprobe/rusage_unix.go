//go:build unix

package memprobe

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// RusageProbe reports the peak resident set size from getrusage(2).
// The value never decreases over the life of the process.
type RusageProbe struct{}

// MemoryUsage implements Probe.
func (RusageProbe) MemoryUsage() (uint64, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, fmt.Errorf("memprobe: getrusage: %w", err)
	}
	if ru.Maxrss < 0 {
		return 0, nil
	}
	// darwin reports bytes, everyone else kilobytes.
	if runtime.GOOS == "darwin" || runtime.GOOS == "ios" {
		return uint64(ru.Maxrss), nil
	}
	return uint64(ru.Maxrss) * 1024, nil
}
