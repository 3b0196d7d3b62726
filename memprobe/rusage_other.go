//go:build !unix

package memprobe

import "errors"

// RusageProbe reports the peak resident set size from getrusage(2).
// It is unavailable on this platform.
type RusageProbe struct{}

// MemoryUsage implements Probe.
func (RusageProbe) MemoryUsage() (uint64, error) {
	return 0, errors.New("memprobe: getrusage not supported on this platform")
}
