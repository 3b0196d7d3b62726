package memprobe

import (
	"errors"
	"fmt"

	"github.com/prometheus/procfs"
)

// Probe returns the current memory usage of the process in bytes.
type Probe interface {
	MemoryUsage() (uint64, error)
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func() (uint64, error)

// MemoryUsage implements Probe.
func (f ProbeFunc) MemoryUsage() (uint64, error) {
	return f()
}

// Nop is a Probe that always reports zero usage.
type Nop struct{}

// MemoryUsage implements Probe.
func (Nop) MemoryUsage() (uint64, error) { return 0, nil }

// Metric selects which procfs counter a ProcfsProbe reports.
type Metric int

const (
	// DataSegment is the size of the data + stack segments (VmData).
	DataSegment Metric = iota
	// Resident is the resident set size (VmRSS).
	Resident
)

func (m Metric) String() string {
	switch m {
	case DataSegment:
		return "data"
	case Resident:
		return "resident"
	default:
		return fmt.Sprintf("Metric(%d)", int(m))
	}
}

// ProcfsProbe reads process memory from /proc/self/status.
type ProcfsProbe struct {
	Metric Metric

	// MountPoint overrides the procfs mount point (default /proc).
	MountPoint string
}

// MemoryUsage implements Probe.
func (p ProcfsProbe) MemoryUsage() (uint64, error) {
	proc, err := p.self()
	if err != nil {
		return 0, fmt.Errorf("memprobe: open procfs: %w", err)
	}

	status, err := proc.NewStatus()
	if err != nil {
		return 0, fmt.Errorf("memprobe: read status: %w", err)
	}

	switch p.Metric {
	case Resident:
		return status.VmRSS, nil
	default:
		return status.VmData, nil
	}
}

func (p ProcfsProbe) self() (procfs.Proc, error) {
	if p.MountPoint == "" {
		return procfs.Self()
	}
	fs, err := procfs.NewFS(p.MountPoint)
	if err != nil {
		return procfs.Proc{}, err
	}
	return fs.Self()
}

// Fallback reports the first of its probes that succeeds.
type Fallback []Probe

// MemoryUsage implements Probe. It fails only when every probe fails.
func (f Fallback) MemoryUsage() (uint64, error) {
	errs := make([]error, 0, len(f))
	for _, p := range f {
		used, err := p.MemoryUsage()
		if err == nil {
			return used, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return 0, errors.New("memprobe: no probe configured")
	}
	return 0, errors.Join(errs...)
}

// ByName returns a probe by its configuration name.
//
// Recognized names: "data" (default), "resident", "rusage", "none".
// The procfs probes fall back to rusage where /proc is unavailable.
func ByName(name string) (Probe, error) {
	switch name {
	case "", "data", "procfs":
		return Fallback{ProcfsProbe{Metric: DataSegment}, RusageProbe{}}, nil
	case "resident", "rss":
		return Fallback{ProcfsProbe{Metric: Resident}, RusageProbe{}}, nil
	case "rusage":
		return RusageProbe{}, nil
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("memprobe: unknown probe %q", name)
	}
}
