// Package memprobe reports the memory usage of the current process.
//
// A Probe is a synchronous, side-effect free read of OS memory accounting.
// The bounded-memory reducer queries it before and after every slab to
// assert that the working set stays within its budget.
//
// # Probes
//
//	| Probe                      | Source                        | Linux only |
//	|----------------------------|-------------------------------|------------|
//	| ProcfsProbe{DataSegment}   | /proc/self/status VmData      | yes        |
//	| ProcfsProbe{Resident}      | /proc/self/status VmRSS       | yes        |
//	| RusageProbe                | getrusage(2) peak RSS         | no (unix)  |
//	| ProbeFunc                  | caller supplied               | no         |
//	| Nop                        | always zero                   | no         |
//
// DataSegment mirrors the "data" column of /proc/<pid>/statm, which is what
// memory-limiting tutorials traditionally inspect.
package memprobe
