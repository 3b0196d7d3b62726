// Package resource governs memory, worker and IO budgets for slab processing.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────┐
//	│                       Controller                         │
//	├──────────────────┬──────────────────┬────────────────────┤
//	│  Memory budget   │  Worker slots    │  IO rate limiter   │
//	│  (fail-fast)     │  (semaphore)     │  (token bucket)    │
//	├──────────────────┼──────────────────┼────────────────────┤
//	│  AcquireMemory   │  AcquireWorker   │  AcquireIO         │
//	│  ReleaseMemory   │  ReleaseWorker   │  RateLimited-      │
//	│  MemoryUsage     │                  │  ReaderAt          │
//	└──────────────────┴──────────────────┴────────────────────┘
//
// # Memory
//
// Slab buffers are reserved before they are allocated. AcquireMemory never
// blocks; it returns ErrMemoryLimitExceeded when the reservation would cross
// the limit:
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 50 << 20})
//	if err := rc.AcquireMemory(slabBytes); err != nil {
//	    return err
//	}
//	defer rc.ReleaseMemory(slabBytes)
//
// # Workers
//
// Parallel block decoding holds one worker slot per block in flight:
//
//	if err := rc.AcquireWorker(ctx); err != nil {
//	    return err
//	}
//	go func() { defer rc.ReleaseWorker(); decode() }()
//
// # IO
//
// Reads from an array source can be throttled so a large scan does not
// starve other consumers of the same disk or bucket:
//
//	ra := resource.NewRateLimitedReaderAt(ctx, blob, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource
