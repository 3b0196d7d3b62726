// Package source defines the array source contract consumed by the reducer
// and provides in-memory and raw-binary implementations.
//
// An ArraySource is an externally owned, read-only multidimensional array.
// It exposes its shape, the byte width of its elements and a read of a
// contiguous block along the first axis:
//
//	slab, err := src.ReadSlab(ctx, t, t+k) // rows [t, t+k)
//
// Implementations never return more rows than requested and must support
// arbitrary offsets without loading the full array.
//
// See package source/netcdf for NetCDF classic files.
package source
