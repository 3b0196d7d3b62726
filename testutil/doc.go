// Package testutil provides testing utilities for ncpack.
//
// This package is intended for use in tests and benchmarks only.
// It provides deterministic random fields, the synthetic sinusoidal
// field used throughout the benchmarks, and an in-memory
// io.ReaderAt/io.WriterAt for NetCDF round trips.
//
// # Random Fields
//
//	rng := testutil.NewRNG(seed)
//	arr := rng.UniformField(-1, 1, 64, 32, 32)
//
// # Synthetic Field
//
//	arr := testutil.SyntheticField(256, 64, 64) // sin(d/64) + sin(z/32)
package testutil
