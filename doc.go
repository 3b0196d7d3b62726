// Package ncpack packs large multidimensional float arrays into compact
// integer archives while keeping memory use under a fixed budget.
//
// An array is never loaded whole. The Engine walks it along its first axis
// in slabs sized so that one slab fits the memory budget, probing process
// memory before the first slab and after every slab.
//
// # Quick Start
//
//	eng, _ := ncpack.New(
//	    ncpack.WithMemoryBudget(256<<20),
//	    ncpack.WithBits(quantization.Bits16),
//	    ncpack.WithCompression(codec.ZSTD),
//	)
//
//	// Daily mean of a (time, lat, lon) field stored as raw float32.
//	store := blobstore.NewLocalStore("./data")
//	arr, _ := eng.OpenRaw(ctx, store, "tas.f32", source.RawConfig{
//	    Shape: []int{36500, 180, 360},
//	    DType: source.Float32,
//	})
//	defer arr.Close()
//	means, _ := eng.Reduce(ctx, arr, reduce.Mean)
//
//	// Pack it into 16-bit integers.
//	report, _ := eng.Pack(ctx, arr, store, "tas.ncpk")
//	fmt.Println(report)
//
// # Packing
//
// Pack makes two bounded passes. The first finds the finite range of the
// data, from which the affine parameters are computed:
//
//	scale  = (max - min) / (2^bits - 1)
//	offset = min + 2^(bits-1) * scale
//
// The second encodes every slab and appends it as one compressed block to
// a packfile archive. Values unpack to within one scale step of the original.
//
// # Storage
//
// Archives and raw arrays live in a blobstore.BlobStore: in memory, on the
// local file system, in MinIO or in S3.
package ncpack
