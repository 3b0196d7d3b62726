// Package packfile implements the compressed packed-integer archive.
//
// Layout:
//
//	[magic "NCPK"][version:u16][reserved:u16]
//	[block 0][block 1]...[block n-1]
//	[footer (JSON)]
//	[footerLen:u32][magic "NCPK"]
//
// Each block holds the packed integers of whole first-axis rows,
// little-endian at the container width, wrapped by codec.CompressBlock.
// Writes are split so no block exceeds MaxBlockBytes uncompressed.
// The footer records the quantization parameters (including whether the
// lowest container value is the fill code for NaN), the array shape, the
// compression kind, the block index and the set of saturated elements.
//
// A Reader is also a source.ArraySource, so archives can be reduced slab by
// slab under the same memory budget as the data they were packed from.
// ReadSlab keeps the last decompressed block, so a sequential pass reads
// every block once whatever the slab size.
package packfile
