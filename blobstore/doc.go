// Package blobstore provides storage abstraction for raw arrays and packed archives.
//
// BlobStore is the interface for reading and writing data blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests
//   - LocalStore: local filesystem with mmap reads
//   - minio.Store: MinIO and S3-compatible storage
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - CachingStore: LRU block cache in front of any other store
//
// Every Blob is an io.ReaderAt, so a blob can back a source.Raw array, a
// packfile.Reader or a NetCDF file directly. Remote blobs fetch only the
// requested byte ranges.
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)            // Open for reading
//	    Create(ctx, name) (WritableBlob, error)  // Create for writing
//	    Put(ctx, name, data) error               // Atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
