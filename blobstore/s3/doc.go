// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "climate-archive",
//	    s3.WithPrefix("packed/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	report, err := eng.Pack(ctx, src, store, "tas_day.ncpk")
//
// # Features
//
//   - Range reads, so archive blocks are fetched individually
//   - Multipart streaming uploads for large archives
//   - CRC32C integrity checksums on upload
//   - Automatic pagination for listing
package s3
