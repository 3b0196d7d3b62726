// Package minio provides a BlobStore backed by MinIO or any other
// S3-compatible object store reachable through the MinIO client.
//
// Packed archives are read with ranged GETs, so a Reader opened on a
// remote blob only fetches the footer and the blocks it decodes.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "climate", "packed/")
//	report, err := eng.Pack(ctx, src, store, "tas.ncpk")
package minio
