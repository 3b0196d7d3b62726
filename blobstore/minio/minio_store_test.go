package minio

import (
	"context"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ncpack/blobstore"
)

func TestStore_Keys(t *testing.T) {
	s := NewStore(nil, "bucket", "packed/")

	assert.Equal(t, "packed/tas.ncpk", s.key("tas.ncpk"))
	assert.Equal(t, "packed/2024/tas.ncpk", s.key("2024/tas.ncpk"))
	assert.Equal(t, "tas.ncpk", s.trimKey("packed/tas.ncpk"))
	assert.Equal(t, "2024/tas.ncpk", s.trimKey("packed/2024/tas.ncpk"))

	root := NewStore(nil, "bucket", "")
	assert.Equal(t, "tas.ncpk", root.key("tas.ncpk"))
	assert.Equal(t, "tas.ncpk", root.trimKey("tas.ncpk"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NotFound"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
}

func TestWritableBlob_DoubleClose(t *testing.T) {
	pr, pw := io.Pipe()
	b := &minioWritableBlob{pw: pw, done: make(chan error, 1)}

	go func() {
		_, err := io.ReadAll(pr)
		b.done <- err
	}()

	_, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.Error(t, b.Close())
	assert.NoError(t, b.Abort())
}

// TestMinioStore_Integration requires a running MinIO instance.
func TestMinioStore_Integration(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	bucket := "test-ncpack"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "test.bin", data))

	blob, err := store.Open(ctx, "test.bin")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blobstore.ReaderAt(ctx, blob).ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "minio", string(buf))

	n, err = blob.ReadAt(buf, 14)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "rld", string(buf[:n]))

	rc, err := blob.ReadRange(ctx, 6, 5)
	require.NoError(t, err)
	part, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "minio", string(part))
	require.NoError(t, rc.Close())
	require.NoError(t, blob.Close())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "test.bin")

	require.NoError(t, store.Delete(ctx, "test.bin"))
	_, err = store.Open(ctx, "test.bin")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	wb, err := store.Create(ctx, "stream.bin")
	require.NoError(t, err)
	_, err = wb.Write([]byte("streamed data"))
	require.NoError(t, err)
	require.NoError(t, wb.Close())

	all, err := blobstore.ReadAll(ctx, store, "stream.bin")
	require.NoError(t, err)
	assert.Equal(t, "streamed data", string(all))

	_ = store.Delete(ctx, "stream.bin")
}
