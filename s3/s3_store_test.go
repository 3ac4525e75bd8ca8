package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/objstore"
)

func TestIntegration_S3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping S3 integration test: S3_BUCKET not set")
	}

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg)

	// Create a unique prefix for this test run
	prefix := fmt.Sprintf("test-objstore-%d/", time.Now().UnixNano())
	store := NewStore(client, bucket, prefix)

	t.Run("Put and Get", func(t *testing.T) {
		data := []byte("hello s3 world")

		_, err := store.Put(ctx, objstore.NewObject("test.txt", objstore.BytesSource(data))).Await(ctx)
		require.NoError(t, err)

		ok, err := store.Has(ctx, "test.txt").Await(ctx)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := store.Get(ctx, "test.txt").Await(ctx)
		require.NoError(t, err)
		rc, err := got.Data.Detach()
		require.NoError(t, err)
		read, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, data, read)
		require.NoError(t, rc.Close())

		_, err = store.Delete(ctx, "test.txt").Await(ctx)
		require.NoError(t, err)

		ok, err = store.Has(ctx, "test.txt").Await(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "nonexistent").Await(ctx)
		assert.ErrorIs(t, err, objstore.ErrNotFound)
	})

	t.Run("Multipart", func(t *testing.T) {
		obj := objstore.NewObject("assembled.bin", nil)

		token, err := store.MultipartInit(ctx, obj).Await(ctx)
		require.NoError(t, err)

		// S3 requires every part except the last to be at least 5MB.
		chunk1 := make([]byte, 5*1024*1024)
		for i := range chunk1 {
			chunk1[i] = byte(i)
		}
		chunk2 := []byte("tail")

		hash1, err := store.MultipartUpload(ctx, obj, token, &objstore.FilePart{
			Number: 1,
			Data:   objstore.BytesSource(chunk1),
		}).Await(ctx)
		require.NoError(t, err)

		hash2, err := store.MultipartUpload(ctx, obj, token, &objstore.FilePart{
			Number: 2,
			Data:   objstore.BytesSource(chunk2),
		}).Await(ctx)
		require.NoError(t, err)

		_, err = store.MultipartFinalize(ctx, obj, token,
			&objstore.FilePart{Number: 1, Hash: hash1},
			&objstore.FilePart{Number: 2, Hash: hash2},
		).Await(ctx)
		require.NoError(t, err)

		got, err := store.Get(ctx, "assembled.bin").Await(ctx)
		require.NoError(t, err)
		rc, err := got.Data.Detach()
		require.NoError(t, err)
		read, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Len(t, read, len(chunk1)+len(chunk2))
		assert.Equal(t, chunk2, read[len(chunk1):])
		require.NoError(t, rc.Close())

		_, err = store.Delete(ctx, "assembled.bin").Await(ctx)
		require.NoError(t, err)
	})

	t.Run("Abort", func(t *testing.T) {
		obj := objstore.NewObject("discarded.bin", nil)

		token, err := store.MultipartInit(ctx, obj).Await(ctx)
		require.NoError(t, err)

		_, err = store.MultipartAbort(ctx, obj, token).Await(ctx)
		require.NoError(t, err)
		_, err = store.MultipartAbort(ctx, obj, token).Await(ctx)
		require.NoError(t, err)

		_, err = store.MultipartUpload(ctx, obj, token, &objstore.FilePart{
			Number: 1,
			Data:   objstore.BytesSource([]byte("late")),
		}).Await(ctx)
		assert.ErrorIs(t, err, objstore.ErrBadData)
	})
}
