package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/objstore"
)

// MockS3Client is a testify mock for the Client interface.
type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.HeadObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.GetObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.PutObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.DeleteObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockS3Client) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.CreateMultipartUploadOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockS3Client) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.UploadPartOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockS3Client) ListParts(ctx context.Context, params *s3.ListPartsInput, optFns ...func(*s3.Options)) (*s3.ListPartsOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.ListPartsOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockS3Client) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.CompleteMultipartUploadOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockS3Client) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.AbortMultipartUploadOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestStore_Has(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		mockClient.On("HeadObject", mock.Anything, mock.MatchedBy(func(input *s3.HeadObjectInput) bool {
			return *input.Bucket == "test-bucket" && *input.Key == "prefix/foo"
		})).Return(nil, &types.NotFound{}).Once()

		ok, err := store.Has(ctx, "foo").Await(ctx)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Exists", func(t *testing.T) {
		mockClient.On("HeadObject", mock.Anything, mock.MatchedBy(func(input *s3.HeadObjectInput) bool {
			return *input.Bucket == "test-bucket" && *input.Key == "prefix/bar"
		})).Return(&s3.HeadObjectOutput{
			ContentLength: aws.Int64(100),
		}, nil).Once()

		ok, err := store.Has(ctx, "bar").Await(ctx)
		assert.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestStore_Get(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
			return *input.Key == "prefix/missing"
		})).Return(nil, &types.NoSuchKey{}).Once()

		_, err := store.Get(ctx, "missing").Await(ctx)
		assert.ErrorIs(t, err, objstore.ErrNotFound)
	})

	t.Run("Success", func(t *testing.T) {
		mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
			return *input.Bucket == "test-bucket" && *input.Key == "prefix/doc.txt"
		})).Return(&s3.GetObjectOutput{
			Body:        io.NopCloser(strings.NewReader("content")),
			ContentType: aws.String("text/plain"),
		}, nil).Once()

		got, err := store.Get(ctx, "doc.txt").Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, "text/plain", got.ContentType())

		rc, err := got.Data.Detach()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "content", string(data))
	})
}

func TestStore_Put(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")
	ctx := context.Background()

	mockClient.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
		return *input.Bucket == "test-bucket" && *input.Key == "prefix/new.txt" &&
			*input.ContentType == "text/plain; charset=utf-8"
	})).Run(func(args mock.Arguments) {
		input := args.Get(1).(*s3.PutObjectInput)
		// The transfer manager streams the body; consume it so the
		// upload can finish.
		_, _ = io.ReadAll(input.Body)
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	_, err := store.Put(ctx, objstore.NewObject("new.txt", objstore.BytesSource([]byte("content")))).Await(ctx)
	assert.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestStore_Put_NoData(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")

	ctx := context.Background()
	_, err := store.Put(ctx, objstore.NewObject("empty", nil)).Await(ctx)
	assert.ErrorIs(t, err, objstore.ErrBadData)
}

func TestStore_Delete(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")
	ctx := context.Background()

	mockClient.On("DeleteObject", mock.Anything, mock.MatchedBy(func(input *s3.DeleteObjectInput) bool {
		return *input.Bucket == "test-bucket" && *input.Key == "prefix/del"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()

	_, err := store.Delete(ctx, "del").Await(ctx)
	assert.NoError(t, err)
}

func TestStore_MultipartInit(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")
	ctx := context.Background()

	mockClient.On("CreateMultipartUpload", mock.Anything, mock.MatchedBy(func(input *s3.CreateMultipartUploadInput) bool {
		return *input.Bucket == "test-bucket" && *input.Key == "prefix/big.bin"
	})).Return(&s3.CreateMultipartUploadOutput{
		UploadId: aws.String("upload-1"),
	}, nil).Once()

	token, err := store.MultipartInit(ctx, objstore.NewObject("big.bin", nil)).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "upload-1", token)
}

func TestStore_MultipartUpload(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")
	ctx := context.Background()
	obj := objstore.NewObject("big.bin", nil)

	t.Run("ReturnsETag", func(t *testing.T) {
		mockClient.On("UploadPart", mock.Anything, mock.MatchedBy(func(input *s3.UploadPartInput) bool {
			return *input.UploadId == "upload-1" && *input.PartNumber == int32(3)
		})).Return(&s3.UploadPartOutput{
			ETag: aws.String(`"abc123"`),
		}, nil).Once()

		hash, err := store.MultipartUpload(ctx, obj, "upload-1", &objstore.FilePart{
			Number: 3,
			Data:   objstore.BytesSource([]byte("chunk")),
		}).Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, "abc123", hash)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		mockClient.On("UploadPart", mock.Anything, mock.MatchedBy(func(input *s3.UploadPartInput) bool {
			return *input.UploadId == "bogus"
		})).Return(nil, &types.NoSuchUpload{}).Once()

		_, err := store.MultipartUpload(ctx, obj, "bogus", &objstore.FilePart{
			Number: 1,
			Data:   objstore.BytesSource([]byte("chunk")),
		}).Await(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not initialized")
	})

	t.Run("PartNumberOutOfRange", func(t *testing.T) {
		_, err := store.MultipartUpload(ctx, obj, "upload-1", &objstore.FilePart{
			Number: objstore.MaxPartNumber + 1,
			Data:   objstore.BytesSource([]byte("chunk")),
		}).Await(ctx)
		assert.ErrorIs(t, err, objstore.ErrBadData)
	})
}

func TestStore_MultipartFinalize(t *testing.T) {
	ctx := context.Background()
	obj := objstore.NewObject("big.bin", nil)

	listResponse := &s3.ListPartsOutput{
		Parts: []types.Part{
			{PartNumber: aws.Int32(1), ETag: aws.String(`"aaa"`)},
			{PartNumber: aws.Int32(2), ETag: aws.String(`"bbb"`)},
		},
	}

	t.Run("Success", func(t *testing.T) {
		mockClient := new(MockS3Client)
		store := NewStore(mockClient, "test-bucket", "prefix")

		mockClient.On("ListParts", mock.Anything, mock.MatchedBy(func(input *s3.ListPartsInput) bool {
			return *input.UploadId == "upload-1"
		})).Return(listResponse, nil).Once()

		mockClient.On("CompleteMultipartUpload", mock.Anything, mock.MatchedBy(func(input *s3.CompleteMultipartUploadInput) bool {
			parts := input.MultipartUpload.Parts
			return *input.UploadId == "upload-1" && len(parts) == 2 &&
				*parts[0].PartNumber == int32(1) && *parts[0].ETag == "aaa" &&
				*parts[1].PartNumber == int32(2) && *parts[1].ETag == "bbb"
		})).Return(&s3.CompleteMultipartUploadOutput{}, nil).Once()

		_, err := store.MultipartFinalize(ctx, obj, "upload-1",
			&objstore.FilePart{Number: 1, Hash: "aaa"},
			&objstore.FilePart{Number: 2, Hash: "bbb"},
		).Await(ctx)
		assert.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("MissingPart", func(t *testing.T) {
		mockClient := new(MockS3Client)
		store := NewStore(mockClient, "test-bucket", "prefix")

		mockClient.On("ListParts", mock.Anything, mock.Anything).Return(listResponse, nil).Once()

		_, err := store.MultipartFinalize(ctx, obj, "upload-1",
			&objstore.FilePart{Number: 1, Hash: "aaa"},
			&objstore.FilePart{Number: 7, Hash: "ggg"},
		).Await(ctx)
		require.ErrorIs(t, err, objstore.ErrBadData)
		assert.Contains(t, err.Error(), "Part not uploaded: 7")
		mockClient.AssertNotCalled(t, "CompleteMultipartUpload", mock.Anything, mock.Anything)
	})

	t.Run("HashMismatch", func(t *testing.T) {
		mockClient := new(MockS3Client)
		store := NewStore(mockClient, "test-bucket", "prefix")

		mockClient.On("ListParts", mock.Anything, mock.Anything).Return(listResponse, nil).Once()

		_, err := store.MultipartFinalize(ctx, obj, "upload-1",
			&objstore.FilePart{Number: 1, Hash: "aaa"},
			&objstore.FilePart{Number: 2, Hash: "wrong"},
		).Await(ctx)
		require.ErrorIs(t, err, objstore.ErrBadData)
		assert.Contains(t, err.Error(), "Hash mismatch for part 2")
	})

	t.Run("Unsorted", func(t *testing.T) {
		mockClient := new(MockS3Client)
		store := NewStore(mockClient, "test-bucket", "prefix")

		_, err := store.MultipartFinalize(ctx, obj, "upload-1",
			&objstore.FilePart{Number: 2, Hash: "bbb"},
			&objstore.FilePart{Number: 1, Hash: "aaa"},
		).Await(ctx)
		require.ErrorIs(t, err, objstore.ErrBadData)
		assert.Contains(t, err.Error(), "sorted monotonically")
		mockClient.AssertNotCalled(t, "ListParts", mock.Anything, mock.Anything)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		mockClient := new(MockS3Client)
		store := NewStore(mockClient, "test-bucket", "prefix")

		mockClient.On("ListParts", mock.Anything, mock.Anything).Return(nil, &types.NoSuchUpload{}).Once()

		_, err := store.MultipartFinalize(ctx, obj, "bogus",
			&objstore.FilePart{Number: 1, Hash: "aaa"},
		).Await(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not initialized")
	})

	t.Run("ListPagination", func(t *testing.T) {
		mockClient := new(MockS3Client)
		store := NewStore(mockClient, "test-bucket", "prefix")

		mockClient.On("ListParts", mock.Anything, mock.MatchedBy(func(input *s3.ListPartsInput) bool {
			return input.PartNumberMarker == nil
		})).Return(&s3.ListPartsOutput{
			Parts:                []types.Part{{PartNumber: aws.Int32(1), ETag: aws.String(`"aaa"`)}},
			IsTruncated:          aws.Bool(true),
			NextPartNumberMarker: aws.String("1"),
		}, nil).Once()

		mockClient.On("ListParts", mock.Anything, mock.MatchedBy(func(input *s3.ListPartsInput) bool {
			return input.PartNumberMarker != nil && *input.PartNumberMarker == "1"
		})).Return(&s3.ListPartsOutput{
			Parts: []types.Part{{PartNumber: aws.Int32(2), ETag: aws.String(`"bbb"`)}},
		}, nil).Once()

		mockClient.On("CompleteMultipartUpload", mock.Anything, mock.Anything).
			Return(&s3.CompleteMultipartUploadOutput{}, nil).Once()

		_, err := store.MultipartFinalize(ctx, obj, "upload-1",
			&objstore.FilePart{Number: 1, Hash: "aaa"},
			&objstore.FilePart{Number: 2, Hash: "bbb"},
		).Await(ctx)
		assert.NoError(t, err)
	})
}

func TestStore_MultipartAbort(t *testing.T) {
	ctx := context.Background()
	obj := objstore.NewObject("big.bin", nil)

	t.Run("Success", func(t *testing.T) {
		mockClient := new(MockS3Client)
		store := NewStore(mockClient, "test-bucket", "prefix")

		mockClient.On("AbortMultipartUpload", mock.Anything, mock.MatchedBy(func(input *s3.AbortMultipartUploadInput) bool {
			return *input.UploadId == "upload-1" && *input.Key == "prefix/big.bin"
		})).Return(&s3.AbortMultipartUploadOutput{}, nil).Once()

		_, err := store.MultipartAbort(ctx, obj, "upload-1").Await(ctx)
		assert.NoError(t, err)
	})

	t.Run("UnknownTokenIsNoop", func(t *testing.T) {
		mockClient := new(MockS3Client)
		store := NewStore(mockClient, "test-bucket", "prefix")

		mockClient.On("AbortMultipartUpload", mock.Anything, mock.Anything).
			Return(nil, &types.NoSuchUpload{}).Once()

		_, err := store.MultipartAbort(ctx, obj, "upload-1").Await(ctx)
		assert.NoError(t, err)
	})
}

func TestStore_URL(t *testing.T) {
	store := NewStore(new(MockS3Client), "bucket", "objects/")
	assert.Equal(t, "s3://bucket/objects/a/b.txt", store.URL("a/b.txt"))
}
