package store

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/samber/oops"

	"github.com/ayush/tasktracker/backend/internal/tasks"
)

// MinioStore wraps a MinIO client for task exports.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects and makes sure the bucket exists, retrying while the
// server is still starting.
func NewMinioStore(ctx context.Context, logger *slog.Logger, endpoint, accessKey, secretKey, bucket string, useSSL bool, retries uint64) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, oops.Code("MINIO_CLIENT_FAILED").With("endpoint", endpoint).Wrap(err)
	}

	err = withRetry(ctx, logger, "minio", retries, func(ctx context.Context) error {
		exists, err := client.BucketExists(ctx, bucket)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
	})
	if err != nil {
		return nil, oops.Code("MINIO_BUCKET_FAILED").With("bucket", bucket).Wrap(err)
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// Upload stores bytes under the given object key, replacing any previous object.
func (s *MinioStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return oops.Code("MINIO_UPLOAD_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// Download retrieves the object bytes. A missing object is tasks.ErrNotFound.
func (s *MinioStore) Download(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", s.downloadErr(key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, "", s.downloadErr(key, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", s.downloadErr(key, err)
	}
	return data, info.ContentType, nil
}

func (s *MinioStore) downloadErr(key string, err error) error {
	if isNoSuchKey(err) {
		return tasks.ErrNotFound
	}
	return oops.Code("MINIO_DOWNLOAD_FAILED").With("key", key).Wrap(err)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
