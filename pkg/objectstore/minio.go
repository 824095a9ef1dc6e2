package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/export"
)

// MinIOStore is an S3-compatible object store backed by minio-go.
type MinIOStore struct {
	client *minio.Client
	logger *slog.Logger
}

// NewMinIOStore creates a store from configuration.
func NewMinIOStore(cfg config.ObjectStoreConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, export.NewStorageError("minio", "connect", fmt.Errorf("failed to create MinIO client: %w", err))
	}
	return &MinIOStore{
		client: client,
		logger: slog.Default().With("component", "objectstore.minio", "endpoint", cfg.Endpoint),
	}, nil
}

// Ping verifies that bucket exists.
func (s *MinIOStore) Ping(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return export.NewStorageError("minio", "ping", fmt.Errorf("failed to check bucket: %w", err))
	}
	if !exists {
		return export.NewStorageError("minio", "ping", fmt.Errorf("bucket does not exist: %s", bucket))
	}
	return nil
}

// Download implements export.ObjectStorage.
func (s *MinIOStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap("download", bucket, key, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, s.wrap("download", bucket, key, err)
	}
	return data, nil
}

// Upload implements export.ObjectStorage.
func (s *MinIOStore) Upload(ctx context.Context, bucket, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return s.wrap("upload", bucket, key, err)
	}
	s.logger.Debug("object uploaded", "bucket", bucket, "key", key, "size", len(data))
	return nil
}

// Sign implements export.ObjectStorage.
func (s *MinIOStore) Sign(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, key, expiry, url.Values{})
	if err != nil {
		return "", s.wrap("sign", bucket, key, err)
	}
	return u.String(), nil
}

// Exists implements export.ObjectStorage.
func (s *MinIOStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, s.wrap("stat", bucket, key, err)
}

// Delete implements export.ObjectStorage. Deleting a missing object is not
// an error.
func (s *MinIOStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return s.wrap("delete", bucket, key, err)
	}
	return nil
}

func (s *MinIOStore) wrap(op, bucket, key string, err error) error {
	return export.NewStorageError("minio", op, fmt.Errorf("%s/%s: %w", bucket, key, err))
}
