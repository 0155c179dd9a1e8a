package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"alcyxob/storage-gateway/internal/config"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioStorage implements Backend using the MinIO client, which works with
// any S3-compatible provider.
type minioStorage struct {
	client     *minio.Client
	publicBase string
	logger     *log.Logger
}

// NewMinioStorage creates a MinIO-backed storage. The endpoint may be given
// with or without a scheme; UseSSL decides the transport.
func NewMinioStorage(cfg config.StorageConfig, logger *log.Logger) (Backend, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	endpoint = strings.TrimRight(endpoint, "/")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	logger.Info("MinIO storage backend initialized", "endpoint", endpoint, "ssl", cfg.UseSSL)

	return &minioStorage{client: client, publicBase: cfg.PublicURL, logger: logger}, nil
}

func (s *minioStorage) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string, overwrite bool) error {
	if !overwrite {
		// minio-go has no conditional put, so check first. Keys are
		// generated with a random token, the race is theoretical.
		_, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
		if err == nil {
			return fmt.Errorf("minio put object bucket=%s key=%s: %w", bucket, key, ErrObjectExists)
		}
		if err = classifyMinioError(err); !errors.Is(err, ErrObjectNotFound) {
			return fmt.Errorf("minio stat object bucket=%s key=%s: %w", bucket, key, err)
		}
	}

	_, err := s.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.logger.Error("Failed to upload object", "bucket", bucket, "key", key, "err", err)
		return fmt.Errorf("minio put object bucket=%s key=%s: %w", bucket, key, classifyMinioError(err))
	}
	return nil
}

func (s *minioStorage) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("minio stat object bucket=%s key=%s: %w", bucket, key, classifyMinioError(err))
	}
	return toObjectInfo(info), nil
}

func (s *minioStorage) Download(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("minio get object bucket=%s key=%s: %w", bucket, key, classifyMinioError(err))
	}
	// GetObject is lazy; Stat performs the request and surfaces NoSuchKey.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, ObjectInfo{}, fmt.Errorf("minio get object bucket=%s key=%s: %w", bucket, key, classifyMinioError(err))
	}
	return obj, toObjectInfo(info), nil
}

func (s *minioStorage) Remove(ctx context.Context, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)

	// RemoveObjects batches into multi-object delete requests and reports
	// only failures. Missing keys are not reported by S3 multi-delete.
	// The error channel is drained fully so the client goroutine can exit.
	var firstErr error
	for rErr := range s.client.RemoveObjects(ctx, bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rErr.Err == nil || firstErr != nil {
			continue
		}
		err := classifyMinioError(rErr.Err)
		if errors.Is(err, ErrObjectNotFound) {
			continue
		}
		s.logger.Error("Failed to delete object", "bucket", bucket, "key", rErr.ObjectName, "err", rErr.Err)
		firstErr = fmt.Errorf("minio remove object bucket=%s key=%s: %w", bucket, rErr.ObjectName, err)
	}
	if firstErr != nil {
		return firstErr
	}

	s.logger.Info("Deleted objects", "bucket", bucket, "count", len(keys))
	return nil
}

func (s *minioStorage) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("minio list objects bucket=%s prefix=%s: %w", bucket, prefix, classifyMinioError(obj.Err))
		}
		objects = append(objects, toObjectInfo(obj))
	}
	return objects, nil
}

func (s *minioStorage) PublicURL(bucket, key string) string {
	return BuildPublicURL(s.publicBase, bucket, key)
}

func toObjectInfo(info minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}
}

func classifyMinioError(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || (resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket"):
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	case resp.StatusCode == http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %w", ErrObjectExists, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

var _ Backend = (*minioStorage)(nil)
