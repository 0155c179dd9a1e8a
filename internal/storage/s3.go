package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"alcyxob/storage-gateway/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config" // Alias config to avoid clash
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/charmbracelet/log"
)

// s3API is the subset of *s3.Client the driver calls.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// s3Storage implements Backend using an S3-compatible service
// (Supabase Storage's S3 endpoint, AWS S3, MinIO, ...).
type s3Storage struct {
	client     s3API
	publicBase string
	logger     *log.Logger
}

// NewS3Storage creates a new S3 backend from the storage config.
func NewS3Storage(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (Backend, error) {
	awsSDKConfig, err := awsCfg.LoadDefaultConfig(ctx,
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws sdk config: %w", err)
	}

	// Force path-style addressing required by most S3-compatible services
	client := s3.NewFromConfig(awsSDKConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	logger.Info("S3 storage backend initialized", "endpoint", cfg.Endpoint, "region", cfg.Region)

	return newS3Storage(client, cfg.PublicURL, logger), nil
}

func newS3Storage(client s3API, publicBase string, logger *log.Logger) *s3Storage {
	return &s3Storage{client: client, publicBase: publicBase, logger: logger}
}

func (s *s3Storage) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string, overwrite bool) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	}
	if !overwrite {
		// Conditional write: the backend rejects the put if the key exists.
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		s.logger.Error("Failed to upload object", "bucket", bucket, "key", key, "err", err)
		return fmt.Errorf("s3 put object bucket=%s key=%s: %w", bucket, key, classifyS3Error(err))
	}
	return nil
}

func (s *s3Storage) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("s3 head object bucket=%s key=%s: %w", bucket, key, classifyS3Error(err))
	}
	return ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

func (s *s3Storage) Download(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("s3 get object bucket=%s key=%s: %w", bucket, key, classifyS3Error(err))
	}
	return out.Body, ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// maxDeleteObjects is the S3 limit on keys per DeleteObjects request.
const maxDeleteObjects = 1000

func (s *s3Storage) Remove(ctx context.Context, bucket string, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteObjects {
		end := min(start+maxDeleteObjects, len(keys))
		if err := s.removeBatch(ctx, bucket, keys[start:end]); err != nil {
			return err
		}
	}
	if len(keys) > 0 {
		s.logger.Info("Deleted objects", "bucket", bucket, "count", len(keys))
	}
	return nil
}

func (s *s3Storage) removeBatch(ctx context.Context, bucket string, keys []string) error {
	objects := make([]types.ObjectIdentifier, len(keys))
	for i, key := range keys {
		objects[i] = types.ObjectIdentifier{Key: aws.String(key)}
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		s.logger.Error("Failed to delete objects", "bucket", bucket, "keys", keys, "err", err)
		return fmt.Errorf("s3 delete objects bucket=%s: %w", bucket, classifyS3Error(err))
	}

	// DeleteObjects reports per-key failures in the body. NoSuchKey is
	// success: deletes are idempotent.
	for _, e := range out.Errors {
		if code := aws.ToString(e.Code); code != "NoSuchKey" {
			return fmt.Errorf("s3 delete object bucket=%s key=%s: %s: %s", bucket, aws.ToString(e.Key), code, aws.ToString(e.Message))
		}
	}
	return nil
}

func (s *s3Storage) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	for {
		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects bucket=%s prefix=%s: %w", bucket, prefix, classifyS3Error(err))
		}
		for _, obj := range out.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return objects, nil
		}
		input.ContinuationToken = out.NextContinuationToken
	}
}

func (s *s3Storage) PublicURL(bucket, key string) string {
	return BuildPublicURL(s.publicBase, bucket, key)
}

// classifyS3Error maps SDK errors onto the package sentinels, keeping the
// original error in the chain.
func classifyS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%w: %w", ErrObjectExists, err)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		case http.StatusPreconditionFailed:
			return fmt.Errorf("%w: %w", ErrObjectExists, err)
		}
	}

	var sendErr *smithyhttp.RequestSendError
	var netErr net.Error
	if errors.As(err, &sendErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

var _ Backend = (*s3Storage)(nil)
