package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Default content type for objects stored without one.
const DefaultContentType = "application/octet-stream"

// Backend defines the capabilities the gateway needs from an object store.
// Every method takes the bucket explicitly; a single Backend serves all
// allow-listed buckets.
type Backend interface {
	// Upload stores body under key. When overwrite is false and the key
	// already exists, Upload fails with ErrObjectExists.
	Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string, overwrite bool) error

	// Stat returns object metadata without fetching the body.
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)

	// Download returns the object body. The caller must close it.
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)

	// Remove deletes keys in one batched call. Missing keys are not an error.
	Remove(ctx context.Context, bucket string, keys []string) error

	// List returns metadata for objects whose key starts with prefix.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)

	// PublicURL builds the public URL for key. It never calls the backend.
	PublicURL(bucket, key string) string
}

// ObjectInfo is the metadata a backend reports for one object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Errors returned by every Backend implementation. Drivers translate their
// SDK's error shapes into these at the boundary.
var (
	ErrObjectNotFound = errors.New("object not found in storage")
	ErrObjectExists   = errors.New("object already exists in storage")
	ErrUnavailable    = errors.New("storage backend unavailable")
)
