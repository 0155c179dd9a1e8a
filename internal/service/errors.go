package service

import (
	"errors"
	"fmt"
	"strings"
)

// --- Error Definitions ---
// Validation errors are returned wrapped with detail; match with errors.Is.
var (
	ErrInvalidBucket      = errors.New("invalid bucket")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrEmptyPayload       = errors.New("file is required")
	ErrTooManyFiles       = errors.New("too many files")
	ErrMalformedURL       = errors.New("malformed storage url")
	ErrInvalidPath        = errors.New("invalid file path")
	ErrNotFound           = errors.New("file not found")
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)

// UploadError reports a failed backend write for one object.
type UploadError struct {
	Bucket string
	Path   string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload file %q to bucket %q: %v", e.Path, e.Bucket, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// DeleteError reports a failed backend removal of one or more objects.
type DeleteError struct {
	Bucket string
	Paths  []string
	Err    error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("failed to delete %s from bucket %q: %v", strings.Join(e.Paths, ", "), e.Bucket, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }
