package domain

import (
	"io"
	"time"
)

// StorageObject describes one stored object as returned to API clients.
// It is derived fresh from the backend on every call and never persisted
// by this service.
type StorageObject struct {
	Key         string    `json:"key"`    // Backend-relative path: folder prefix + generated name
	URL         string    `json:"url"`    // Public URL, derived from Bucket + Key
	Bucket      string    `json:"bucket"` // One of the allow-listed buckets
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"` // Bytes
	CreatedAt   time.Time `json:"createdAt"`
}

// UploadOptions controls where an upload lands.
type UploadOptions struct {
	Bucket      string
	Folder      string // Optional, normalized before use
	ContentType string // Optional, overrides the payload's declared type when set
}

// Payload is a single uploaded file. Body is read exactly once.
type Payload struct {
	Name        string // Original file name, only its extension is kept
	ContentType string // Declared MIME type, not sniffed
	Size        int64
	Body        io.Reader
}

// BucketDeletion is the set of paths removed from one bucket in a batch delete.
type BucketDeletion struct {
	Bucket string   `json:"bucket"`
	Paths  []string `json:"paths"`
}

// DeleteSummary merges per-bucket results of a delete-by-URL batch.
type DeleteSummary struct {
	Buckets []BucketDeletion `json:"buckets"`
	Total   int              `json:"total"`
}
