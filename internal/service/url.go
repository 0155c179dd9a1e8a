package service

import (
	"fmt"
	"net/url"
	"strings"

	"alcyxob/storage-gateway/internal/storage"
)

// Location identifies an object inside a bucket.
type Location struct {
	Bucket string
	Path   string
}

// ParseURL is the inverse of the backend's public URL builder. It finds the
// "public" path segment; the next segment is the bucket and everything after
// it is the object path.
func ParseURL(raw string) (Location, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Path == "" {
		return Location{}, fmt.Errorf("%w: %q", ErrMalformedURL, raw)
	}

	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		if seg != storage.PublicMarker {
			continue
		}
		if i+2 >= len(segments) {
			break
		}
		bucket := segments[i+1]
		objectPath := strings.Join(segments[i+2:], "/")
		if bucket == "" || objectPath == "" {
			break
		}
		return Location{Bucket: bucket, Path: objectPath}, nil
	}
	return Location{}, fmt.Errorf("%w: %q", ErrMalformedURL, raw)
}
