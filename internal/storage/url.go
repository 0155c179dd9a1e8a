package storage

import (
	"net/url"
	"strings"
)

// PublicMarker is the path segment that precedes the bucket name in a
// public object URL: {base}/object/public/{bucket}/{key}.
const PublicMarker = "public"

// BuildPublicURL joins base, bucket and key in the Supabase public object
// layout. Each key segment is escaped so names with spaces survive.
func BuildPublicURL(base, bucket, key string) string {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/object/" + PublicMarker + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}
