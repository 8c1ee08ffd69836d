// Package blob abstracts image object storage. The production
// implementation targets S3; tests use the in-memory store.
package blob

import (
	"context"
	"errors"
	"time"
)

// ErrBucketNotFound is returned by BucketExists when the configured
// bucket does not exist or is not reachable with the current credentials.
var ErrBucketNotFound = errors.New("storage bucket not found")

// Store is the object storage surface the ingestion pipeline needs:
// upload an image, hand out a public URL for enrichment providers, and
// mint time-limited download links.
type Store interface {
	// Put uploads data under key with the given content type.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// SignedURL returns a time-limited download URL for key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// PublicURL returns the stable, unauthenticated URL for key. Vision
	// providers fetch images through this URL.
	PublicURL(key string) string

	// BucketExists verifies the backing bucket is reachable before an
	// ingestion run starts.
	BucketExists(ctx context.Context) error
}
