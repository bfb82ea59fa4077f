// Package objectstore stores label images and rendered reports in an S3
// compatible bucket.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned for missing objects.
var ErrNotFound = errors.New("object not found")

// Store is the bucket API used by labels and reports.
type Store interface {
	// Put uploads body under key and returns the URL the object is reachable at.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	// PresignGet returns a time limited download URL.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}
