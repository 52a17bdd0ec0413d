package gcsuploader

import (
	"context"
)

// ObjectStore provides the cloud storage operations the backup needs.
// This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// Put writes data to bucket/object, replacing any existing object.
	Put(ctx context.Context, bucket, object string, data []byte, contentType string) error

	// Get downloads bucket/object.
	Get(ctx context.Context, bucket, object string) ([]byte, error)

	// List returns the object names under prefix.
	List(ctx context.Context, bucket, prefix string) ([]string, error)

	// Close releases the underlying client.
	Close() error
}
