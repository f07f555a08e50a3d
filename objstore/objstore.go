// Package objstore provides the object-store client handle the output driver
// is constructed with: a small Bucket interface over S3, Google Cloud Storage
// and an in-memory map. Missing objects are reported as errors wrapping
// fs.ErrNotExist; existence probes are exact-key lookups, never prefix scans.
package objstore

import (
	"context"
	"fmt"
)

// Bucket is a handle to one bucket of an object store. Implementations are
// safe for concurrent use; no call depends on connection affinity.
type Bucket interface {
	// Put stores body under key, unconditionally replacing any existing
	// object (last writer wins).
	Put(ctx context.Context, key string, body []byte) error
	// Get returns the full object body. A missing key yields an error
	// wrapping fs.ErrNotExist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Stat reports whether an object exists at exactly this key.
	Stat(ctx context.Context, key string) (bool, error)
	// List returns the keys of all objects below the given directory-like
	// prefix, sorted.
	List(ctx context.Context, dir string) ([]string, error)
}

// Open constructs a bucket handle for a URI scheme: "s3", "gs" or "mem".
// The handle authenticates once and is meant to be reused across calls.
func Open(ctx context.Context, scheme, bucket string) (Bucket, error) {
	switch scheme {
	case "s3":
		return NewS3(ctx, bucket)
	case "gs":
		return NewGCS(ctx, bucket)
	case "mem":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unsupported object store scheme %q", scheme)
}
