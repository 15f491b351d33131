// Package storage abstracts owned object storage. The core treats it as
// put(key, bytes) -> key plus url_for(key); backends are filesystem (dev)
// and S3-compatible object storage (production).
package storage

import "context"

// ObjectStore persists blobs under slash-separated keys and resolves keys
// to retrievable URLs.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	URL(key string) string
}
