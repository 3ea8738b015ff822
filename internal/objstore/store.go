// Package objstore is the converter's view of the object store: paginated
// listing, existence checks, and whole-object transfers between the store and
// local files. Every write is a whole-object put; there is no append or
// partial update.
package objstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned (wrapped) when a requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Object is one listed object.
type Object struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// UploadOptions carries optional object attributes for Upload and Put.
type UploadOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Store is implemented by S3Store and MemoryStore.
type Store interface {
	// List returns every object under prefix in key order. It either consumes
	// all pages or returns an error; a partial listing is never returned.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Exists reports whether key exists. A missing key is (false, nil).
	Exists(ctx context.Context, key string) (bool, error)

	// Download writes the object at key to localPath and returns its size.
	Download(ctx context.Context, key, localPath string) (int64, error)

	// Upload stores the file at localPath under key.
	Upload(ctx context.Context, key, localPath string, opts UploadOptions) error

	// Get reads a small object fully into memory.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes a small object from memory.
	Put(ctx context.Context, key string, data []byte, opts UploadOptions) error
}
