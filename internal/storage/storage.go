// Package storage provides object storage abstractions for layout documents,
// raw extracts and decoded outputs.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts object storage operations.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Open returns a reader for the object's content.
	Open(ctx context.Context, objectPath string) (io.ReadCloser, error)

	// ReadObject returns the object's full content.
	ReadObject(ctx context.Context, objectPath string) ([]byte, error)

	// PutObject stores data under objectPath, replacing any existing object.
	PutObject(ctx context.Context, objectPath string, data []byte) error

	// Upload uploads a local file to object storage.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download downloads an object to a local file.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix, sorted.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// Join joins object path elements with forward slashes.
func Join(elem ...string) string {
	var parts []string
	for _, e := range elem {
		if e != "" {
			parts = append(parts, e)
		}
	}
	return path.Join(parts...)
}

// BaseName returns the last element of an object path with every extension
// removed ("raw/cpsb9401.dat.gz" → "cpsb9401").
func BaseName(objectPath string) string {
	base := path.Base(objectPath)
	if i := strings.Index(base, "."); i > 0 {
		return base[:i]
	}
	return base
}
