// Package storage defines the Backend interface for blob storage holding
// knowledge-base file content.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Backend is the interface for content storage backends.
// Implementations handle raw object I/O (S3, local filesystem).
// Metadata (file records, archive, delete requests) is handled separately
// by postgres.Store.
type Backend interface {
	// ListObjects returns the keys of all objects under prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)

	// GetObject retrieves an object by key.
	GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// PutObject uploads content to the given key.
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error

	// DeleteObject removes an object by key.
	DeleteObject(ctx context.Context, key string) error

	// CopyObject copies an object from srcKey to dstKey.
	CopyObject(ctx context.Context, srcKey, dstKey string) error

	// ObjectExists checks if an object exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// Type returns the backend type identifier ("s3", "local").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// Watcher is implemented by backends that can report changes under a prefix.
type Watcher interface {
	Watch(ctx context.Context, prefix string) (<-chan struct{}, error)
}

// ReadString reads a whole object as text.
func ReadString(ctx context.Context, b Backend, key string) (string, error) {
	rc, _, err := b.GetObject(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return string(data), nil
}

// WriteString stores text at key.
func WriteString(ctx context.Context, b Backend, key, content string) error {
	return b.PutObject(ctx, key, strings.NewReader(content), int64(len(content)))
}

// ProjectPrefix returns the key prefix of a project's objects.
func ProjectPrefix(project string) string {
	return strings.TrimSuffix(project, "/") + "/"
}
