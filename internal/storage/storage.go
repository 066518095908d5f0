// Package storage is the object storage used for backup archives.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

// Object describes a stored blob.
type Object struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectStore uploads, fetches and removes blobs addressed by bucket and path.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, path string, r io.Reader, size int64, contentType string) error
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	PublicURL(bucket, path string) string
	Remove(ctx context.Context, bucket string, paths ...string) error
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
}

// JoinPath joins path segments with "/", dropping empty ones and stray slashes.
func JoinPath(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}
