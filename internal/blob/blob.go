// Package blob stores uploaded product media. Callers keep only the returned reference.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Driver names a Store implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// ErrInvalidKey is returned for keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("invalid blob key")

// PutOptions carries optional object attributes.
type PutOptions struct {
	ContentType string
}

// Info describes a stored object.
type Info struct {
	Key         string
	Ref         string // what gets persisted in payloads and product rows
	Size        int64
	ContentType string
}

// Store is the blob storage collaborator.
type Store interface {
	Driver() Driver
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Delete(ctx context.Context, key string) error
}

// MediaKey builds a collision-free object key for an uploaded file.
func MediaKey(prefix, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join(prefix, now.UTC().Format("2006/01/02"), uuid.NewString()+ext)
}

func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: absolute key %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: traversal in %q", ErrInvalidKey, key)
	}
	return clean, nil
}

func joinRef(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}
