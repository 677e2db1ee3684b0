package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Filesystem keeps objects under a local directory that the HTTP server exposes at PublicBase.
type Filesystem struct {
	root       string
	publicBase string
}

// NewFilesystem returns a filesystem store rooted at root, creating it if needed.
func NewFilesystem(root, publicBase string) (*Filesystem, error) {
	if root == "" {
		root = "./uploads"
	}
	if publicBase == "" {
		publicBase = "/uploads"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{root: root, publicBase: publicBase}, nil
}

func (f *Filesystem) Driver() Driver { return DriverFilesystem }

// Root is the directory objects are written to.
func (f *Filesystem) Root() string { return f.root }

func (f *Filesystem) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return Info{}, err
	}
	dst := filepath.Join(f.root, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Info{}, err
	}
	file, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Info{}, fmt.Errorf("create %s: %w", k, err)
	}
	n, copyErr := io.Copy(file, readerWithContext(ctx, r))
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(dst)
		if copyErr != nil {
			return Info{}, fmt.Errorf("write %s: %w", k, copyErr)
		}
		return Info{}, fmt.Errorf("close %s: %w", k, closeErr)
	}
	return Info{Key: k, Ref: joinRef(f.publicBase, k), Size: n, ContentType: opts.ContentType}, nil
}

func (f *Filesystem) Delete(ctx context.Context, key string) error {
	k, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(f.root, filepath.FromSlash(k))); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
