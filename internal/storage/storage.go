// Package storage is the backing store that committed file contents are
// read from and written to.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
)

// Backend reads and writes repository files by slash-separated path
// relative to the repository root.
type Backend interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	// List returns every file path under the root, sorted, skipping
	// directories for which skipDir returns true.
	List(ctx context.Context, skipDir func(name string) bool) ([]string, error)
}

// AFS is a Backend over an afs URL (file://, mem://, s3://, ...).
type AFS struct {
	fs      afs.Service
	baseURL string
}

// NewAFS returns a Backend rooted at baseURL.
func NewAFS(baseURL string) *AFS {
	return &AFS{fs: afs.New(), baseURL: strings.TrimRight(baseURL, "/")}
}

// NewLocal returns a Backend rooted at a local directory.
func NewLocal(root string) *AFS {
	return NewAFS("file://" + path.Clean("/"+strings.TrimPrefix(root, "/")))
}

// BaseURL returns the root URL of the backend.
func (a *AFS) BaseURL() string { return a.baseURL }

func (a *AFS) url(p string) string {
	return url.Join(a.baseURL, p)
}

func (a *AFS) Read(ctx context.Context, p string) ([]byte, error) {
	data, err := a.fs.DownloadWithURL(ctx, a.url(p))
	if err != nil {
		return nil, fmt.Errorf("storage: reading %s: %w", p, err)
	}
	return data, nil
}

func (a *AFS) Write(ctx context.Context, p string, data []byte) error {
	if dir := path.Dir(p); dir != "." {
		dirURL := a.url(dir)
		ok, err := a.fs.Exists(ctx, dirURL)
		if err != nil {
			return fmt.Errorf("storage: checking %s: %w", dir, err)
		}
		if !ok {
			if err := a.fs.Create(ctx, dirURL, 0o755, true); err != nil {
				return fmt.Errorf("storage: creating %s: %w", dir, err)
			}
		}
	}
	if err := a.fs.Upload(ctx, a.url(p), 0o644, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("storage: writing %s: %w", p, err)
	}
	return nil
}

func (a *AFS) Delete(ctx context.Context, p string) error {
	if err := a.fs.Delete(ctx, a.url(p)); err != nil {
		return fmt.Errorf("storage: deleting %s: %w", p, err)
	}
	return nil
}

func (a *AFS) Exists(ctx context.Context, p string) (bool, error) {
	return a.fs.Exists(ctx, a.url(p))
}

func (a *AFS) List(ctx context.Context, skipDir func(name string) bool) ([]string, error) {
	var files []string
	var visitor storage.OnVisit = func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			if skipDir != nil && skipDir(info.Name()) {
				return false, nil
			}
			return true, nil
		}
		files = append(files, path.Join(parent, info.Name()))
		return true, nil
	}
	if err := a.fs.Walk(ctx, a.baseURL, visitor); err != nil {
		return nil, fmt.Errorf("storage: listing %s: %w", a.baseURL, err)
	}
	sort.Strings(files)
	return files, nil
}
