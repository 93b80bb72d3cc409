// Package attachments persists attachment bytes and saved transcripts, and
// produces the stable public URLs posted into threads.
package attachments

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store persists named blobs and resolves their public URLs. Keys are
// slash-separated paths ("attachments/<id>/<name>", "logs/<file>").
type Store interface {
	// Save writes the blob under key, overwriting any existing object.
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Open returns a reader for the blob. The caller closes it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// URL returns the stable public URL for the blob.
	URL(key string) string
}

// AttachmentKey builds the storage key for a message attachment.
func AttachmentKey(id, filename string) string {
	return path.Join("attachments", id, filename)
}

// LogKey builds the storage key for a saved transcript.
func LogKey(filename string) string {
	return path.Join("logs", filename)
}

// DiskStore keeps blobs on the local filesystem under a root directory and
// serves them through the log web server.
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore creates a DiskStore rooted at dir. baseURL is the public
// address of the log web server, without a trailing slash.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("attachments: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("attachments: create %s: %w", dir, err)
	}
	return &DiskStore{root: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Path returns the filesystem path for a key, rejecting traversal outside
// the root.
func (s *DiskStore) Path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("attachments: invalid key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Save writes the blob to disk, creating parent directories as needed.
func (s *DiskStore) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("attachments: mkdir for %s: %w", key, err)
	}

	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("attachments: create %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(p)
		return fmt.Errorf("attachments: write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("attachments: close %s: %w", key, err)
	}
	return nil
}

// Open returns a reader for the blob on disk.
func (s *DiskStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("attachments: open %s: %w", key, err)
	}
	return f, nil
}

// URL returns the log web server URL for the blob.
func (s *DiskStore) URL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/" + strings.Join(parts, "/")
}
