// Package storage persists rendered rasters and uploaded imagery as objects
// addressed by key and resolvable through a public base URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrInvalidKey = errors.New("invalid object key")
	ErrNotFound   = errors.New("object not found")
)

type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// UploadKey is the key a client-supplied image is stored under.
func UploadKey(fieldID, filename string, now time.Time) string {
	return fmt.Sprintf("fields/%s/%d-%s", fieldID, now.UnixMilli(), path.Base(filename))
}

// RasterKey is the key a rendered NDVI image is stored under.
func RasterKey(fieldID string, now time.Time) string {
	return fmt.Sprintf("ndvi/%s/%d.png", fieldID, now.UnixMilli())
}

// PublicURL joins baseURL and key with exactly one slash.
func PublicURL(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(key, "/")
}

// KeyFromURL reverses PublicURL. ok is false when url is not under baseURL.
func KeyFromURL(baseURL, url string) (key string, ok bool) {
	prefix := strings.TrimRight(baseURL, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key = strings.TrimPrefix(url, prefix)
	return key, validateKey(key) == nil
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// LocalStore keeps objects on the local filesystem.
type LocalStore struct {
	root    string
	baseURL string
}

func NewLocalStore(root, publicBaseURL string) *LocalStore {
	return &LocalStore{root: root, baseURL: publicBaseURL}
}

func (s *LocalStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateKey(key); err != nil {
		return "", err
	}

	target := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create object folder: %w", err)
	}
	tmp := target + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to commit object %s: %w", key, err)
	}

	return PublicURL(s.baseURL, key), nil
}

func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return f, err
}

// Dir is the directory objects are written under. The API serves it as a
// static file tree.
func (s *LocalStore) Dir() string {
	return s.root
}
