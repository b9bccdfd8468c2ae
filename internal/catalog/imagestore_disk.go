package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// UploadsPath is the URL prefix the HTTP router serves disk images under.
const UploadsPath = "/uploads/"

// DiskStore keeps images in a local directory served at UploadsPath.
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore creates the directory if needed.
//
// Postcondition: Returns a DiskStore writing under dir, or an error.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating uploads dir %s: %w", dir, err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the directory images are written to.
func (d *DiskStore) Dir() string {
	return d.dir
}

// Save writes img to dir/key through a temporary file.
func (d *DiskStore) Save(_ context.Context, key string, img Image) error {
	name, err := cleanKey(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, img.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.dir, name)); err != nil {
		return fmt.Errorf("moving %s into place: %w", name, err)
	}
	return nil
}

// URL returns where the router serves key.
func (d *DiskStore) URL(key string) string {
	return d.baseURL + UploadsPath + key
}

func cleanKey(key string) (string, error) {
	name := filepath.Base(key)
	if name != key || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: bad image key %q", ErrInvalid, key)
	}
	return name, nil
}
