// Package archive keeps generated invoice PDFs and SEPA files, either on the
// local disk or in an S3 compatible bucket.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"housing-backend/internal/config"
)

var ErrNotFound = errors.New("archive object not found")

// Archive stores files under slash separated keys such as
// "invoices/2400042.pdf".
type Archive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// New returns the archive selected by cfg.Driver. filesDir is the root of the
// local archive.
func New(ctx context.Context, cfg config.ArchiveConfig, filesDir string) (Archive, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalArchive(filesDir), nil
	case "s3":
		return NewS3Archive(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
}

// LocalArchive writes below a directory.
type LocalArchive struct {
	Dir string
}

func NewLocalArchive(dir string) *LocalArchive {
	return &LocalArchive{Dir: dir}
}

func (a *LocalArchive) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid archive key %q", key)
	}
	return filepath.Join(a.Dir, filepath.FromSlash(clean)), nil
}

func (a *LocalArchive) Put(ctx context.Context, key string, data []byte, contentType string) error {
	p, err := a.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	// write and rename so readers never see a partial file
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}

func (a *LocalArchive) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := a.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}
