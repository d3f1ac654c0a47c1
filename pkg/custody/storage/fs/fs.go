package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/recordsdesk/custody/pkg/custody"
)

// Store is a filesystem implementation of the custody.BlobStore interface
type Store struct {
	baseDir   string
	urlPrefix string
}

// Config options for the filesystem store
type Config struct {
	BaseDir   string // Base directory for storing attachment files
	URLPrefix string // Optional URL prefix for download URLs
}

// New creates a new filesystem attachment store
func New(config Config) (custody.BlobStore, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{
		baseDir:   config.BaseDir,
		urlPrefix: config.URLPrefix,
	}, nil
}

// Upload writes the blob to the filesystem
func (s *Store) Upload(ctx context.Context, key string, reader io.Reader) (int64, error) {
	filePath := filepath.Join(s.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	n, err := io.Copy(file, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	return n, nil
}

// Download opens the blob for reading
func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(s.baseDir, key))
	if os.IsNotExist(err) {
		return nil, errors.New("blob not found")
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes the blob
func (s *Store) Delete(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(s.baseDir, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GetDownloadURL returns a URL under the configured prefix, or "" when no
// prefix is set and blobs must be served directly
func (s *Store) GetDownloadURL(ctx context.Context, key string, downloadFilename string) (string, error) {
	if s.urlPrefix == "" {
		return "", nil
	}
	return fmt.Sprintf("%s/%s", s.urlPrefix, key), nil
}
