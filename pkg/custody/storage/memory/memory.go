package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/recordsdesk/custody/pkg/custody"
)

// Store is an in-memory implementation of the custody.BlobStore interface
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New creates a new in-memory attachment store
func New() custody.BlobStore {
	return &Store{
		blobs: make(map[string][]byte),
	}
}

// Upload stores the blob in memory
func (s *Store) Upload(ctx context.Context, key string, reader io.Reader) (int64, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return int64(len(data)), nil
}

// Download opens the blob for reading
func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.blobs[key]
	if !exists {
		return nil, errors.New("blob not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the blob
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// GetDownloadURL returns "" because the memory store serves blobs directly
func (s *Store) GetDownloadURL(ctx context.Context, key string, downloadFilename string) (string, error) {
	return "", nil
}
