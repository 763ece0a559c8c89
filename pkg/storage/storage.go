// Package storage persists downloaded document bytes behind an opaque path
// token. The filesystem store is content-addressed and atomic; S3 and GCS
// back server deployments. The extraction stage relocates files inside the
// store when it organizes them by classification.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// Store is the blob storage contract. Paths returned by Save are opaque
// tokens; callers never interpret them.
type Store interface {
	// Save persists data and returns its opaque storage path. Saving the
	// same bytes twice is idempotent and returns the same path.
	Save(ctx context.Context, data []byte, format contracts.FileFormat) (string, error)
	// Read returns the bytes stored at path.
	Read(ctx context.Context, path string) ([]byte, error)
	// Exists reports whether path holds a blob.
	Exists(ctx context.Context, path string) (bool, error)
	// Delete removes the blob at path. Deleting a missing blob is not an
	// error.
	Delete(ctx context.Context, path string) error
	// Move relocates a blob to newPath and returns the new token.
	Move(ctx context.Context, path, newPath string) (string, error)
}

func extensionFor(format contracts.FileFormat) string {
	switch format {
	case contracts.FormatXML:
		return ".xml"
	case contracts.FormatDOCX:
		return ".docx"
	case contracts.FormatPDF:
		return ".pdf"
	case contracts.FormatZIP:
		return ".zip"
	default:
		return ".bin"
	}
}

// validPath rejects tokens that escape the store root.
func validPath(p string) error {
	if p == "" {
		return fmt.Errorf("empty storage path")
	}
	if filepath.IsAbs(p) || strings.Contains(p, "..") {
		return fmt.Errorf("invalid storage path: %s", p)
	}
	return nil
}

// FileStore is the filesystem-backed Store. Blobs land under
// base/blobs/<aa>/<hash><ext>; organized copies land wherever Move puts
// them.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	//nolint:gosec // G301: 0755 is intentional for a shared document directory
	if err := os.MkdirAll(filepath.Join(baseDir, "blobs"), 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure storage dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Save writes data atomically (temp file, then rename) under a
// content-addressed path.
func (s *FileStore) Save(_ context.Context, data []byte, format contracts.FileFormat) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	rel := filepath.Join("blobs", hash[:2], hash+extensionFor(format))
	abs := filepath.Join(s.baseDir, rel)

	if _, err := os.Stat(abs); err == nil {
		return rel, nil // already stored
	}

	//nolint:gosec // G301: parent dirs share the store permission model
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", fmt.Errorf("failed to ensure blob dir: %w", err)
	}
	tmp := abs + ".tmp"
	//nolint:gosec // G306: blobs are plain documents
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, abs); err != nil {
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}
	return rel, nil
}

// Read returns the blob at path.
func (s *FileStore) Read(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := validPath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, path)) //nolint:gosec // path validated above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob not found: %s", path)
		}
		return nil, err
	}
	return data, nil
}

// Exists reports whether path holds a blob.
func (s *FileStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := validPath(path); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(s.baseDir, path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Delete removes the blob at path.
func (s *FileStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validPath(path); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.baseDir, path))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Move renames a blob inside the store.
func (s *FileStore) Move(_ context.Context, path, newPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validPath(path); err != nil {
		return "", err
	}
	if err := validPath(newPath); err != nil {
		return "", err
	}
	src := filepath.Join(s.baseDir, path)
	dst := filepath.Join(s.baseDir, newPath)
	//nolint:gosec // G301: parent dirs share the store permission model
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("failed to ensure target dir: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("failed to move blob: %w", err)
	}
	return newPath, nil
}
