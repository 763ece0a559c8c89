//go:build gcp

package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"

	gcs "cloud.google.com/go/storage"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// GCSStore implements Store on Google Cloud Storage.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore creates a GCS-backed store using application default
// credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Save uploads data under a content-addressed object path, idempotently.
func (s *GCSStore) Save(ctx context.Context, data []byte, format contracts.FileFormat) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	token := path.Join("blobs", hash[:2], hash+extensionFor(format))

	obj := s.client.Bucket(s.bucket).Object(s.prefix + token)
	if _, err := obj.Attrs(ctx); err == nil {
		return token, nil // already stored
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return token, nil
}

// Read downloads the blob at token.
func (s *GCSStore) Read(ctx context.Context, token string) ([]byte, error) {
	if err := validPath(token); err != nil {
		return nil, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(s.prefix + token).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs get failed for %s: %w", token, err)
	}
	defer func() { _ = reader.Close() }()

	return io.ReadAll(reader)
}

// Exists reports whether token holds a blob.
func (s *GCSStore) Exists(ctx context.Context, token string) (bool, error) {
	if err := validPath(token); err != nil {
		return false, err
	}
	_, err := s.client.Bucket(s.bucket).Object(s.prefix + token).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs attrs error: %w", err)
	}
	return true, nil
}

// Delete removes the blob at token.
func (s *GCSStore) Delete(ctx context.Context, token string) error {
	if err := validPath(token); err != nil {
		return err
	}
	err := s.client.Bucket(s.bucket).Object(s.prefix + token).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete failed for %s: %w", token, err)
	}
	return nil
}

// Move copies the blob to newToken and deletes the original.
func (s *GCSStore) Move(ctx context.Context, token, newToken string) (string, error) {
	if err := validPath(token); err != nil {
		return "", err
	}
	if err := validPath(newToken); err != nil {
		return "", err
	}
	src := s.client.Bucket(s.bucket).Object(s.prefix + token)
	dst := s.client.Bucket(s.bucket).Object(s.prefix + newToken)
	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		return "", fmt.Errorf("gcs copy failed for %s: %w", token, err)
	}
	if err := src.Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return "", fmt.Errorf("gcs delete after copy failed: %w", err)
	}
	return newToken, nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
