package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// S3Store implements Store on AWS S3 (or any S3-compatible endpoint).
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
	Prefix   string // optional key prefix
}

// NewS3Store creates an S3-backed store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO/LocalStack
		}
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Save uploads data under a content-addressed key. An existing object
// short-circuits via HeadObject so retries stay idempotent.
func (s *S3Store) Save(ctx context.Context, data []byte, format contracts.FileFormat) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	token := path.Join("blobs", hash[:2], hash+extensionFor(format))
	key := s.prefix + token

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return token, nil // already stored
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put failed: %w", err)
	}
	return token, nil
}

// Read downloads the blob at token.
func (s *S3Store) Read(ctx context.Context, token string) ([]byte, error) {
	if err := validPath(token); err != nil {
		return nil, err
	}
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + token),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get failed for %s: %w", token, err)
	}
	defer func() { _ = result.Body.Close() }()

	return io.ReadAll(result.Body)
}

// Exists reports whether token holds a blob.
func (s *S3Store) Exists(ctx context.Context, token string) (bool, error) {
	if err := validPath(token); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + token),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

// Delete removes the blob at token.
func (s *S3Store) Delete(ctx context.Context, token string) error {
	if err := validPath(token); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + token),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed for %s: %w", token, err)
	}
	return nil
}

// Move copies the blob to newToken and deletes the original.
func (s *S3Store) Move(ctx context.Context, token, newToken string) (string, error) {
	if err := validPath(token); err != nil {
		return "", err
	}
	if err := validPath(newToken); err != nil {
		return "", err
	}

	src := s.bucket + "/" + s.prefix + token
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.prefix + newToken),
		CopySource: aws.String(src),
	})
	if err != nil {
		return "", fmt.Errorf("s3 copy failed for %s: %w", token, err)
	}
	if err := s.Delete(ctx, token); err != nil {
		return "", err
	}
	return newToken, nil
}
