package storage

import (
	"context"
	"fmt"
	"os"
)

// NewStoreFromEnv builds a Store based on environment configuration.
//
// DOWNLOAD_STORAGE_TYPE selects the backend: "fs" (default), "s3" or
// "gcs". The filesystem backend roots itself at DATA_DIR (default
// "./data"). S3 reads DOWNLOAD_S3_BUCKET, DOWNLOAD_S3_REGION and the
// optional DOWNLOAD_S3_ENDPOINT / DOWNLOAD_S3_PREFIX. GCS requires the
// gcp build tag and reads DOWNLOAD_GCS_BUCKET / DOWNLOAD_GCS_PREFIX.
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	storageType := os.Getenv("DOWNLOAD_STORAGE_TYPE")
	if storageType == "" {
		storageType = "fs"
	}

	switch storageType {
	case "fs":
		dataDir := os.Getenv("DATA_DIR")
		if dataDir == "" {
			dataDir = "./data"
		}
		return NewFileStore(dataDir)

	case "s3":
		bucket := os.Getenv("DOWNLOAD_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("DOWNLOAD_S3_BUCKET is required for s3 storage")
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   bucket,
			Region:   os.Getenv("DOWNLOAD_S3_REGION"),
			Endpoint: os.Getenv("DOWNLOAD_S3_ENDPOINT"),
			Prefix:   os.Getenv("DOWNLOAD_S3_PREFIX"),
		})

	case "gcs":
		return newGCSStoreFromEnv(ctx)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageType)
	}
}
