//go:build gcp

package storage

import (
	"context"
	"fmt"
	"os"
)

func newGCSStoreFromEnv(ctx context.Context) (Store, error) {
	bucket := os.Getenv("DOWNLOAD_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("DOWNLOAD_GCS_BUCKET is required for gcs storage")
	}
	return NewGCSStore(ctx, GCSStoreConfig{
		Bucket: bucket,
		Prefix: os.Getenv("DOWNLOAD_GCS_PREFIX"),
	})
}
