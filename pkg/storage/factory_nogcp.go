//go:build !gcp

package storage

import (
	"context"
	"fmt"
)

func newGCSStoreFromEnv(_ context.Context) (Store, error) {
	return nil, fmt.Errorf("gcs storage requires building with -tags gcp")
}
