// Package blob selects a concrete blob store implementation from environment
// configuration.
package blob

import (
	"context"
	"fmt"
	"os"

	"silatcore/internal/blob/core"
	"silatcore/internal/infra/blob/fs"
	"silatcore/internal/infra/blob/memory"
	"silatcore/internal/infra/blob/s3"
)

// OpenFromEnv selects a blob backend using environment variables. Defaults to
// the filesystem driver when unset.
//
//	SILATCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	SILATCORE_BLOB_FS_ROOT: filesystem root (default ./blobdata)
//	SILATCORE_BLOB_S3_*: see the s3 package
func OpenFromEnv(ctx context.Context) (core.Store, error) {
	driver := os.Getenv("SILATCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(core.DriverFilesystem)
	}
	switch core.Driver(driver) {
	case core.DriverFilesystem:
		return fs.New(os.Getenv("SILATCORE_BLOB_FS_ROOT"))
	case core.DriverS3:
		return s3.OpenFromEnv(ctx)
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
