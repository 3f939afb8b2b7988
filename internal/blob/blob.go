// Package blob exposes the object store used to archive audit notices and
// selects a backend from the environment.
package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"resourcechassis/internal/blob/core"
	"resourcechassis/internal/infra/blob/fs"
	memorystore "resourcechassis/internal/infra/blob/memory"
	infraS3 "resourcechassis/internal/infra/blob/s3"
)

type (
	// Driver identifies an object store backend.
	Driver = core.Driver
	// PutOptions configures an object write.
	PutOptions = core.PutOptions
	// Info describes stored object metadata.
	Info = core.Info
	// Store is the object store interface.
	Store = core.Store
	// S3Config configures the S3 backend.
	S3Config = infraS3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists   = core.ErrExists
	ErrNotFound = core.ErrNotFound
)

// Environment variables read by Open.
const (
	EnvDriver      = "CHASSIS_AUDIT_ARCHIVE_DRIVER"
	EnvFSRoot      = "CHASSIS_AUDIT_ARCHIVE_FS_ROOT"
	EnvS3Bucket    = "CHASSIS_AUDIT_ARCHIVE_S3_BUCKET"
	EnvS3Region    = "CHASSIS_AUDIT_ARCHIVE_S3_REGION"
	EnvS3Endpoint  = "CHASSIS_AUDIT_ARCHIVE_S3_ENDPOINT"
	EnvS3PathStyle = "CHASSIS_AUDIT_ARCHIVE_S3_PATH_STYLE"
)

// NewFilesystem returns a store rooted at root.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewMemory returns a process-local store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return infraS3.New(ctx, cfg) }

// Open selects a store from the environment. An unset driver disables the
// archive and returns a nil store.
//
//	CHASSIS_AUDIT_ARCHIVE_DRIVER: fs|s3|memory (unset: disabled)
//	CHASSIS_AUDIT_ARCHIVE_FS_ROOT: directory when driver=fs (default ./audit-archive)
//	CHASSIS_AUDIT_ARCHIVE_S3_BUCKET: bucket when driver=s3 (required)
//	CHASSIS_AUDIT_ARCHIVE_S3_REGION: default us-east-1
//	CHASSIS_AUDIT_ARCHIVE_S3_ENDPOINT: custom endpoint such as MinIO
//	CHASSIS_AUDIT_ARCHIVE_S3_PATH_STYLE: true|false
func Open(ctx context.Context) (Store, error) {
	driver := strings.TrimSpace(os.Getenv(EnvDriver))
	switch Driver(driver) {
	case "":
		return nil, nil
	case DriverFilesystem:
		return NewFilesystem(os.Getenv(EnvFSRoot))
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		bucket := os.Getenv(EnvS3Bucket)
		if bucket == "" {
			return nil, fmt.Errorf("%s required for s3 driver", EnvS3Bucket)
		}
		return NewS3(ctx, S3Config{
			Bucket:    bucket,
			Region:    os.Getenv(EnvS3Region),
			Endpoint:  os.Getenv(EnvS3Endpoint),
			PathStyle: strings.EqualFold(os.Getenv(EnvS3PathStyle), "true"),
		})
	default:
		return nil, fmt.Errorf("unknown audit archive driver %s", driver)
	}
}
