// Package storage provides object storage for rendered SVG documents,
// backed by the local filesystem or Tencent Cloud COS.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/flamegen/pkg/config"
)

// ErrObjectNotFound is returned when no object exists at the given key.
var ErrObjectNotFound = errors.New("object not found")

// Store defines object storage operations for rendered graphs.
type Store interface {
	// Put writes the data from reader to the specified key.
	Put(ctx context.Context, key string, reader io.Reader) error

	// Get opens the object at the specified key for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at the specified key. Removing a
	// missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns the location of the object (a filesystem path for
	// local storage, a public URL for COS).
	URL(key string) string
}

// Backend identifies a storage implementation.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendCOS   Backend = "cos"
)

// NewStore creates a Store based on the configuration.
func NewStore(cfg *config.StorageConfig) (Store, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch Backend(cfg.Type) {
	case BackendCOS:
		return NewCOSStore(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return NewLocalStore(cfg.LocalPath)
	}
}

// ValidateConfig validates the storage configuration.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return fmt.Errorf("storage config is nil")
	}

	backend := Backend(cfg.Type)

	// Empty type defaults to local
	if backend == "" {
		backend = BackendLocal
	}

	switch backend {
	case BackendLocal:
		if cfg.LocalPath == "" {
			return fmt.Errorf("local storage path is required")
		}
	case BackendCOS:
		if cfg.Bucket == "" {
			return fmt.Errorf("COS bucket is required")
		}
		if cfg.Region == "" {
			return fmt.Errorf("COS region is required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return fmt.Errorf("COS credentials are required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}

	return nil
}
