// Package storage provides small-object blob storage.
//
// Two implementations exist:
//   - LocalStorage: files under a base directory, written atomically
//   - R2Storage: Cloudflare R2 through the S3 API
//
// Objects are whole values. Put replaces any previous object at the key, so
// concurrent writers resolve to the last one to finish.
package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// Storage stores opaque objects by key.
type Storage interface {
	// Put stores data at key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error

	// Get returns the object at key. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object exists at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is the MIME type recorded with the object, when the
	// backend records one. Defaults to application/json.
	ContentType string

	// MaxSize rejects objects larger than this many bytes with ErrTooLarge.
	// Zero means no limit.
	MaxSize int64
}

func (o PutOptions) contentType() string {
	if o.ContentType == "" {
		return "application/json"
	}
	return o.ContentType
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory where objects are stored.
	// Example: "./data/drafts"
	BasePath string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// Region is required by the SDK. R2 accepts "auto".
	Region string
}

const (
	// ProviderLocal identifies the local filesystem storage provider.
	ProviderLocal = "local"

	// ProviderR2 identifies the Cloudflare R2 storage provider.
	ProviderR2 = "r2"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	Local    LocalConfig
	R2       R2Config
}

// New creates the Storage named by cfg.Provider.
func New(cfg Config, logger *slog.Logger) (Storage, error) {
	switch cfg.Provider {
	case ProviderLocal:
		s, err := NewLocalStorage(cfg.Local, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case ProviderR2:
		s, err := NewR2Storage(cfg.R2, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}
