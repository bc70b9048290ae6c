// Package storage provides the file storage backends used for license key
// files. A backend is selected once at startup from configuration; handlers
// only ever see the Storage interface.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Storage stores file content keyed by an opaque path string. The path
// returned by Save is the only handle callers may use for later operations.
type Storage interface {
	// Save persists the file content under a path derived from the owning
	// record ID and file name, and returns that path.
	Save(ctx context.Context, data []byte, fileName string, ownerID string) (string, error)

	// Get retrieves previously saved file content.
	Get(ctx context.Context, path string) ([]byte, error)

	// Delete removes a saved file.
	Delete(ctx context.Context, path string) error

	// Size returns the size in bytes of a saved file.
	Size(ctx context.Context, path string) (int64, error)
}

// ErrNotFound is returned when no file exists at the given path
var ErrNotFound = errors.New("file not found")

// Backend type tags, persisted alongside catalogue records
const (
	TypeLocal = "local"
	TypeS3    = "s3"
)

// Config for the file storage backend
type Config struct {
	Type string // "local" or "s3"

	// Local filesystem config
	LocalPath string

	// S3 config
	S3Bucket       string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3Endpoint     string // for S3-compatible services such as MinIO
	S3UsePathStyle bool
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:      TypeLocal,
		LocalPath: "./storage",
	}
}

// New constructs the backend selected by the configuration
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case TypeLocal:
		return NewLocalStorage(cfg.LocalPath)
	case TypeS3:
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
