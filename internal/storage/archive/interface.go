// Package archive keeps backtest results on local disk or in S3-compatible
// object storage.
package archive

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("archive: object not found")

// Storage is a flat key/value object store. Keys use forward slashes.
type Storage interface {
	// Write stores data at key, replacing any existing object
	Write(ctx context.Context, key string, data []byte) error

	// Read retrieves the object at key, or ErrNotFound
	Read(ctx context.Context, key string) ([]byte, error)

	// List returns all keys under prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the object at key
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored at key
	Exists(ctx context.Context, key string) (bool, error)
}

// Config selects and configures a backend
type Config struct {
	// Type is "local" or "s3"
	Type string   `mapstructure:"type"`
	Path string   `mapstructure:"path"`
	S3   S3Config `mapstructure:"s3"`
}

// New builds the backend named by cfg.Type
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		if cfg.Path == "" {
			return nil, fmt.Errorf("archive: local backend needs a path")
		}
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(cfg.S3)
	default:
		return nil, fmt.Errorf("archive: unknown backend %q", cfg.Type)
	}
}
