package storage

import (
	"context"
	"fmt"

	"github.com/jobhive/cv-insight/internal/config"
)

// Storage abstracts where uploaded CVs live. Keys are server-generated and
// never derived from client input.
type Storage interface {
	Save(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Healthy(ctx context.Context) error
}

// NewFromConfig picks the backend by STORAGE_DRIVER.
func NewFromConfig(cfg *config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStorage(cfg.LocalDir)
	case "s3":
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
