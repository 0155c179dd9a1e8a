package storage

import (
	"context"
	"fmt"

	"alcyxob/storage-gateway/internal/config"

	"github.com/charmbracelet/log"
)

// New builds the Backend selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (Backend, error) {
	switch cfg.Driver {
	case config.DriverS3:
		return NewS3Storage(ctx, cfg, logger)
	case config.DriverMinio:
		return NewMinioStorage(cfg, logger)
	case config.DriverMemory:
		logger.Warn("Using in-memory storage backend, objects are lost on restart")
		return NewMemoryStorage(cfg.PublicURL), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
