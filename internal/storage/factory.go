package storage

import (
	"fmt"

	"github.com/lightshow/fxrunner/internal/config"
	"github.com/lightshow/fxrunner/internal/database"
	apistore "github.com/lightshow/fxrunner/internal/storage/api"
	"github.com/lightshow/fxrunner/internal/storage/file"
	gormstore "github.com/lightshow/fxrunner/internal/storage/gorm"
	"github.com/lightshow/fxrunner/internal/storage/memory"
	"github.com/rs/zerolog"
)

const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMemory   = "memory"
	TypeFile     = "file"
	TypeAPI      = "api"
)

var (
	_ Backend = (*gormstore.Backend)(nil)
	_ Backend = (*memory.Backend)(nil)
	_ Backend = (*file.Backend)(nil)
	_ Backend = (*apistore.Backend)(nil)
)

// New creates a storage backend based on configuration. The backend still
// needs Init before use.
func New(cfg config.StorageConfig, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case TypeSQLite, TypePostgres:
		return gormstore.New(gormstore.Dependencies{
			Manager: database.NewManager(log),
			Config:  cfg,
			Logger:  log,
		}), nil
	case TypeMemory:
		return memory.New(), nil
	case TypeFile:
		return file.New(cfg.File.Path), nil
	case TypeAPI:
		return apistore.New(cfg.API), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
