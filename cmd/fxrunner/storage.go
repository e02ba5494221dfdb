package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lightshow/fxrunner/internal/config"
	"github.com/lightshow/fxrunner/internal/database"
	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/internal/storage"
	"github.com/lightshow/fxrunner/internal/storage/file"
	gormstore "github.com/lightshow/fxrunner/internal/storage/gorm"
)

// initStorage opens the configured backend and reads the venue topology.
func initStorage(ctx context.Context) ([]*fixture.Group, error) {
	storageCfg := config.GetStorageConfig()

	backend, err := storage.New(storageCfg, SlogManager.Zerolog("storage"))
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "type", storageCfg.Type, "error", err)
		return nil, err
	}
	storageBackend = backend
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)

	groups, err := storageBackend.LoadGroups(ctx)
	if err != nil {
		storageBackend.Close()
		return nil, fmt.Errorf("loading topology: %w", err)
	}
	return groups, nil
}

// seedDatabase imports a YAML show file into the configured sql database.
func seedDatabase(ctx context.Context, path string) error {
	storageCfg := config.GetStorageConfig()
	switch storageCfg.Type {
	case storage.TypeSQLite, storage.TypePostgres:
	default:
		return fmt.Errorf("seeding needs a database store, storage.type is %q", storageCfg.Type)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := file.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	top, effects, err := doc.Models()
	if err != nil {
		return fmt.Errorf("converting %s: %w", path, err)
	}

	log := SlogManager.Zerolog("seed")
	backend := gormstore.New(gormstore.Dependencies{
		Manager: database.NewManager(log),
		Config:  storageCfg,
		Logger:  log,
	})
	if err := backend.Init(); err != nil {
		return err
	}
	defer backend.Close()

	if err := backend.Seed(ctx, top, effects); err != nil {
		return err
	}
	Logger.Info("Database seeded", "path", path, "groups", len(top.Groups), "effects", len(effects))
	return nil
}
