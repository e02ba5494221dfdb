// Package gormstore reads topology and sequences from a postgres or sqlite
// database through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/lightshow/fxrunner/internal/config"
	"github.com/lightshow/fxrunner/internal/database"
	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/internal/model"
	"github.com/lightshow/fxrunner/internal/model/convert"
	"github.com/lightshow/fxrunner/internal/sequence"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errNotInitialized = errors.New("storage backend not initialized")

// byTimestamp quotes the column, timestamp being a type name in postgres.
var byTimestamp = clause.OrderBy{Columns: []clause.OrderByColumn{
	{Column: clause.Column{Name: "timestamp"}},
	{Column: clause.Column{Name: "id"}},
}}

// Dependencies holds all dependencies for the gorm backend
type Dependencies struct {
	// Manager opens the database on Init. Ignored when DB is set.
	Manager *database.Manager
	Config  config.StorageConfig
	// DB uses an already open connection.
	DB     *gorm.DB
	Logger zerolog.Logger
}

// Backend implements storage.Backend on a gorm connection.
type Backend struct {
	deps Dependencies
	db   *gorm.DB
}

// New creates a new gorm backend
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// Init connects if needed and migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB != nil {
		b.db = b.deps.DB
		return database.Migrate(b.db)
	}
	if b.deps.Manager == nil {
		return fmt.Errorf("gorm backend needs a DB or a database manager")
	}
	if err := b.deps.Manager.Connect(b.deps.Config); err != nil {
		return err
	}
	if err := b.deps.Manager.Setup(); err != nil {
		return err
	}
	b.db = b.deps.Manager.DB
	return nil
}

// Close releases the connection when the backend opened it.
func (b *Backend) Close() error {
	if b.deps.DB == nil && b.deps.Manager != nil {
		return b.deps.Manager.Close()
	}
	return nil
}

// FindByTrack returns the track's sequence ordered by timestamp then id.
func (b *Backend) FindByTrack(ctx context.Context, trackURI string) ([]sequence.Event, error) {
	if b.db == nil {
		return nil, fmt.Errorf("find sequence: %w", errNotInitialized)
	}

	var rows []model.LightsPredefinedEffect
	err := b.db.WithContext(ctx).
		Preload("Groups", func(db *gorm.DB) *gorm.DB { return db.Order("lights_groups.id") }).
		Where("track_uri = ?", trackURI).
		Order(byTimestamp).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find sequence for %s: %w", trackURI, err)
	}

	b.deps.Logger.Debug().Str("track", trackURI).Int("events", len(rows)).Msg("Fetched sequence")
	return convert.EffectsToEvents(rows), nil
}

// Topology reads the full fixture library and group layout.
func (b *Backend) Topology(ctx context.Context) (model.Topology, error) {
	if b.db == nil {
		return model.Topology{}, fmt.Errorf("load topology: %w", errNotInitialized)
	}

	var t model.Topology
	db := b.db.WithContext(ctx)
	if err := db.Order("id").Find(&t.Pars).Error; err != nil {
		return t, fmt.Errorf("load pars: %w", err)
	}
	if err := db.Order("id").Find(&t.MovingHeadRgbs).Error; err != nil {
		return t, fmt.Errorf("load moving head rgbs: %w", err)
	}
	if err := db.Preload("WheelValues").Order("id").Find(&t.MovingHeadWheels).Error; err != nil {
		return t, fmt.Errorf("load moving head wheels: %w", err)
	}
	if err := db.Preload("Fixtures").Order("id").Find(&t.Groups).Error; err != nil {
		return t, fmt.Errorf("load groups: %w", err)
	}
	return t, nil
}

// LoadGroups builds runtime groups from the stored topology.
func (b *Backend) LoadGroups(ctx context.Context, opts ...fixture.Option) ([]*fixture.Group, error) {
	t, err := b.Topology(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := convert.TopologyToRuntime(t, opts...)
	if err != nil {
		return nil, err
	}
	b.deps.Logger.Info().Int("groups", len(groups)).Msg("Loaded topology")
	return groups, nil
}

// Seed writes a topology and sequence rows in one transaction. Rows with an
// existing primary key are updated in place.
func (b *Backend) Seed(ctx context.Context, t model.Topology, effects []model.LightsPredefinedEffect) error {
	if b.db == nil {
		return fmt.Errorf("seed: %w", errNotInitialized)
	}

	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{UpdateAll: true})
		if len(t.Pars) > 0 {
			if err := upsert.Create(&t.Pars).Error; err != nil {
				return fmt.Errorf("seed pars: %w", err)
			}
		}
		if len(t.MovingHeadRgbs) > 0 {
			if err := upsert.Create(&t.MovingHeadRgbs).Error; err != nil {
				return fmt.Errorf("seed moving head rgbs: %w", err)
			}
		}
		if len(t.MovingHeadWheels) > 0 {
			if err := upsert.Create(&t.MovingHeadWheels).Error; err != nil {
				return fmt.Errorf("seed moving head wheels: %w", err)
			}
		}
		if len(t.Groups) > 0 {
			if err := upsert.Create(&t.Groups).Error; err != nil {
				return fmt.Errorf("seed groups: %w", err)
			}
		}
		if len(effects) > 0 {
			if err := upsert.Omit("Groups.*").Create(&effects).Error; err != nil {
				return fmt.Errorf("seed effects: %w", err)
			}
		}
		b.deps.Logger.Info().
			Int("groups", len(t.Groups)).
			Int("effects", len(effects)).
			Msg("Seeded database")
		return nil
	})
}
