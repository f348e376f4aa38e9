// Package migration applies the database schema, either from versioned goose
// scripts or from gorm AutoMigrate.
package migration

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/skyguide-inc/skyguide/internal/shared/config"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

type Strategy interface {
	Migrate(db *gorm.DB, models ...any) error
	GetName() string
}

type Manager struct {
	strategy Strategy
	logger   logger.Interface
}

// NewManager picks AutoMigrate when cfg.AutoMigrate is set and goose otherwise.
func NewManager(cfg *config.DatabaseConfig, log logger.Interface) (*Manager, error) {
	var strategy Strategy
	if cfg.AutoMigrate {
		strategy = NewGormAutoMigrateStrategy(log)
	} else {
		goose, err := NewGooseStrategy(cfg.Driver, log)
		if err != nil {
			return nil, err
		}
		strategy = goose
	}
	return NewManagerWithStrategy(strategy, log), nil
}

func NewManagerWithStrategy(strategy Strategy, log logger.Interface) *Manager {
	return &Manager{strategy: strategy, logger: log.With("component", "migration.manager")}
}

func (m *Manager) Migrate(db *gorm.DB) error {
	m.logger.Infow("starting database migration", "strategy", m.strategy.GetName())

	if err := m.strategy.Migrate(db); err != nil {
		m.logger.Errorw("migration failed", "strategy", m.strategy.GetName(), "error", err)
		return fmt.Errorf("migration failed with strategy %s: %w", m.strategy.GetName(), err)
	}
	return nil
}

func (m *Manager) Strategy() Strategy {
	return m.strategy
}
