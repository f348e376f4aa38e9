package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/skyguide-inc/skyguide/internal/shared/config"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// Every pooled connection to :memory: is a separate database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestGooseStrategy_UpAndDown(t *testing.T) {
	db := setupTestDB(t)

	strategy, err := NewGooseStrategy("sqlite", logger.Nop())
	require.NoError(t, err)

	require.NoError(t, strategy.Migrate(db))
	assert.True(t, db.Migrator().HasTable("sessions"))
	assert.True(t, db.Migrator().HasTable("users"))
	assert.True(t, db.Migrator().HasTable("profiles"))

	version, err := strategy.GetVersion(db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	require.NoError(t, strategy.MigrateDown(db, 1))
	assert.False(t, db.Migrator().HasTable("sessions"))
	assert.True(t, db.Migrator().HasTable("users"))
}

func TestNewGooseStrategy_UnknownDriver(t *testing.T) {
	_, err := NewGooseStrategy("postgres", logger.Nop())
	assert.Error(t, err)
}

func TestNewManager_SelectsStrategy(t *testing.T) {
	m, err := NewManager(&config.DatabaseConfig{Driver: "sqlite", AutoMigrate: true}, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "gorm_auto_migrate", m.Strategy().GetName())

	m, err = NewManager(&config.DatabaseConfig{Driver: "mysql"}, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "goose", m.Strategy().GetName())
}

func TestManager_AutoMigrate(t *testing.T) {
	db := setupTestDB(t)
	m := NewManagerWithStrategy(NewGormAutoMigrateStrategy(logger.Nop()), logger.Nop())

	require.NoError(t, m.Migrate(db))
	assert.True(t, db.Migrator().HasTable("sessions"))
	assert.True(t, db.Migrator().HasIndex("sessions", "idx_sessions_user_status"))
}
