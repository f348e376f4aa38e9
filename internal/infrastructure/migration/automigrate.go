package migration

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/skyguide-inc/skyguide/internal/infrastructure/persistence/models"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

// AutoMigrateModels lists every table the application owns.
func AutoMigrateModels() []any {
	return []any{
		&models.UserModel{},
		&models.ProfileModel{},
		&models.SessionModel{},
	}
}

// GormAutoMigrateStrategy derives the schema from the models. Used in
// development and tests only.
type GormAutoMigrateStrategy struct {
	logger logger.Interface
}

func NewGormAutoMigrateStrategy(log logger.Interface) *GormAutoMigrateStrategy {
	return &GormAutoMigrateStrategy{logger: log.With("component", "migration.automigrate")}
}

func (s *GormAutoMigrateStrategy) GetName() string {
	return "gorm_auto_migrate"
}

func (s *GormAutoMigrateStrategy) Migrate(db *gorm.DB, models ...any) error {
	if len(models) == 0 {
		models = AutoMigrateModels()
	}
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	s.logger.Infow("auto migrate completed", "models", len(models))
	return nil
}
