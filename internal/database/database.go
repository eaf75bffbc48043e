package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/config"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/contents"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/messaging"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/profiles"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the configured database and performs schema migrations.
func Open(driver, dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	var dialector gorm.Dialector
	switch driver {
	case config.DatabaseDriverSQLite:
		dialector = sqlite.Open(dsn)
	case config.DatabaseDriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, err
	}

	if driver == config.DatabaseDriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", driver))
	}

	return db, nil
}

// Migrate creates the schema and applies the recorded data migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(
		&users.User{},
		&users.AdminUser{},
		&users.RevokedToken{},
		&profiles.Profile{},
		&messaging.Conversation{},
		&messaging.Participant{},
		&messaging.Message{},
		&contents.Content{},
		&migrationRecord{},
	); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
