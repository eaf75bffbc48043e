package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/profiles"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeProfileLists = "2024-08-01_normalize_profile_lists"
	migrationNormalizeUserEmails   = "2024-08-15_normalize_user_emails"
)

var profileListColumns = []string{"interests", "gallery_a", "gallery_b"}

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeProfileLists, apply: normalizeProfileLists},
		{name: migrationNormalizeUserEmails, apply: normalizeUserEmails},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeProfileLists rewrites missing list columns to an empty JSON array.
func normalizeProfileLists(db *gorm.DB) error {
	for _, column := range profileListColumns {
		err := db.Model(&profiles.Profile{}).
			Where(fmt.Sprintf("%s IS NULL OR %s = ''", column, column)).
			UpdateColumn(column, "[]").Error
		if err != nil {
			return err
		}
	}
	return nil
}

func normalizeUserEmails(db *gorm.DB) error {
	return db.Model(&users.User{}).
		Where("email <> LOWER(TRIM(email))").
		UpdateColumn("email", gorm.Expr("LOWER(TRIM(email))")).Error
}
