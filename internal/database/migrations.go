package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/civitaslab/docregister/internal/register"
)

const migrationNormalizeApprovalLists = "2026-08-12_normalize_approval_lists"

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
		{name: migrationNormalizeApprovalLists, apply: normalizeApprovalLists},
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
			return err
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

// normalizeApprovalLists rewrites approval lists imported from the legacy
// register, which stored them as raw JSON arrays and could accumulate
// duplicate voter entries. Decoding through the set model collapses the
// duplicates; statuses are left untouched because validation never reverts.
func normalizeApprovalLists(db *gorm.DB) error {
	var docs []register.Document
	if err := db.Select("id", "approvers").Find(&docs).Error; err != nil {
		return err
	}

	for _, doc := range docs {
		approvers, err := doc.Approvers()
		if err != nil {
			return err
		}
		normalized, err := register.EncodeApprovers(approvers)
		if err != nil {
			return err
		}
		if normalized == doc.ApproversJSON {
			continue
		}
		err = db.Model(&register.Document{}).
			Where("id = ?", doc.ID).
			Update("approvers", normalized).Error
		if err != nil {
			return err
		}
	}
	return nil
}
