/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/camrotator/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Source{},
		&models.RotationCheckpoint{},
		&models.CooldownRecord{},
		&models.AuditLog{},
	); err != nil {
		return err
	}

	if err := normalizeSourceKinds(database); err != nil {
		return err
	}
	return nil
}

// normalizeSourceKinds rewrites catalog rows imported with loose kind spellings
// ("hls", "youtube", "image") to the canonical kind names.
func normalizeSourceKinds(database *gorm.DB) error {
	var sources []models.Source
	if err := database.Select("id", "kind").Find(&sources).Error; err != nil {
		return fmt.Errorf("normalize source kinds query: %w", err)
	}

	for _, src := range sources {
		kind := models.ParseSourceKind(string(src.Kind))
		if kind == src.Kind {
			continue
		}
		if err := database.Model(&models.Source{}).
			Where("id = ?", src.ID).
			Update("kind", kind).Error; err != nil {
			return fmt.Errorf("normalize kind of source %s: %w", src.ID, err)
		}
	}
	return nil
}
