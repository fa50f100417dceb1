/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/camrotator/internal/db"
	"github.com/friendsincode/camrotator/internal/health"
	"github.com/friendsincode/camrotator/internal/models"
)

// Store persists the catalog, the rotation checkpoint and the cooldown cache.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates a store on an open, migrated database.
func New(database *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     database,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// LoadCatalog returns the catalog in rotation order.
func (s *Store) LoadCatalog(ctx context.Context) ([]models.Source, error) {
	var sources []models.Source
	if err := s.db.WithContext(ctx).Order("position ASC, id ASC").Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return sources, nil
}

// ImportCatalog replaces the catalog table with sources, keeping their order.
func (s *Store) ImportCatalog(ctx context.Context, sources []models.Source) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Source{}).Error; err != nil {
			return fmt.Errorf("clear catalog: %w", err)
		}
		if len(sources) == 0 {
			return nil
		}
		rows := make([]models.Source, len(sources))
		for i, src := range sources {
			src.Position = i
			rows[i] = src
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("insert catalog: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int("sources", len(sources)).Msg("catalog imported")
	return nil
}

// SaveCheckpoint upserts the single checkpoint row.
func (s *Store) SaveCheckpoint(ctx context.Context, cp models.RotationCheckpoint) error {
	cp.ID = models.CheckpointID
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&cp).Error
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	db.UpdateConnectionMetrics(s.db)
	return nil
}

// LoadCheckpoint returns the stored checkpoint. found is false on a fresh database.
func (s *Store) LoadCheckpoint(ctx context.Context) (cp models.RotationCheckpoint, found bool, err error) {
	err = s.db.WithContext(ctx).First(&cp, models.CheckpointID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RotationCheckpoint{}, false, nil
	}
	if err != nil {
		return models.RotationCheckpoint{}, false, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, true, nil
}

// SaveCooldowns replaces the persisted cooldown cache with entries.
func (s *Store) SaveCooldowns(ctx context.Context, entries []health.CooldownEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.CooldownRecord{}).Error; err != nil {
			return fmt.Errorf("clear cooldowns: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		rows := make([]models.CooldownRecord, len(entries))
		for i, e := range entries {
			rows[i] = models.CooldownRecord{
				SourceID:   e.SourceID,
				FailCount:  e.FailCount,
				Until:      e.Until.UTC(),
				LastReason: e.LastReason,
			}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("save cooldowns: %w", err)
		}
		return nil
	})
}

// LoadCooldowns returns the persisted cooldown cache.
func (s *Store) LoadCooldowns(ctx context.Context) ([]health.CooldownEntry, error) {
	var rows []models.CooldownRecord
	if err := s.db.WithContext(ctx).Order("source_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load cooldowns: %w", err)
	}
	out := make([]health.CooldownEntry, len(rows))
	for i, r := range rows {
		out[i] = health.CooldownEntry{
			SourceID:   r.SourceID,
			FailCount:  r.FailCount,
			Until:      r.Until,
			LastReason: r.LastReason,
		}
	}
	return out, nil
}
