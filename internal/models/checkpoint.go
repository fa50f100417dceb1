/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// CheckpointID is the primary key of the only checkpoint row.
const CheckpointID = 1

// RotationCheckpoint is the last known rotation position. There is one row (ID=1).
type RotationCheckpoint struct {
	ID               uint   `gorm:"primaryKey"`
	SourceID         string `gorm:"type:varchar(128)"`
	Playing          bool
	RemainingSeconds int    `gorm:"type:int"`
	SegmentSeconds   int    `gorm:"type:int"`
	AutoSkip         bool
	Mode             string   `gorm:"type:varchar(32)"`
	Banned           []string `gorm:"serializer:json"`
	UpdatedAt        time.Time
}

// TableName overrides for GORM.
func (RotationCheckpoint) TableName() string {
	return "rotation_checkpoint"
}
