/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// CooldownRecord persists one failover cache entry so penalties survive restarts.
type CooldownRecord struct {
	SourceID   string    `gorm:"type:varchar(128);primaryKey"`
	FailCount  int       `gorm:"type:int"`
	Until      time.Time `gorm:"index"`
	LastReason string    `gorm:"type:varchar(255)"`
	UpdatedAt  time.Time
}

// TableName overrides for GORM.
func (CooldownRecord) TableName() string {
	return "source_cooldowns"
}
