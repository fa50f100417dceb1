/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of recorded rotation activity.
type AuditAction string

const (
	AuditActionCommand       AuditAction = "rotation.command"
	AuditActionHealthFailure AuditAction = "health.failure"
	AuditActionVoteResolved  AuditAction = "vote.resolved"
)

// ValidAuditAction reports whether a is a known action.
func ValidAuditAction(a AuditAction) bool {
	switch a {
	case AuditActionCommand, AuditActionHealthFailure, AuditActionVoteResolved:
		return true
	}
	return false
}

// AuditLog is one entry of the rotation history: an operator command, a playback
// failure or a vote outcome.
type AuditLog struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Timestamp time.Time      `gorm:"index:idx_audit_timestamp;not null" json:"timestamp"`
	Actor     string         `gorm:"type:varchar(128)" json:"actor,omitempty"` // token name; empty for engine events
	Action    AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null" json:"action"`
	SourceID  string         `gorm:"type:varchar(128);index:idx_audit_source" json:"source_id,omitempty"`
	Details   map[string]any `gorm:"type:text;serializer:json" json:"details"`
	IPAddress string         `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	UserAgent string         `gorm:"type:varchar(512)" json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"-"`
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
