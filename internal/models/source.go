/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strings"
	"time"
)

// SourceKind tells the player which element renders a source.
type SourceKind string

const (
	SourceKindEmbeddedPlayer  SourceKind = "embedded_player"
	SourceKindSegmentedStream SourceKind = "segmented_stream"
	SourceKindStillImage      SourceKind = "still_image"
	SourceKindUnsupported     SourceKind = "unsupported"
)

// ParseSourceKind maps loose catalog spellings onto a SourceKind.
// Anything unrecognised is unsupported rather than an error.
func ParseSourceKind(s string) SourceKind {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "embedded_player", "embed", "youtube":
		return SourceKindEmbeddedPlayer
	case "segmented_stream", "hls", "stream":
		return SourceKindSegmentedStream
	case "still_image", "image", "snapshot":
		return SourceKindStillImage
	default:
		return SourceKindUnsupported
	}
}

// Playable reports whether the player knows how to render the kind.
func (k SourceKind) Playable() bool {
	switch k {
	case SourceKindEmbeddedPlayer, SourceKindSegmentedStream, SourceKindStillImage:
		return true
	}
	return false
}

// Source is one rotation candidate (a live cam). The core only references it by ID.
type Source struct {
	ID         string     `gorm:"type:varchar(128);primaryKey" json:"id" yaml:"id"`
	Kind       SourceKind `gorm:"type:varchar(32);index" json:"kind" yaml:"kind"`
	MaxSeconds int        `gorm:"type:int;default:0" json:"max_seconds,omitempty" yaml:"max_seconds,omitempty"`

	// Display metadata
	Title   string   `gorm:"type:varchar(255)" json:"title,omitempty" yaml:"title,omitempty"`
	Channel string   `gorm:"type:varchar(255)" json:"channel,omitempty" yaml:"channel,omitempty"`
	URL     string   `gorm:"type:text" json:"url,omitempty" yaml:"url,omitempty"`
	Tags    []string `gorm:"serializer:json" json:"tags,omitempty" yaml:"tags,omitempty"`

	Position  int       `gorm:"type:int;index" json:"position" yaml:"-"`
	CreatedAt time.Time `json:"-" yaml:"-"`
	UpdatedAt time.Time `json:"-" yaml:"-"`
}

// TableName overrides for GORM.
func (Source) TableName() string {
	return "catalog_sources"
}
