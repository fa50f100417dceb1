/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package filter turns the catalog into the list of sources eligible for rotation.
package filter

import (
	"strings"
	"time"

	"github.com/friendsincode/camrotator/internal/models"
)

// Mode restricts which source kinds may rotate.
type Mode string

const (
	ModeMixed       Mode = "mixed"
	ModeAdFree      Mode = "ad_free"
	ModeStreamsOnly Mode = "streams_only"
)

// ParseMode clamps unknown values to ModeMixed.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAdFree:
		return ModeAdFree
	case ModeStreamsOnly:
		return ModeStreamsOnly
	default:
		return ModeMixed
	}
}

// Excludes reports whether the mode keeps kind out of rotation.
func (m Mode) Excludes(kind models.SourceKind) bool {
	switch m {
	case ModeAdFree:
		return kind == models.SourceKindEmbeddedPlayer
	case ModeStreamsOnly:
		return kind != models.SourceKindSegmentedStream
	}
	return false
}

// Tier records which fallback level produced a result.
type Tier int

const (
	TierEmpty Tier = iota
	TierFiltered
	TierBannedOnly
	TierRaw
)

func (t Tier) String() string {
	switch t {
	case TierFiltered:
		return "filtered"
	case TierBannedOnly:
		return "banned_only"
	case TierRaw:
		return "raw"
	default:
		return "empty"
	}
}

// CooldownView is the read-only side of the failover cache.
type CooldownView interface {
	CoolingDown(sourceID string, now time.Time) bool
}

// Options carries everything Select filters on.
type Options struct {
	Banned    map[string]struct{}
	Cooldowns CooldownView
	Mode      Mode
	Now       time.Time
}

// Result is the eligible list and the tier that produced it.
type Result struct {
	Sources []models.Source
	Tier    Tier
}

// Select returns the sources eligible for rotation. It never returns an empty list
// for a non-empty catalog: when every source is excluded it falls back to ignoring
// cooldowns and mode, and then to the raw catalog.
func Select(catalog []models.Source, opts Options) Result {
	if len(catalog) == 0 {
		return Result{Tier: TierEmpty}
	}

	full := make([]models.Source, 0, len(catalog))
	bannedOnly := make([]models.Source, 0, len(catalog))
	for _, src := range catalog {
		if isBanned(opts.Banned, src.ID) {
			continue
		}
		bannedOnly = append(bannedOnly, src)

		if !src.Kind.Playable() || opts.Mode.Excludes(src.Kind) {
			continue
		}
		if opts.Cooldowns != nil && opts.Cooldowns.CoolingDown(src.ID, opts.Now) {
			continue
		}
		full = append(full, src)
	}

	if len(full) > 0 {
		return Result{Sources: full, Tier: TierFiltered}
	}
	if len(bannedOnly) > 0 {
		return Result{Sources: bannedOnly, Tier: TierBannedOnly}
	}

	raw := make([]models.Source, len(catalog))
	copy(raw, catalog)
	return Result{Sources: raw, Tier: TierRaw}
}

// RemapIndex finds the source that was at prevIndex in prev inside next.
// It returns 0 when that source is gone or next is empty.
func RemapIndex(prev []models.Source, prevIndex int, next []models.Source) int {
	if prevIndex < 0 || prevIndex >= len(prev) {
		return 0
	}
	return IndexOf(next, prev[prevIndex].ID)
}

// IndexOf returns the position of id in list, or 0 when absent.
func IndexOf(list []models.Source, id string) int {
	if i, ok := Find(list, id); ok {
		return i
	}
	return 0
}

// Find returns the position of id in list.
func Find(list []models.Source, id string) (int, bool) {
	for i, src := range list {
		if src.ID == id {
			return i, true
		}
	}
	return 0, false
}

func isBanned(banned map[string]struct{}, id string) bool {
	if banned == nil {
		return false
	}
	_, ok := banned[id]
	return ok
}
