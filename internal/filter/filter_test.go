/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package filter

import (
	"testing"
	"time"

	"github.com/friendsincode/camrotator/internal/models"
)

type fakeCooldowns map[string]time.Time

func (f fakeCooldowns) CoolingDown(id string, now time.Time) bool {
	until, ok := f[id]
	return ok && now.Before(until)
}

func testCatalog() []models.Source {
	return []models.Source{
		{ID: "a", Kind: models.SourceKindSegmentedStream},
		{ID: "b", Kind: models.SourceKindEmbeddedPlayer},
		{ID: "c", Kind: models.SourceKindStillImage},
		{ID: "d", Kind: models.SourceKindUnsupported},
	}
}

func ids(list []models.Source) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}

func equalIDs(got []models.Source, want ...string) bool {
	g := ids(got)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

func TestSelect(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		opts     Options
		wantIDs  []string
		wantTier Tier
	}{
		{"no exclusions drops unsupported", Options{Now: now}, []string{"a", "b", "c"}, TierFiltered},
		{"banned removed", Options{Now: now, Banned: map[string]struct{}{"b": {}}}, []string{"a", "c"}, TierFiltered},
		{"live cooldown removed", Options{Now: now, Cooldowns: fakeCooldowns{"a": now.Add(time.Minute)}}, []string{"b", "c"}, TierFiltered},
		{"expired cooldown kept", Options{Now: now, Cooldowns: fakeCooldowns{"a": now}}, []string{"a", "b", "c"}, TierFiltered},
		{"ad free drops embedded", Options{Now: now, Mode: ModeAdFree}, []string{"a", "c"}, TierFiltered},
		{"streams only", Options{Now: now, Mode: ModeStreamsOnly}, []string{"a"}, TierFiltered},
		{
			"everything cooling falls back to banned only",
			Options{Now: now, Banned: map[string]struct{}{"c": {}}, Cooldowns: fakeCooldowns{"a": now.Add(time.Hour), "b": now.Add(time.Hour)}},
			[]string{"a", "b", "d"},
			TierBannedOnly,
		},
		{
			"everything banned falls back to raw",
			Options{Now: now, Banned: map[string]struct{}{"a": {}, "b": {}, "c": {}, "d": {}}},
			[]string{"a", "b", "c", "d"},
			TierRaw,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Select(testCatalog(), tt.opts)
			if !equalIDs(res.Sources, tt.wantIDs...) {
				t.Errorf("Select() ids = %v, want %v", ids(res.Sources), tt.wantIDs)
			}
			if res.Tier != tt.wantTier {
				t.Errorf("Select() tier = %s, want %s", res.Tier, tt.wantTier)
			}
		})
	}
}

func TestSelectNeverEmpty(t *testing.T) {
	now := time.Now()
	all := map[string]struct{}{}
	cooling := fakeCooldowns{}
	for _, s := range testCatalog() {
		all[s.ID] = struct{}{}
		cooling[s.ID] = now.Add(time.Hour)
	}

	combos := []Options{
		{Now: now, Banned: all},
		{Now: now, Cooldowns: cooling},
		{Now: now, Banned: all, Cooldowns: cooling, Mode: ModeStreamsOnly},
		{Now: now, Mode: ModeStreamsOnly, Cooldowns: fakeCooldowns{"a": now.Add(time.Hour)}},
	}
	for size := 1; size <= len(testCatalog()); size++ {
		catalog := testCatalog()[:size]
		for i, opts := range combos {
			if res := Select(catalog, opts); len(res.Sources) == 0 {
				t.Fatalf("catalog size %d combo %d: Select returned empty list", size, i)
			}
		}
	}

	if res := Select(nil, Options{Now: now}); len(res.Sources) != 0 || res.Tier != TierEmpty {
		t.Fatalf("empty catalog: got %v tier %s", ids(res.Sources), res.Tier)
	}
}

func TestSelectDoesNotAliasCatalog(t *testing.T) {
	catalog := testCatalog()
	res := Select(catalog, Options{Banned: map[string]struct{}{"a": {}, "b": {}, "c": {}, "d": {}}})
	res.Sources[0].ID = "mutated"
	if catalog[0].ID != "a" {
		t.Fatal("raw fallback must copy the catalog")
	}
}

func TestRemapIndex(t *testing.T) {
	prev := testCatalog()[:3]
	next := []models.Source{prev[2], prev[0]}

	if got := RemapIndex(prev, 0, next); got != 1 {
		t.Errorf("RemapIndex(a) = %d, want 1", got)
	}
	if got := RemapIndex(prev, 2, next); got != 0 {
		t.Errorf("RemapIndex(c) = %d, want 0", got)
	}
	if got := RemapIndex(prev, 1, next); got != 0 {
		t.Errorf("RemapIndex(missing b) = %d, want 0", got)
	}
	if got := RemapIndex(prev, 7, next); got != 0 {
		t.Errorf("RemapIndex(out of range) = %d, want 0", got)
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"ad_free":      ModeAdFree,
		" STREAMS_ONLY": ModeStreamsOnly,
		"mixed":        ModeMixed,
		"bogus":        ModeMixed,
		"":             ModeMixed,
	}
	for in, want := range cases {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %s, want %s", in, got, want)
		}
	}
}
