/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/camrotator/internal/config"
	"github.com/friendsincode/camrotator/internal/db"
	"github.com/friendsincode/camrotator/internal/health"
	"github.com/friendsincode/camrotator/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Connect(&config.Config{DBBackend: config.DatabaseSQLite, DBDSN: "file::memory:"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(database) })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(database, zerolog.Nop())
}

func TestImportAndLoadCatalog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []models.Source{
		{ID: "harbor", Kind: models.SourceKindSegmentedStream, Title: "Harbor"},
		{ID: "lobby", Kind: models.SourceKindEmbeddedPlayer, Tags: []string{"indoor"}},
		{ID: "roof", Kind: models.SourceKindStillImage, MaxSeconds: 30},
	}
	if err := s.ImportCatalog(ctx, first); err != nil {
		t.Fatalf("ImportCatalog() error = %v", err)
	}

	got, err := s.LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("LoadCatalog() returned %d sources, want 3", len(got))
	}
	for i, want := range []string{"harbor", "lobby", "roof"} {
		if got[i].ID != want || got[i].Position != i {
			t.Errorf("source %d = %s@%d, want %s@%d", i, got[i].ID, got[i].Position, want, i)
		}
	}
	if len(got[1].Tags) != 1 || got[1].Tags[0] != "indoor" {
		t.Errorf("tags = %v, want [indoor]", got[1].Tags)
	}

	// a second import replaces the table and its order
	if err := s.ImportCatalog(ctx, []models.Source{first[2], first[0]}); err != nil {
		t.Fatalf("second ImportCatalog() error = %v", err)
	}
	got, _ = s.LoadCatalog(ctx)
	if len(got) != 2 || got[0].ID != "roof" || got[1].ID != "harbor" {
		t.Errorf("after reimport = %v", got)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, found, err := s.LoadCheckpoint(ctx); err != nil || found {
		t.Fatalf("LoadCheckpoint() on empty db = %v, %v; want not found", found, err)
	}

	cp := models.RotationCheckpoint{
		SourceID:         "lobby",
		Playing:          true,
		RemainingSeconds: 42,
		SegmentSeconds:   300,
		AutoSkip:         true,
		Mode:             "streams_only",
		Banned:           []string{"roof"},
	}
	if err := s.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}
	cp.RemainingSeconds = 10
	cp.Banned = nil
	if err := s.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("second SaveCheckpoint() error = %v", err)
	}

	got, found, err := s.LoadCheckpoint(ctx)
	if err != nil || !found {
		t.Fatalf("LoadCheckpoint() = %v, %v", found, err)
	}
	if got.SourceID != "lobby" || got.RemainingSeconds != 10 || got.Mode != "streams_only" {
		t.Errorf("checkpoint = %+v", got)
	}
	if len(got.Banned) != 0 {
		t.Errorf("Banned = %v, want empty after overwrite", got.Banned)
	}

	var rows int64
	s.db.Model(&models.RotationCheckpoint{}).Count(&rows)
	if rows != 1 {
		t.Errorf("checkpoint rows = %d, want 1", rows)
	}
}

func TestCooldownsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	until := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []health.CooldownEntry{
		{SourceID: "harbor", FailCount: 2, Until: until, LastReason: "stall_limit_buffering"},
		{SourceID: "lobby", FailCount: 1, Until: until.Add(time.Hour), LastReason: "embedded_player_start_timeout"},
	}
	if err := s.SaveCooldowns(ctx, entries); err != nil {
		t.Fatalf("SaveCooldowns() error = %v", err)
	}
	got, err := s.LoadCooldowns(ctx)
	if err != nil {
		t.Fatalf("LoadCooldowns() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("LoadCooldowns() = %d entries, want 2", len(got))
	}
	if got[0].SourceID != "harbor" || got[0].FailCount != 2 || !got[0].Until.Equal(until) {
		t.Errorf("entry = %+v", got[0])
	}

	if err := s.SaveCooldowns(ctx, nil); err != nil {
		t.Fatalf("SaveCooldowns(nil) error = %v", err)
	}
	if got, _ := s.LoadCooldowns(ctx); len(got) != 0 {
		t.Errorf("cooldowns after clear = %v", got)
	}
}
