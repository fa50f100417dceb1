/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/camrotator/internal/catalog"
	"github.com/friendsincode/camrotator/internal/config"
	"github.com/friendsincode/camrotator/internal/events"
	"github.com/friendsincode/camrotator/internal/filter"
	"github.com/friendsincode/camrotator/internal/health"
	"github.com/friendsincode/camrotator/internal/models"
	"github.com/friendsincode/camrotator/internal/rotation"
	"github.com/friendsincode/camrotator/internal/vote"
	"github.com/friendsincode/camrotator/internal/webhooks"
)

// RotationConfig maps process configuration onto the scheduler tunables. Values
// out of range are clamped, not rejected.
func RotationConfig(cfg *config.Config) rotation.Config {
	rc := rotation.DefaultConfig()
	rc.RoundLength = cfg.RoundLength
	rc.ImageRoundLength = cfg.ImageRoundLength
	rc.AdvanceCooldown = cfg.AdvanceCooldown
	rc.FailureGrace = cfg.FailureGrace
	rc.HeartbeatInterval = cfg.HeartbeatInterval
	rc.AutoSkip = cfg.AutoSkip
	rc.Mode = filter.ParseMode(cfg.PlaybackMode)
	rc.Vote = vote.Config{
		Enabled:    cfg.VoteEnabled,
		Window:     cfg.VoteWindow,
		VoteAt:     cfg.VoteAt,
		Lead:       cfg.VoteLead,
		UI:         cfg.VoteUI,
		StayLength: cfg.VoteStay,
	}
	rc.Health = health.Config{
		StartTimeout: cfg.StartTimeout,
		StallTimeout: cfg.StallTimeout,
		MaxStalls:    cfg.MaxStalls,
		AutoSkip:     cfg.AutoSkip,
	}
	rc.Cooldown = health.CooldownConfig{Base: cfg.CooldownBase, Cap: cfg.CooldownCap}
	return rc.Clamp()
}

func webhookConfig(cfg *config.Config) webhooks.Config {
	wc := webhooks.Config{URLs: cfg.WebhookURLs, Secret: cfg.WebhookSecret}
	for _, name := range cfg.WebhookEvents {
		wc.Events = append(wc.Events, events.EventType(name))
	}
	return wc
}

// CatalogLoader is the part of the store that holds the catalog table.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) ([]models.Source, error)
}

// LoadCatalog reads the catalog file when one is configured and the catalog table
// otherwise. Problems that leave a source unplayable are logged, not returned.
func LoadCatalog(ctx context.Context, cfg *config.Config, loader CatalogLoader, logger zerolog.Logger) ([]models.Source, error) {
	var (
		sources []models.Source
		err     error
		origin  string
	)
	if cfg.CatalogFile != "" {
		origin = cfg.CatalogFile
		sources, err = catalog.LoadFile(cfg.CatalogFile)
	} else {
		origin = "database"
		sources, err = loader.LoadCatalog(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog from %s: %w", origin, err)
	}

	for _, warn := range catalog.Warnings(sources) {
		logger.Warn().Str("catalog", origin).Msg(warn)
	}
	logger.Info().Str("catalog", origin).Int("sources", len(sources)).Msg("catalog loaded")
	return sources, nil
}
