/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"math"
	"testing"
	"time"
)

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("CAMROTATOR_DB_DSN", "file::memory:")
	t.Setenv("CAMROTATOR_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("CAMROTATOR_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Errorf("DBBackend = %q, want sqlite", cfg.DBBackend)
	}
	if cfg.JWTSigningKey != "supersecret" {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
	if cfg.EventBus != EventBusMemory || cfg.Distributed() {
		t.Errorf("EventBus = %q, want memory", cfg.EventBus)
	}
	if cfg.HTTPAddr() != "0.0.0.0:8080" {
		t.Errorf("HTTPAddr() = %q", cfg.HTTPAddr())
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CAMROTATOR_JWT_SIGNING_KEY", "supersecret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"round", cfg.RoundLength, 300 * time.Second},
		{"image round", cfg.ImageRoundLength, 20 * time.Second},
		{"vote window", cfg.VoteWindow, 60 * time.Second},
		{"vote at", cfg.VoteAt, 60 * time.Second},
		{"vote lead", cfg.VoteLead, 5 * time.Second},
		{"tick", cfg.TickInterval, 500 * time.Millisecond},
		{"checkpoint", cfg.CheckpointInterval, 15 * time.Second},
		{"start timeout", cfg.StartTimeout, 20 * time.Second},
		{"audit retention", cfg.AuditRetention, 30 * 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
	if !cfg.AutoSkip || !cfg.VoteEnabled {
		t.Errorf("AutoSkip = %v, VoteEnabled = %v; want both true", cfg.AutoSkip, cfg.VoteEnabled)
	}
}

func TestLoadDurations(t *testing.T) {
	t.Setenv("CAMROTATOR_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("CAMROTATOR_ROUND_LENGTH", "90")
	t.Setenv("CAMROTATOR_VOTE_WINDOW", "45s")
	t.Setenv("CAMROTATOR_STALL_TIMEOUT", "1.5")
	t.Setenv("CAMROTATOR_VOTE_LEAD", "soon")
	t.Setenv("CAMROTATOR_COOLDOWN_CAP", "1e30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RoundLength != 90*time.Second {
		t.Errorf("RoundLength = %v, want 90s", cfg.RoundLength)
	}
	if cfg.VoteWindow != 45*time.Second {
		t.Errorf("VoteWindow = %v, want 45s", cfg.VoteWindow)
	}
	if cfg.StallTimeout != 1500*time.Millisecond {
		t.Errorf("StallTimeout = %v, want 1.5s", cfg.StallTimeout)
	}
	if cfg.VoteLead != 5*time.Second {
		t.Errorf("VoteLead = %v, want default for unparsable value", cfg.VoteLead)
	}
	if cfg.CooldownCap != time.Duration(math.MaxInt64) {
		t.Errorf("CooldownCap = %v, want saturated maximum", cfg.CooldownCap)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing jwt key", map[string]string{"CAMROTATOR_JWT_SIGNING_KEY": ""}},
		{"bad db backend", map[string]string{"CAMROTATOR_DB_BACKEND": "oracle"}},
		{"bad event bus", map[string]string{"CAMROTATOR_EVENTBUS": "kafka"}},
		{"election without shared bus", map[string]string{"CAMROTATOR_LEADER_ELECTION_ENABLED": "true"}},
		{"short production key", map[string]string{"CAMROTATOR_ENV": "production"}},
		{"webhook without scheme", map[string]string{"CAMROTATOR_WEBHOOK_URLS": "hooks.example.com/rotation"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CAMROTATOR_JWT_SIGNING_KEY", "supersecret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("Load() error = nil")
			}
		})
	}
}

func TestLoadAcceptsDistributedElection(t *testing.T) {
	t.Setenv("CAMROTATOR_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("CAMROTATOR_EVENTBUS", "NATS")
	t.Setenv("CAMROTATOR_LEADER_ELECTION_ENABLED", "yes")
	t.Setenv("NATS_URL", "nats://bus:4222")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.EventBus != EventBusNATS || !cfg.LeaderElectionEnabled {
		t.Errorf("EventBus = %q, LeaderElectionEnabled = %v", cfg.EventBus, cfg.LeaderElectionEnabled)
	}
	if cfg.NATSURL != "nats://bus:4222" {
		t.Errorf("NATSURL = %q, want alias value", cfg.NATSURL)
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("CAMROTATOR_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("JWT_SIGNING_KEY", "legacy")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) != 2 {
		t.Fatalf("LegacyEnvWarnings = %v, want 2 entries", cfg.LegacyEnvWarnings)
	}
}

func TestLoadWebhooks(t *testing.T) {
	t.Setenv("CAMROTATOR_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("CAMROTATOR_WEBHOOK_URLS", " https://hooks.example.com/a, ,http://10.0.0.5:9000/b")
	t.Setenv("CAMROTATOR_WEBHOOK_EVENTS", "health.failure")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.WebhookURLs) != 2 || cfg.WebhookURLs[0] != "https://hooks.example.com/a" || cfg.WebhookURLs[1] != "http://10.0.0.5:9000/b" {
		t.Errorf("WebhookURLs = %q", cfg.WebhookURLs)
	}
	if len(cfg.WebhookEvents) != 1 || cfg.WebhookEvents[0] != "health.failure" {
		t.Errorf("WebhookEvents = %q, want [health.failure]", cfg.WebhookEvents)
	}
}
