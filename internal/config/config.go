/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Event bus backend selection.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	LogFormat     string // console or json; empty picks by environment
	DBBackend     DatabaseBackend
	DBDSN         string
	CatalogFile   string // YAML catalog; empty loads the catalog table
	JWTSigningKey string

	// Ballots accepted per client IP per minute.
	BallotRateLimit int

	// Rotation history older than this is pruned; zero keeps everything.
	AuditRetention time.Duration

	// Outbound webhooks for failures and vote outcomes
	WebhookURLs   []string
	WebhookSecret string
	WebhookEvents []string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	EventBus              EventBusBackend
	NATSURL               string
	NATSToken             string
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	// Engine loop
	TickInterval       time.Duration
	CheckpointInterval time.Duration
	StartPaused        bool

	// Rotation tunables, clamped by the core
	RoundLength       time.Duration
	ImageRoundLength  time.Duration
	AdvanceCooldown   time.Duration
	FailureGrace      time.Duration
	HeartbeatInterval time.Duration
	AutoSkip          bool
	PlaybackMode      string

	VoteEnabled bool
	VoteWindow  time.Duration
	VoteAt      time.Duration
	VoteLead    time.Duration
	VoteUI      time.Duration
	VoteStay    time.Duration

	StartTimeout time.Duration
	StallTimeout time.Duration
	MaxStalls    int
	CooldownBase time.Duration
	CooldownCap  time.Duration

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     getEnvAny([]string{"CAMROTATOR_ENV", "APP_ENV"}, "development"),
		HTTPBind:        getEnvAny([]string{"CAMROTATOR_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:        getEnvIntAny([]string{"CAMROTATOR_HTTP_PORT", "PORT"}, 8080),
		LogFormat:       strings.ToLower(getEnvAny([]string{"CAMROTATOR_LOG_FORMAT", "LOG_FORMAT"}, "")),
		DBBackend:       DatabaseBackend(strings.ToLower(getEnvAny([]string{"CAMROTATOR_DB_BACKEND"}, string(DatabaseSQLite)))),
		DBDSN:           getEnvAny([]string{"CAMROTATOR_DB_DSN", "DATABASE_URL"}, "camrotator.db"),
		CatalogFile:     getEnvAny([]string{"CAMROTATOR_CATALOG_FILE"}, ""),
		JWTSigningKey:   getEnvAny([]string{"CAMROTATOR_JWT_SIGNING_KEY"}, ""),
		BallotRateLimit: getEnvIntAny([]string{"CAMROTATOR_BALLOT_RATE_LIMIT"}, 30),
		AuditRetention:  getEnvDurationAny([]string{"CAMROTATOR_AUDIT_RETENTION"}, 30*24*time.Hour),
		WebhookURLs:     splitList(getEnvAny([]string{"CAMROTATOR_WEBHOOK_URLS"}, "")),
		WebhookSecret:   getEnvAny([]string{"CAMROTATOR_WEBHOOK_SECRET"}, ""),
		WebhookEvents:   splitList(getEnvAny([]string{"CAMROTATOR_WEBHOOK_EVENTS"}, "health.failure,vote.resolved")),

		// Tracing configuration
		TracingEnabled:    getEnvBoolAny([]string{"CAMROTATOR_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"CAMROTATOR_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"CAMROTATOR_TRACING_SAMPLE_RATE"}, 1.0),

		// Multi-instance configuration
		EventBus:              EventBusBackend(strings.ToLower(getEnvAny([]string{"CAMROTATOR_EVENTBUS"}, string(EventBusMemory)))),
		NATSURL:               getEnvAny([]string{"CAMROTATOR_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),
		NATSToken:             getEnvAny([]string{"CAMROTATOR_NATS_TOKEN", "NATS_TOKEN"}, ""),
		LeaderElectionEnabled: getEnvBoolAny([]string{"CAMROTATOR_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"CAMROTATOR_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"CAMROTATOR_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"CAMROTATOR_REDIS_DB", "REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"CAMROTATOR_INSTANCE_ID"}, ""),

		// Engine loop
		TickInterval:       getEnvDurationAny([]string{"CAMROTATOR_TICK_INTERVAL"}, 500*time.Millisecond),
		CheckpointInterval: getEnvDurationAny([]string{"CAMROTATOR_CHECKPOINT_INTERVAL"}, 15*time.Second),
		StartPaused:        getEnvBoolAny([]string{"CAMROTATOR_START_PAUSED"}, false),

		// Rotation
		RoundLength:       getEnvDurationAny([]string{"CAMROTATOR_ROUND_LENGTH"}, 300*time.Second),
		ImageRoundLength:  getEnvDurationAny([]string{"CAMROTATOR_IMAGE_ROUND_LENGTH"}, 20*time.Second),
		AdvanceCooldown:   getEnvDurationAny([]string{"CAMROTATOR_ADVANCE_COOLDOWN"}, 750*time.Millisecond),
		FailureGrace:      getEnvDurationAny([]string{"CAMROTATOR_FAILURE_GRACE"}, 1500*time.Millisecond),
		HeartbeatInterval: getEnvDurationAny([]string{"CAMROTATOR_HEARTBEAT_INTERVAL"}, 5*time.Second),
		AutoSkip:          getEnvBoolAny([]string{"CAMROTATOR_AUTO_SKIP"}, true),
		PlaybackMode:      getEnvAny([]string{"CAMROTATOR_PLAYBACK_MODE"}, "mixed"),

		// Voting
		VoteEnabled: getEnvBoolAny([]string{"CAMROTATOR_VOTE_ENABLED"}, true),
		VoteWindow:  getEnvDurationAny([]string{"CAMROTATOR_VOTE_WINDOW"}, 60*time.Second),
		VoteAt:      getEnvDurationAny([]string{"CAMROTATOR_VOTE_AT"}, 60*time.Second),
		VoteLead:    getEnvDurationAny([]string{"CAMROTATOR_VOTE_LEAD"}, 5*time.Second),
		VoteUI:      getEnvDurationAny([]string{"CAMROTATOR_VOTE_UI"}, 0),
		VoteStay:    getEnvDurationAny([]string{"CAMROTATOR_VOTE_STAY"}, 300*time.Second),

		// Playback health
		StartTimeout: getEnvDurationAny([]string{"CAMROTATOR_START_TIMEOUT"}, 20*time.Second),
		StallTimeout: getEnvDurationAny([]string{"CAMROTATOR_STALL_TIMEOUT"}, 15*time.Second),
		MaxStalls:    getEnvIntAny([]string{"CAMROTATOR_MAX_STALLS"}, 4),
		CooldownBase: getEnvDurationAny([]string{"CAMROTATOR_COOLDOWN_BASE"}, 30*time.Minute),
		CooldownCap:  getEnvDurationAny([]string{"CAMROTATOR_COOLDOWN_CAP"}, 24*time.Hour),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("CAMROTATOR_DB_DSN or DATABASE_URL must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("CAMROTATOR_JWT_SIGNING_KEY must be provided")
	}

	switch cfg.EventBus {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return nil, fmt.Errorf("unsupported event bus backend %q", cfg.EventBus)
	}

	if cfg.LeaderElectionEnabled && cfg.EventBus == EventBusMemory {
		return nil, fmt.Errorf("leader election requires CAMROTATOR_EVENTBUS=redis or nats so followers can reach the leader")
	}

	for _, raw := range cfg.WebhookURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("CAMROTATOR_WEBHOOK_URLS: invalid url %q", raw)
		}
	}

	if strings.EqualFold(cfg.Environment, "production") && len(cfg.JWTSigningKey) < 32 {
		return nil, fmt.Errorf("CAMROTATOR_JWT_SIGNING_KEY must be at least 32 bytes in production")
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ROUND_LENGTH":    "use CAMROTATOR_ROUND_LENGTH",
		"JWT_SIGNING_KEY": "use CAMROTATOR_JWT_SIGNING_KEY",
		"TRACING_ENABLED": "use CAMROTATOR_TRACING_ENABLED",
		"EVENTBUS":        "use CAMROTATOR_EVENTBUS",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// HTTPAddr returns the listen address of the API server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// Distributed reports whether events are mirrored to other instances.
func (c *Config) Distributed() bool {
	return c.EventBus != EventBusMemory
}

// splitList splits a comma separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go durations ("90s", "5m") or a bare number of seconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" {
			continue
		}
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			ns := secs * float64(time.Second)
			switch {
			case ns >= math.MaxInt64:
				return math.MaxInt64
			case ns <= math.MinInt64:
				return math.MinInt64
			}
			return time.Duration(ns)
		}
	}
	return def
}
