/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// No source ids in labels: the catalog is operator controlled and unbounded.
var (
	// Rotation

	RotationAdvancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrotator_rotation_advances_total",
		Help: "Total number of source changes, by reason.",
	}, []string{"reason"})

	RotationEligibleSources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camrotator_rotation_eligible_sources",
		Help: "Number of sources in the current eligible list.",
	})

	RotationFilterTier = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camrotator_rotation_filter_tier",
		Help: "Filter tier that produced the eligible list (0 empty, 1 filtered, 2 banned only, 3 raw).",
	})

	RotationPlaying = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camrotator_rotation_playing",
		Help: "1 when the rotation is playing, 0 when paused.",
	})

	// Health

	HealthFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrotator_health_failures_total",
		Help: "Total number of failed playback attempts, by source kind and reason class.",
	}, []string{"kind", "reason"})

	HealthActiveCooldowns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camrotator_health_active_cooldowns",
		Help: "Number of sources currently excluded by a cooldown.",
	})

	// Vote

	VoteOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrotator_vote_outcomes_total",
		Help: "Total number of resolved votes, by decision and trigger.",
	}, []string{"decision", "trigger"})

	VoteBallotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrotator_vote_ballots_total",
		Help: "Total number of ballots, by result (accepted/rejected).",
	}, []string{"result"})

	// Engine

	EngineCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrotator_engine_commands_total",
		Help: "Total number of commands applied, by type and result.",
	}, []string{"type", "result"})

	EngineTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camrotator_engine_tick_duration_seconds",
		Help:    "Duration of one engine tick.",
		Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	EngineCheckpointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrotator_engine_checkpoints_total",
		Help: "Total number of checkpoint writes, by result.",
	}, []string{"result"})

	EngineEventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrotator_engine_events_dropped_total",
		Help: "Total number of events dropped because the publish outbox was full, by event.",
	}, []string{"event"})

	LeaderStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camrotator_leader_status",
		Help: "1 when this instance holds the rotation lease.",
	})

	LeaderChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrotator_leader_changes_total",
		Help: "Total number of leadership changes, by direction (acquired/lost).",
	}, []string{"direction"})

	// Event bus

	EventBusPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrotator_eventbus_publish_total",
		Help: "Total number of events published to a remote bus, by backend and result.",
	}, []string{"backend", "result"})

	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrotator_webhook_deliveries_total",
		Help: "Total number of webhook deliveries, by event and result (ok/error/status).",
	}, []string{"event", "result"})

	// API

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrotator_api_requests_total",
		Help: "Total number of API requests.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camrotator_api_request_duration_seconds",
		Help:    "API request duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camrotator_api_active_connections",
		Help: "Number of in-flight API requests.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camrotator_api_websocket_connections",
		Help: "Number of open event stream connections.",
	})

	// Database

	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camrotator_database_query_duration_seconds",
		Help:    "Database operation duration.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrotator_database_errors_total",
		Help: "Database operations that returned an error.",
	}, []string{"operation", "error_type"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camrotator_database_connections_active",
		Help: "Open database connections.",
	})
)

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
