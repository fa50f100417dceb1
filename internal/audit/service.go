/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/camrotator/internal/command"
	"github.com/friendsincode/camrotator/internal/events"
	"github.com/friendsincode/camrotator/internal/models"
	"github.com/friendsincode/camrotator/internal/rotation"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Service records the rotation history: failures and vote outcomes from the event
// bus, operator commands from the API.
type Service struct {
	db       *gorm.DB
	bus      events.Broker
	isLeader func() bool
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus events.Broker, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		now:    time.Now,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// SetLeaderFunc limits bus recording to the instance that runs the engine, so a
// shared database gets each failure once.
func (s *Service) SetLeaderFunc(fn func() bool) {
	s.isLeader = fn
}

// Start subscribes to engine events and logs them until ctx ends.
func (s *Service) Start(ctx context.Context) {
	failures := s.bus.Subscribe(events.EventHealthFailure)
	votes := s.bus.Subscribe(events.EventVoteResolved)
	defer func() {
		s.bus.Unsubscribe(events.EventHealthFailure, failures)
		s.bus.Unsubscribe(events.EventVoteResolved, votes)
	}()

	s.logger.Info().Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return

		case payload, ok := <-failures:
			if !ok {
				return
			}
			if !s.recording() {
				continue
			}
			var ev rotation.FailureEvent
			if err := decodePayload(payload, "failure", &ev); err != nil {
				s.logger.Warn().Err(err).Msg("dropping malformed failure event")
				continue
			}
			s.logEntry(ctx, &models.AuditLog{
				Action:   models.AuditActionHealthFailure,
				SourceID: ev.SourceID,
				Details: map[string]any{
					"kind":           ev.Kind,
					"reason":         ev.Reason,
					"token":          ev.Token,
					"fail_count":     ev.FailCount,
					"cooldown_until": ev.CooldownUntil,
				},
			})

		case payload, ok := <-votes:
			if !ok {
				return
			}
			if !s.recording() {
				continue
			}
			var ev rotation.VoteEvent
			if err := decodePayload(payload, "vote", &ev); err != nil {
				s.logger.Warn().Err(err).Msg("dropping malformed vote event")
				continue
			}
			s.logEntry(ctx, &models.AuditLog{
				Action:   models.AuditActionVoteResolved,
				SourceID: ev.SourceID,
				Details: map[string]any{
					"decision": ev.Decision,
					"stay":     ev.Tally.Stay,
					"advance":  ev.Tally.Advance,
					"manual":   ev.Manual,
					"forced":   ev.Forced,
				},
			})
		}
	}
}

func (s *Service) recording() bool {
	return s.isLeader == nil || s.isLeader()
}

// decodePayload reads payload[key] into out. Local buses carry the typed event,
// remote ones a decoded JSON map, so both go through JSON.
func decodePayload(payload events.Payload, key string, out any) error {
	raw, ok := payload[key]
	if !ok {
		return fmt.Errorf("payload has no %q", key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// CommandEntry describes an operator command accepted by the API.
type CommandEntry struct {
	Actor     string
	IPAddress string
	UserAgent string
	Command   command.Command
	Result    rotation.Dispatch
}

// RecordCommand logs an operator command.
func (s *Service) RecordCommand(ctx context.Context, entry CommandEntry) error {
	var payload map[string]any
	data, err := json.Marshal(entry.Command)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", entry.Command.Type(), err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", entry.Command.Type(), err)
	}

	details := map[string]any{
		"command": string(entry.Command.Type()),
		"result":  string(entry.Result),
	}
	if len(payload) > 0 {
		details["payload"] = payload
	}

	log := &models.AuditLog{
		Actor:     entry.Actor,
		Action:    models.AuditActionCommand,
		Details:   details,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
	}
	if id, ok := payload["source_id"].(string); ok {
		log.SourceID = id
	}
	return s.Log(ctx, log)
}

// logEntry writes entry and logs failures instead of returning them.
func (s *Service) logEntry(ctx context.Context, entry *models.AuditLog) {
	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(entry.Action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly.
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	now := s.now()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	Action    models.AuditAction
	SourceID  string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit logs with filters, most recent first, and the total
// count before pagination.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.SourceID != "" {
		query = query.Where("source_id = ?", filters.SourceID)
	}
	if !filters.StartTime.IsZero() {
		query = query.Where("timestamp >= ?", filters.StartTime)
	}
	if !filters.EndTime.IsZero() {
		query = query.Where("timestamp <= ?", filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query = query.Limit(limit)
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// Prune deletes entries older than before.
func (s *Service) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("timestamp < ?", before).Delete(&models.AuditLog{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.Info().Int64("deleted", res.RowsAffected).Time("before", before).Msg("pruned audit log")
	}
	return res.RowsAffected, nil
}
