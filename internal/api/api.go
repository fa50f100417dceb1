/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/friendsincode/camrotator/internal/audit"
	"github.com/friendsincode/camrotator/internal/auth"
	"github.com/friendsincode/camrotator/internal/command"
	"github.com/friendsincode/camrotator/internal/events"
	"github.com/friendsincode/camrotator/internal/models"
	"github.com/friendsincode/camrotator/internal/rotation"
)

const maxBodyBytes = 64 << 10

// Auditor records operator commands and serves the rotation history.
type Auditor interface {
	RecordCommand(ctx context.Context, entry audit.CommandEntry) error
	Query(ctx context.Context, filters audit.QueryFilters) ([]models.AuditLog, int64, error)
}

// API exposes HTTP handlers.
type API struct {
	dispatcher  rotation.Dispatcher
	bus         events.Broker
	auditor     Auditor
	jwtSecret   []byte
	ballotLimit int
	isLeader    func() bool
	logger      zerolog.Logger
}

// New creates the API router wrapper. ballotLimit caps ballots per client IP per
// minute; zero disables the limit.
func New(dispatcher rotation.Dispatcher, bus events.Broker, jwtSecret []byte, ballotLimit int, logger zerolog.Logger) *API {
	return &API{
		dispatcher:  dispatcher,
		bus:         bus,
		jwtSecret:   jwtSecret,
		ballotLimit: ballotLimit,
		logger:      logger.With().Str("component", "api").Logger(),
	}
}

// SetLeaderFunc reports leadership on the health endpoint.
func (a *API) SetLeaderFunc(fn func() bool) {
	a.isLeader = fn
}

// SetAuditor enables command recording and the history endpoint.
func (a *API) SetAuditor(auditor Auditor) {
	a.auditor = auditor
}

// Routes registers API routes.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(a.jwtSecret))

		r.Get("/health", a.handleHealth)
		r.Get("/state", a.handleState)
		r.Get("/events", a.handleEvents)

		r.With(auth.RequireRole(auth.RoleOperator)).Post("/commands", a.handleCommand)
		r.With(auth.RequireRole(auth.RoleOperator)).Get("/audit", a.handleAudit)
		r.With(auth.RequireRole(auth.RoleOperator, auth.RoleBridge), a.ballotRateLimit()).Post("/ballots", a.handleBallot)

		r.Route("/playback/{token}", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleOperator))
			r.Post("/progress", a.handlePlaybackProgress)
			r.Post("/stall", a.handlePlaybackStall)
			r.Post("/error", a.handlePlaybackError)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if a.isLeader != nil {
		resp["leader"] = a.isLeader()
	}
	_, hasState := a.dispatcher.Latest()
	resp["has_state"] = hasState
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.dispatcher.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "state_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	cmd, err := command.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, decodeErrorCode(err))
		return
	}
	if result, ok := a.dispatch(w, r, cmd); ok {
		a.recordCommand(r.Context(), requestActor(r), cmd, result)
	}
}

func (a *API) handleBallot(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	cmd, err := command.DecodeEnvelope(command.Envelope{Type: command.TypeCastBallot, Payload: body})
	if err != nil {
		writeError(w, http.StatusBadRequest, decodeErrorCode(err))
		return
	}
	a.dispatch(w, r, cmd)
}

type playbackRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handlePlaybackProgress(w http.ResponseWriter, r *http.Request) {
	token, ok := playbackToken(w, r)
	if !ok {
		return
	}
	a.dispatch(w, r, command.PlaybackProgress{Token: token})
}

func (a *API) handlePlaybackStall(w http.ResponseWriter, r *http.Request) {
	token, ok := playbackToken(w, r)
	if !ok {
		return
	}
	req, ok := decodePlayback(w, r)
	if !ok {
		return
	}
	a.dispatch(w, r, command.PlaybackStall{Token: token, Reason: req.Reason})
}

func (a *API) handlePlaybackError(w http.ResponseWriter, r *http.Request) {
	token, ok := playbackToken(w, r)
	if !ok {
		return
	}
	req, ok := decodePlayback(w, r)
	if !ok {
		return
	}
	a.dispatch(w, r, command.PlaybackError{Token: token, Reason: req.Reason})
}

// dispatch hands cmd to the engine and reports the outcome. Ignored commands are
// not errors: the core treats stale tokens and duplicate ballots as no-ops.
func (a *API) dispatch(w http.ResponseWriter, r *http.Request, cmd command.Command) (rotation.Dispatch, bool) {
	result, err := a.dispatcher.Dispatch(r.Context(), cmd)
	if err != nil {
		if errors.Is(err, rotation.ErrEngineStopped) {
			writeError(w, http.StatusServiceUnavailable, "engine_unavailable")
			return result, false
		}
		a.logger.Error().Err(err).Str("type", string(cmd.Type())).Msg("dispatch failed")
		writeError(w, http.StatusInternalServerError, "dispatch_failed")
		return result, false
	}

	status := http.StatusOK
	if result == rotation.DispatchForwarded {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]any{
		"type":   cmd.Type(),
		"result": result,
	})
	return result, true
}

// actor identifies who sent a command.
type actor struct {
	claims    *auth.Claims
	ipAddress string
	userAgent string
}

func requestActor(r *http.Request) actor {
	claims, _ := auth.ClaimsFromContext(r.Context())
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return actor{claims: claims, ipAddress: ip, userAgent: r.UserAgent()}
}

func (a *API) recordCommand(ctx context.Context, who actor, cmd command.Command, result rotation.Dispatch) {
	if a.auditor == nil {
		return
	}
	entry := audit.CommandEntry{
		IPAddress: who.ipAddress,
		UserAgent: who.userAgent,
		Command:   cmd,
		Result:    result,
	}
	if who.claims != nil {
		entry.Actor = who.claims.Name
	}
	if err := a.auditor.RecordCommand(ctx, entry); err != nil {
		a.logger.Error().Err(err).Str("type", string(cmd.Type())).Msg("failed to record command")
	}
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if a.auditor == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_unavailable")
		return
	}

	q := r.URL.Query()
	filters := audit.QueryFilters{
		Action:   models.AuditAction(q.Get("action")),
		SourceID: q.Get("source_id"),
	}
	if filters.Action != "" && !models.ValidAuditAction(filters.Action) {
		writeError(w, http.StatusBadRequest, "invalid_action")
		return
	}

	var err error
	if filters.StartTime, err = parseTimeParam(q.Get("since")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time")
		return
	}
	if filters.EndTime, err = parseTimeParam(q.Get("until")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time")
		return
	}
	if filters.Limit, err = parseIntParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	if filters.Offset, err = parseIntParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}

	entries, total, err := a.auditor.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("audit query failed")
		writeError(w, http.StatusInternalServerError, "audit_query_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
	})
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func parseIntParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid count %q", raw)
	}
	return n, nil
}

func (a *API) ballotRateLimit() func(http.Handler) http.Handler {
	if a.ballotLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		a.ballotLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate_limited")
		}),
	)
}

func playbackToken(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	token, err := strconv.ParseUint(chi.URLParam(r, "token"), 10, 64)
	if err != nil || token == 0 {
		writeError(w, http.StatusBadRequest, "invalid_token")
		return 0, false
	}
	return token, true
}

// decodePlayback reads the optional reason body of stall and error signals.
func decodePlayback(w http.ResponseWriter, r *http.Request) (playbackRequest, bool) {
	var req playbackRequest
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large")
		return req, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, true
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return req, false
	}
	req.Reason = strings.TrimSpace(req.Reason)
	return req, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func decodeErrorCode(err error) string {
	if errors.Is(err, command.ErrUnknownType) {
		return "unknown_command"
	}
	return "invalid_payload"
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		eventType := events.EventType(strings.TrimSpace(part))
		if eventType == "" {
			continue
		}
		// only the streamed events are exposed to clients
		if slices.Contains(events.Streamed, eventType) && !slices.Contains(out, eventType) {
			out = append(out, eventType)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
