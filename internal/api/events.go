/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/camrotator/internal/auth"
	"github.com/friendsincode/camrotator/internal/command"
	"github.com/friendsincode/camrotator/internal/events"
	"github.com/friendsincode/camrotator/internal/rotation"
	"github.com/friendsincode/camrotator/internal/telemetry"
)

const (
	pingInterval     = 15 * time.Second
	commandQueueSize = 16
)

type streamedEvent struct {
	eventType events.EventType
	payload   events.Payload
}

// handleEvents streams rotation events to the client. Operator clients may send
// command envelopes on the same socket; each gets a command_result or error reply.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	who := requestActor(r)

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = events.Streamed
	}

	// fan the subscriptions into one channel
	merged := make(chan streamedEvent, 16)
	for _, eventType := range eventTypes {
		sub := a.bus.Subscribe(eventType)
		defer a.bus.Unsubscribe(eventType, sub)
		go func(eventType events.EventType, sub events.Subscriber) {
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					select {
					case merged <- streamedEvent{eventType: eventType, payload: payload}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(eventType, sub)
	}

	// the current snapshot goes first so clients do not wait for the heartbeat
	if snap, ok := a.dispatcher.Latest(); ok {
		if err := a.writeEvent(ctx, conn, events.EventRotationState, events.Payload{"state": snap}); err != nil {
			a.logger.Debug().Err(err).Msg("websocket initial state failed")
			return
		}
	}

	commands := make(chan []byte, commandQueueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ws.CloseStatus(err) != ws.StatusNormalClosure && !errors.Is(err, context.Canceled) {
					a.logger.Debug().Err(err).Msg("websocket read error")
				}
				return
			}
			select {
			case commands <- data:
			default:
				a.logger.Warn().Msg("websocket command queue full, dropping message")
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return

		case <-done:
			conn.Close(ws.StatusNormalClosure, "client disconnected")
			return

		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Error().Err(err).Msg("websocket ping failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}

		case ev := <-merged:
			if err := a.writeEvent(ctx, conn, ev.eventType, ev.payload); err != nil {
				a.logger.Error().Err(err).Msg("websocket write failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}

		case data := <-commands:
			if err := a.handleSocketCommand(ctx, conn, who, data); err != nil {
				a.logger.Error().Err(err).Msg("websocket write failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (a *API) handleSocketCommand(ctx context.Context, conn *ws.Conn, who actor, data []byte) error {
	if !who.claims.HasRole(auth.RoleOperator) {
		return a.writeMessage(ctx, conn, "error", map[string]string{"error": "forbidden"})
	}
	cmd, err := command.Decode(data)
	if err != nil {
		code := decodeErrorCode(err)
		if !json.Valid(data) {
			code = "invalid_json"
		}
		return a.writeMessage(ctx, conn, "error", map[string]string{"error": code})
	}

	result, err := a.dispatcher.Dispatch(ctx, cmd)
	if err != nil {
		code := "dispatch_failed"
		if errors.Is(err, rotation.ErrEngineStopped) {
			code = "engine_unavailable"
		}
		return a.writeMessage(ctx, conn, "error", map[string]string{"error": code, "command": string(cmd.Type())})
	}
	a.recordCommand(ctx, who, cmd, result)
	return a.writeMessage(ctx, conn, "command_result", map[string]any{
		"type":   cmd.Type(),
		"result": result,
	})
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	return a.writeMessage(ctx, conn, string(eventType), payload)
}

func (a *API) writeMessage(ctx context.Context, conn *ws.Conn, msgType string, payload any) error {
	data := map[string]any{
		"type":    msgType,
		"payload": payload,
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, bytes)
}
