/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/camrotator/internal/events"
	"github.com/friendsincode/camrotator/internal/telemetry"
)

// Delivered lists the events that can be sent to webhooks.
var Delivered = []events.EventType{events.EventHealthFailure, events.EventVoteResolved}

// Payload is the body posted to webhook endpoints.
type Payload struct {
	ID        string         `json:"id"`
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      events.Payload `json:"data"`
}

// Config selects the targets and events.
type Config struct {
	URLs   []string
	Secret string
	Events []events.EventType
}

// Service posts rotation events to operator endpoints.
type Service struct {
	cfg      Config
	bus      events.Broker
	client   *http.Client
	isLeader func() bool
	logger   zerolog.Logger

	wg sync.WaitGroup
}

// NewService creates a new webhook service. Unknown event names are dropped.
func NewService(cfg Config, bus events.Broker, logger zerolog.Logger) *Service {
	logger = logger.With().Str("component", "webhooks").Logger()

	var selected []events.EventType
	for _, eventType := range cfg.Events {
		if !slices.Contains(Delivered, eventType) {
			logger.Warn().Str("event", string(eventType)).Msg("ignoring unsupported webhook event")
			continue
		}
		if !slices.Contains(selected, eventType) {
			selected = append(selected, eventType)
		}
	}
	cfg.Events = selected

	return &Service{
		cfg:    cfg,
		bus:    bus,
		logger: logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetLeaderFunc limits delivery to the instance that runs the engine.
func (s *Service) SetLeaderFunc(fn func() bool) {
	s.isLeader = fn
}

// Enabled reports whether there is anything to deliver.
func (s *Service) Enabled() bool {
	return len(s.cfg.URLs) > 0 && len(s.cfg.Events) > 0
}

// Start listens for events until ctx ends, then waits for deliveries in flight.
func (s *Service) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	defer s.wg.Wait()

	type delivery struct {
		eventType events.EventType
		payload   events.Payload
	}
	incoming := make(chan delivery, 16)

	var subs sync.WaitGroup
	for _, eventType := range s.cfg.Events {
		sub := s.bus.Subscribe(eventType)
		defer s.bus.Unsubscribe(eventType, sub)

		subs.Add(1)
		go func(eventType events.EventType, sub events.Subscriber) {
			defer subs.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					select {
					case incoming <- delivery{eventType: eventType, payload: payload}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(eventType, sub)
	}
	defer subs.Wait()

	s.logger.Info().Int("targets", len(s.cfg.URLs)).Msg("webhook service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("webhook service stopping")
			return
		case d := <-incoming:
			if s.isLeader != nil && !s.isLeader() {
				continue
			}
			s.fire(d.eventType, d.payload)
		}
	}
}

// fire sends one event to every target in the background.
func (s *Service) fire(eventType events.EventType, data events.Payload) {
	body, err := json.Marshal(Payload{
		ID:        uuid.NewString(),
		Event:     string(eventType),
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("event", string(eventType)).Msg("failed to marshal webhook payload")
		return
	}

	for _, target := range s.cfg.URLs {
		s.wg.Add(1)
		go func(target string) {
			defer s.wg.Done()
			// detached so shutdown does not cut a delivery short; the client timeout bounds it
			if err := s.send(context.Background(), target, string(eventType), body); err != nil {
				s.logger.Warn().Err(err).Str("url", target).Str("event", string(eventType)).Msg("webhook delivery failed")
			}
		}(target)
	}
}

func (s *Service) send(ctx context.Context, target, eventType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		telemetry.WebhookDeliveriesTotal.WithLabelValues(eventType, "error").Inc()
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "camrotator-webhook/1.0")
	req.Header.Set("X-Camrotator-Event", eventType)
	req.Header.Set("X-Camrotator-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	if s.cfg.Secret != "" {
		req.Header.Set("X-Camrotator-Signature", Sign(body, s.cfg.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		telemetry.WebhookDeliveriesTotal.WithLabelValues(eventType, "error").Inc()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		telemetry.WebhookDeliveriesTotal.WithLabelValues(eventType, "status").Inc()
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	telemetry.WebhookDeliveriesTotal.WithLabelValues(eventType, "ok").Inc()
	s.logger.Debug().Str("url", target).Str("event", eventType).Int("status", resp.StatusCode).Msg("webhook delivered")
	return nil
}

// Sign returns the HMAC-SHA256 signature header value for body.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
