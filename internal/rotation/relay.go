/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rotation

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/camrotator/internal/events"
)

// Relay keeps the last snapshot seen on the bus. Followers serve it instead of
// running their own scheduler.
type Relay struct {
	bus    events.Broker
	logger zerolog.Logger

	mu     sync.RWMutex
	latest *Snapshot
}

// NewRelay creates a relay over bus.
func NewRelay(bus events.Broker, logger zerolog.Logger) *Relay {
	return &Relay{
		bus:    bus,
		logger: logger.With().Str("component", "rotation_relay").Logger(),
	}
}

// Run consumes rotation.state events until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	sub := r.bus.Subscribe(events.EventRotationState)
	defer r.bus.Unsubscribe(events.EventRotationState, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			r.Observe(payload)
		}
	}
}

// Observe records the snapshot carried by payload.
func (r *Relay) Observe(payload events.Payload) {
	var snap Snapshot
	if err := DecodePayload(payload, "state", &snap); err != nil {
		r.logger.Debug().Err(err).Msg("ignoring malformed state event")
		return
	}
	r.mu.Lock()
	r.latest = &snap
	r.mu.Unlock()
}

// Latest returns the last relayed snapshot.
func (r *Relay) Latest() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return Snapshot{}, false
	}
	return *r.latest, true
}
