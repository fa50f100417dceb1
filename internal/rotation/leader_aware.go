/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rotation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/camrotator/internal/command"
	"github.com/friendsincode/camrotator/internal/events"
)

// Elector is the part of leadership.Election the wrapper needs.
type Elector interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	LeaderCh() <-chan bool
}

// LeaderAwareEngine runs the engine only while this instance is the leader. Commands
// received by a follower are forwarded to the leader over the bus.
type LeaderAwareEngine struct {
	engine   *Engine
	election Elector
	relay    *Relay
	bus      events.Broker
	boot     func(ctx context.Context)
	logger   zerolog.Logger

	mu         sync.Mutex
	ctx        context.Context
	cancelFunc context.CancelFunc
	running    bool
	stopped    chan struct{}
}

// NewLeaderAware creates a leader-aware engine wrapper. boot, when set, runs right
// before the engine starts on a new leader (checkpoint restore).
func NewLeaderAware(engine *Engine, election Elector, bus events.Broker, relay *Relay, boot func(ctx context.Context), logger zerolog.Logger) *LeaderAwareEngine {
	return &LeaderAwareEngine{
		engine:   engine,
		election: election,
		relay:    relay,
		bus:      bus,
		boot:     boot,
		logger:   logger.With().Str("component", "leader_aware_engine").Logger(),
	}
}

// Start begins monitoring leadership status and manages the engine lifecycle
func (la *LeaderAwareEngine) Start(ctx context.Context) error {
	la.ctx = ctx
	la.logger.Info().Msg("starting leader-aware engine")

	if err := la.election.Start(ctx); err != nil {
		return err
	}
	go la.monitorLeadership()
	return nil
}

// Stop stops the engine and releases leadership
func (la *LeaderAwareEngine) Stop() error {
	la.logger.Info().Msg("stopping leader-aware engine")
	la.stopEngine()
	return la.election.Stop()
}

func (la *LeaderAwareEngine) monitorLeadership() {
	leaderCh := la.election.LeaderCh()

	if la.election.IsLeader() {
		la.startEngine()
	}

	for {
		select {
		case <-la.ctx.Done():
			return
		case isLeader := <-leaderCh:
			if isLeader {
				la.logger.Info().Msg("became leader, starting rotation engine")
				la.startEngine()
			} else {
				la.logger.Warn().Msg("lost leadership, stopping rotation engine")
				la.stopEngine()
			}
		}
	}
}

func (la *LeaderAwareEngine) startEngine() {
	la.mu.Lock()
	defer la.mu.Unlock()
	if la.running {
		return
	}

	ctx, cancel := context.WithCancel(la.ctx)
	la.cancelFunc = cancel
	la.running = true
	stopped := make(chan struct{})
	la.stopped = stopped

	go la.consumeForwarded(ctx)
	go func() {
		defer close(stopped)
		if la.boot != nil {
			la.boot(ctx)
		}
		if err := la.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			la.logger.Error().Err(err).Msg("rotation engine error")
		}
		la.mu.Lock()
		la.running = false
		la.mu.Unlock()
	}()
}

func (la *LeaderAwareEngine) stopEngine() {
	la.mu.Lock()
	cancel, stopped := la.cancelFunc, la.stopped
	la.cancelFunc = nil
	la.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

// consumeForwarded applies commands forwarded by followers while this instance leads.
func (la *LeaderAwareEngine) consumeForwarded(ctx context.Context) {
	if la.bus == nil {
		return
	}
	sub := la.bus.Subscribe(events.EventRotationCommand)
	defer la.bus.Unsubscribe(events.EventRotationCommand, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			var env command.Envelope
			if err := DecodePayload(payload, "command", &env); err != nil {
				la.logger.Warn().Err(err).Msg("dropping malformed forwarded command")
				continue
			}
			cmd, err := command.DecodeEnvelope(env)
			if err != nil {
				la.logger.Warn().Err(err).Msg("dropping invalid forwarded command")
				continue
			}
			if _, err := la.engine.Submit(ctx, cmd); err != nil && !errors.Is(err, context.Canceled) {
				la.logger.Warn().Err(err).Str("type", string(cmd.Type())).Msg("forwarded command not applied")
			}
		}
	}
}

// IsLeader returns whether this instance is the leader
func (la *LeaderAwareEngine) IsLeader() bool {
	return la.election.IsLeader()
}

// Dispatch applies cmd locally on the leader and forwards it otherwise.
func (la *LeaderAwareEngine) Dispatch(ctx context.Context, cmd command.Command) (Dispatch, error) {
	if la.engine.Running() {
		return la.engine.Dispatch(ctx, cmd)
	}
	if la.bus == nil {
		return DispatchIgnored, ErrEngineStopped
	}
	data, err := command.Encode(cmd)
	if err != nil {
		return DispatchIgnored, err
	}
	la.bus.Publish(events.EventRotationCommand, events.Payload{"command": json.RawMessage(data)})
	return DispatchForwarded, nil
}

// Latest returns the local snapshot on the leader and the relayed one on followers.
func (la *LeaderAwareEngine) Latest() (Snapshot, bool) {
	if la.engine.Running() {
		return la.engine.Latest()
	}
	if la.relay != nil {
		return la.relay.Latest()
	}
	return Snapshot{}, false
}
