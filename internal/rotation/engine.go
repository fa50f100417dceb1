/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rotation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/camrotator/internal/command"
	"github.com/friendsincode/camrotator/internal/events"
	"github.com/friendsincode/camrotator/internal/health"
	"github.com/friendsincode/camrotator/internal/models"
	"github.com/friendsincode/camrotator/internal/telemetry"
)

// ErrEngineStopped is returned when a command is submitted to an engine that is not
// running.
var ErrEngineStopped = errors.New("rotation engine stopped")

const (
	DefaultTickInterval       = 500 * time.Millisecond
	DefaultCheckpointInterval = 15 * time.Second
	defaultQueueSize          = 64
	defaultOutboxSize         = 256
	persistTimeout            = 5 * time.Second
)

// Dispatch reports what happened to a submitted command.
type Dispatch string

const (
	DispatchApplied   Dispatch = "applied"
	DispatchIgnored   Dispatch = "ignored"
	DispatchForwarded Dispatch = "forwarded"
)

// Dispatcher accepts commands from the transport layer.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Command) (Dispatch, error)
	Latest() (Snapshot, bool)
}

// Store persists what the engine needs to resume after a restart.
type Store interface {
	SaveCheckpoint(ctx context.Context, cp models.RotationCheckpoint) error
	SaveCooldowns(ctx context.Context, entries []health.CooldownEntry) error
}

// EngineConfig sizes the engine loop.
type EngineConfig struct {
	TickInterval       time.Duration
	CheckpointInterval time.Duration
	QueueSize          int
	OutboxSize         int
	StartPaused        bool
}

type request struct {
	cmd   command.Command
	reply chan bool
}

type outgoing struct {
	eventType events.EventType
	payload   events.Payload
}

// Engine runs the scheduler on a single goroutine. Commands are queued to it and
// snapshots leave it by value.
type Engine struct {
	sched  *Scheduler
	bus    events.Broker
	store  Store
	cfg    EngineConfig
	logger zerolog.Logger

	cmds   chan request
	outbox chan outgoing
	latest atomic.Pointer[Snapshot]

	mu   sync.Mutex
	done chan struct{}

	checkpointDue bool
}

// NewEngine wires the scheduler to the bus and store. bus and store may be nil.
func NewEngine(sched *Scheduler, bus events.Broker, store Store, cfg EngineConfig, logger zerolog.Logger) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = DefaultCheckpointInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = defaultOutboxSize
	}
	e := &Engine{
		sched:  sched,
		bus:    bus,
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "engine").Logger(),
		cmds:   make(chan request, cfg.QueueSize),
		outbox: make(chan outgoing, cfg.OutboxSize),
	}
	sched.SetSink(e)
	return e
}

// Run drives the scheduler until ctx is cancelled. Events are published from a
// separate goroutine so a slow bus never stalls a tick. The checkpoint is written and
// the outbox flushed on exit.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.done != nil {
		e.mu.Unlock()
		return errors.New("rotation engine already running")
	}
	done := make(chan struct{})
	e.done = done
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.done = nil
		e.mu.Unlock()
		close(done)
	}()

	stopPublisher := make(chan struct{})
	var publisher sync.WaitGroup
	publisher.Add(1)
	go func() {
		defer publisher.Done()
		e.runPublisher(stopPublisher)
	}()
	defer func() {
		close(stopPublisher)
		publisher.Wait()
		e.flushOutbox()
	}()

	e.sched.Start(!e.cfg.StartPaused)
	e.logger.Info().
		Dur("tick", e.cfg.TickInterval).
		Int("eligible", len(e.sched.Eligible())).
		Msg("rotation engine started")

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	checkpoint := time.NewTicker(e.cfg.CheckpointInterval)
	defer checkpoint.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			e.persist()
			e.logger.Info().Msg("rotation engine stopped")
			return ctx.Err()

		case <-ticker.C:
			start := time.Now()
			e.sched.Tick(e.sched.clock())
			telemetry.EngineTickDuration.Observe(time.Since(start).Seconds())
			if e.checkpointDue {
				e.persist()
			}

		case <-checkpoint.C:
			e.persist()

		case req := <-e.cmds:
			req.reply <- e.sched.Apply(req.cmd)
		}
	}
}

// drain answers queued commands so no submitter waits on a stopped loop.
func (e *Engine) drain() {
	for {
		select {
		case req := <-e.cmds:
			req.reply <- e.sched.Apply(req.cmd)
		default:
			return
		}
	}
}

// Submit queues cmd and waits for the loop to apply it.
func (e *Engine) Submit(ctx context.Context, cmd command.Command) (bool, error) {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return false, ErrEngineStopped
	}

	req := request{cmd: cmd, reply: make(chan bool, 1)}
	select {
	case e.cmds <- req:
	case <-done:
		return false, ErrEngineStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case ok := <-req.reply:
		return ok, nil
	case <-done:
		// drain may still have answered
		select {
		case ok := <-req.reply:
			return ok, nil
		default:
			return false, ErrEngineStopped
		}
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Dispatch implements Dispatcher for a single instance.
func (e *Engine) Dispatch(ctx context.Context, cmd command.Command) (Dispatch, error) {
	ctx, span := telemetry.StartSpan(ctx, "rotation.dispatch", attribute.String("command", string(cmd.Type())))
	ok, err := e.Submit(ctx, cmd)
	telemetry.EndSpan(span, err)
	if err != nil {
		return DispatchIgnored, err
	}
	if !ok {
		return DispatchIgnored, nil
	}
	return DispatchApplied, nil
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done != nil
}

// Latest returns the most recent snapshot.
func (e *Engine) Latest() (Snapshot, bool) {
	snap := e.latest.Load()
	if snap == nil {
		return Snapshot{}, false
	}
	return *snap, true
}

// State implements Sink.
func (e *Engine) State(snap Snapshot) {
	e.latest.Store(&snap)
	e.publish(events.EventRotationState, events.Payload{"state": snap})
}

// HealthFailure implements Sink. Failures are checkpointed on the next tick so the
// cooldown survives a crash.
func (e *Engine) HealthFailure(ev FailureEvent) {
	e.checkpointDue = true
	e.publish(events.EventHealthFailure, events.Payload{"failure": ev})
}

// VoteResolved implements Sink.
func (e *Engine) VoteResolved(ev VoteEvent) {
	e.publish(events.EventVoteResolved, events.Payload{"vote": ev})
}

// publish queues an event without blocking the scheduler. A full outbox drops the
// event.
func (e *Engine) publish(eventType events.EventType, payload events.Payload) {
	if e.bus == nil {
		return
	}
	select {
	case e.outbox <- outgoing{eventType: eventType, payload: payload}:
	default:
		telemetry.EngineEventsDroppedTotal.WithLabelValues(string(eventType)).Inc()
		e.logger.Warn().Str("event", string(eventType)).Msg("event outbox full, dropping event")
	}
}

func (e *Engine) runPublisher(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case out := <-e.outbox:
			e.bus.Publish(out.eventType, out.payload)
		}
	}
}

// flushOutbox publishes whatever the publisher left behind, in order.
func (e *Engine) flushOutbox() {
	for {
		select {
		case out := <-e.outbox:
			e.bus.Publish(out.eventType, out.payload)
		default:
			return
		}
	}
}

func (e *Engine) persist() {
	e.checkpointDue = false
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	now := e.sched.clock()
	if err := e.store.SaveCheckpoint(ctx, e.sched.Checkpoint(now)); err != nil {
		telemetry.EngineCheckpointsTotal.WithLabelValues("error").Inc()
		e.logger.Error().Err(err).Msg("failed to save rotation checkpoint")
		return
	}
	if err := e.store.SaveCooldowns(ctx, e.sched.Cooldowns()); err != nil {
		telemetry.EngineCheckpointsTotal.WithLabelValues("error").Inc()
		e.logger.Error().Err(err).Msg("failed to save cooldowns")
		return
	}
	telemetry.EngineCheckpointsTotal.WithLabelValues("ok").Inc()
}

// DecodePayload extracts key from a bus payload into out. Payloads published in
// process carry typed values; payloads that crossed a remote bus carry decoded JSON.
func DecodePayload(p events.Payload, key string, out any) error {
	v, ok := p[key]
	if !ok {
		return fmt.Errorf("payload has no %q", key)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
