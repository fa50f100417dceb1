/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/camrotator/internal/events"
	"github.com/friendsincode/camrotator/internal/telemetry"
)

// RedisBus implements a Redis-backed event bus for multi-instance deployments.
// Every event is delivered to local subscribers directly and mirrored to the
// other instances over Redis pub/sub.
type RedisBus struct {
	client *redis.Client
	logger zerolog.Logger
	local  *events.Bus
	nodeID string
	prefix string

	mu       sync.Mutex
	refs     map[events.EventType]int
	channels map[events.EventType]*redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Circuit breaker state
	useFallback   bool
	failCount     int
	maxFails      int
	lastCheck     time.Time
	checkInterval time.Duration
	ownsClient    bool
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// ChannelPrefix namespaces the pub/sub channels.
	ChannelPrefix string

	// Connection pooling
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		ChannelPrefix: "camrotator:events:",
		PoolSize:      10,
		MinIdleConns:  2,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		CheckInterval: 30 * time.Second,
	}
}

// NewRedisBus creates a Redis-backed event bus. When Redis is unreachable the bus
// starts in local-only mode and keeps trying to reconnect.
func NewRedisBus(cfg RedisConfig, nodeID string, logger zerolog.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	rb := NewRedisBusWithClient(client, cfg, nodeID, logger)
	rb.ownsClient = true
	return rb, nil
}

// NewRedisBusWithClient creates a bus on an existing client. The caller keeps
// ownership of the client.
func NewRedisBusWithClient(client *redis.Client, cfg RedisConfig, nodeID string, logger zerolog.Logger) *RedisBus {
	defaults := DefaultRedisConfig()
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = defaults.ChannelPrefix
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaults.MaxFailures
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaults.CheckInterval
	}
	if nodeID == "" {
		nodeID = NodeID()
	}

	ctx, cancel := context.WithCancel(context.Background())
	rb := &RedisBus{
		client:        client,
		logger:        logger.With().Str("component", "redis_bus").Logger(),
		local:         events.NewBus(),
		nodeID:        nodeID,
		prefix:        cfg.ChannelPrefix,
		refs:          make(map[events.EventType]int),
		channels:      make(map[events.EventType]*redis.PubSub),
		ctx:           ctx,
		cancel:        cancel,
		maxFails:      cfg.MaxFailures,
		checkInterval: cfg.CheckInterval,
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rb.logger.Warn().Err(err).Msg("Redis connection failed, using in-memory fallback")
		rb.useFallback = true
		rb.lastCheck = time.Now()
	} else {
		rb.logger.Info().Str("node_id", nodeID).Msg("Redis event bus initialized")
	}

	rb.wg.Add(1)
	go rb.reconnectLoop()
	return rb
}

// NodeID returns the identifier used to suppress echoes of this node's events.
func (rb *RedisBus) NodeID() string {
	return rb.nodeID
}

// Fallback reports whether the bus is currently local-only.
func (rb *RedisBus) Fallback() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.useFallback
}

func (rb *RedisBus) channel(eventType events.EventType) string {
	return rb.prefix + string(eventType)
}

// Subscribe registers a subscriber for an event type.
func (rb *RedisBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := rb.local.Subscribe(eventType)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.refs[eventType]++
	if !rb.useFallback {
		rb.listenLocked(eventType)
	}
	return sub
}

// listenLocked opens the Redis subscription for eventType if none is open.
func (rb *RedisBus) listenLocked(eventType events.EventType) {
	if _, exists := rb.channels[eventType]; exists {
		return
	}
	pubsub := rb.client.Subscribe(rb.ctx, rb.channel(eventType))

	// Wait for the confirmation so events published right after Subscribe returns
	// are not missed.
	ctx, cancel := context.WithTimeout(rb.ctx, 3*time.Second)
	defer cancel()
	if _, err := pubsub.Receive(ctx); err != nil {
		rb.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Redis subscribe failed")
		_ = pubsub.Close()
		rb.failCount++
		return
	}

	rb.channels[eventType] = pubsub
	rb.wg.Add(1)
	go rb.receiveMessages(eventType, pubsub)
}

// receiveMessages handles incoming Redis pub/sub messages.
func (rb *RedisBus) receiveMessages(eventType events.EventType, pubsub *redis.PubSub) {
	defer rb.wg.Done()

	ch := pubsub.Channel()
	rb.logger.Debug().Str("event_type", string(eventType)).Msg("started Redis message receiver")

	for {
		select {
		case <-rb.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				rb.logger.Debug().Str("event_type", string(eventType)).Msg("Redis channel closed")
				return
			}

			remote, err := unmarshalMessage([]byte(msg.Payload))
			if err != nil {
				rb.logger.Error().Err(err).Msg("failed to unmarshal Redis message")
				continue
			}

			// Skip messages from ourselves (prevent echo)
			if remote.NodeID == rb.nodeID {
				continue
			}

			rb.local.Publish(eventType, remote.Payload)
		}
	}
}

// Publish sends an event payload to all subscribers (local and remote).
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.local.Publish(eventType, payload)

	if rb.Fallback() {
		telemetry.EventBusPublishTotal.WithLabelValues("redis", "fallback").Inc()
		return
	}

	data, err := marshalMessage(eventType, payload, rb.nodeID)
	if err != nil {
		telemetry.EventBusPublishTotal.WithLabelValues("redis", "error").Inc()
		rb.logger.Error().Err(err).Msg("failed to marshal Redis message")
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()

	if err := rb.client.Publish(ctx, rb.channel(eventType), data).Err(); err != nil {
		telemetry.EventBusPublishTotal.WithLabelValues("redis", "error").Inc()
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to Redis")
		rb.handleFailure()
		return
	}

	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()
	telemetry.EventBusPublishTotal.WithLabelValues("redis", "ok").Inc()
}

// Unsubscribe removes a subscriber.
func (rb *RedisBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	rb.local.Unsubscribe(eventType, sub)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.refs[eventType] > 0 {
		rb.refs[eventType]--
	}
	if rb.refs[eventType] > 0 {
		return
	}
	delete(rb.refs, eventType)
	if pubsub, exists := rb.channels[eventType]; exists {
		_ = pubsub.Close()
		delete(rb.channels, eventType)
		rb.logger.Debug().Str("event_type", string(eventType)).Msg("closed Redis subscription")
	}
}

// Close closes the Redis connection and all subscriptions.
func (rb *RedisBus) Close() error {
	rb.logger.Info().Msg("closing Redis event bus")
	rb.cancel()

	rb.mu.Lock()
	for eventType, pubsub := range rb.channels {
		_ = pubsub.Close()
		delete(rb.channels, eventType)
	}
	rb.mu.Unlock()

	rb.wg.Wait()

	if rb.ownsClient {
		if err := rb.client.Close(); err != nil {
			rb.logger.Error().Err(err).Msg("failed to close Redis client")
			return err
		}
	}
	return nil
}

// handleFailure implements circuit breaker logic.
func (rb *RedisBus) handleFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.failCount++
	if rb.failCount >= rb.maxFails && !rb.useFallback {
		rb.logger.Warn().
			Int("fail_count", rb.failCount).
			Msg("Redis failure threshold reached, switching to in-memory fallback")
		rb.useFallback = true
		rb.lastCheck = time.Now()
	}
}

func (rb *RedisBus) reconnectLoop() {
	defer rb.wg.Done()

	ticker := time.NewTicker(rb.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case <-ticker.C:
			if err := rb.tryReconnect(); err != nil {
				rb.logger.Debug().Err(err).Msg("Redis reconnect attempt failed")
			}
		}
	}
}

// tryReconnect leaves fallback mode once Redis answers again and reopens the
// subscriptions local subscribers still need.
func (rb *RedisBus) tryReconnect() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.useFallback {
		return nil
	}
	if time.Since(rb.lastCheck) < rb.checkInterval {
		return fmt.Errorf("too soon to retry")
	}
	rb.lastCheck = time.Now()

	ctx, cancel := context.WithTimeout(rb.ctx, 5*time.Second)
	defer cancel()
	if err := rb.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis still unavailable: %w", err)
	}

	rb.useFallback = false
	rb.failCount = 0
	for eventType := range rb.refs {
		rb.listenLocked(eventType)
	}
	rb.logger.Info().Msg("reconnected to Redis, disabling fallback")
	return nil
}

// wireMessage is the envelope shared by the Redis and NATS buses.
type wireMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(wireMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
	})
}

func unmarshalMessage(data []byte) (*wireMessage, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	return &msg, nil
}
