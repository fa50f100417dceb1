/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/camrotator/internal/events"
	"github.com/friendsincode/camrotator/internal/telemetry"
)

// NATSBus implements a NATS-backed event bus. Events go out on core NATS subjects;
// rotation state is ephemeral, so no JetStream stream is kept.
type NATSBus struct {
	conn   *nats.Conn
	logger zerolog.Logger
	local  *events.Bus
	nodeID string
	prefix string

	mu   sync.Mutex
	refs map[events.EventType]int
	subs map[events.EventType]*nats.Subscription
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Token         string
	SubjectPrefix string
	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "camrotator.events.",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSBus connects to NATS and returns the bus. The connection retries in the
// background, so a server that is not up yet does not fail startup.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSBus, error) {
	defaults := DefaultNATSConfig()
	if cfg.URL == "" {
		cfg.URL = defaults.URL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = defaults.SubjectPrefix
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = defaults.ReconnectWait
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if nodeID == "" {
		nodeID = NodeID()
	}
	log := logger.With().Str("component", "nats_bus").Logger()

	opts := []nats.Option{
		nats.Name("camrotator-" + nodeID),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().Str("url", cfg.URL).Str("node_id", nodeID).Msg("NATS event bus initialized")
	return &NATSBus{
		conn:   nc,
		logger: log,
		local:  events.NewBus(),
		nodeID: nodeID,
		prefix: cfg.SubjectPrefix,
		refs:   make(map[events.EventType]int),
		subs:   make(map[events.EventType]*nats.Subscription),
	}, nil
}

// NodeID returns the identifier used to suppress echoes of this node's events.
func (nb *NATSBus) NodeID() string {
	return nb.nodeID
}

func (nb *NATSBus) subject(eventType events.EventType) string {
	return nb.prefix + string(eventType)
}

// Subscribe registers a subscriber for an event type.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.local.Subscribe(eventType)

	nb.mu.Lock()
	defer nb.mu.Unlock()
	nb.refs[eventType]++
	if _, exists := nb.subs[eventType]; exists {
		return sub
	}

	ns, err := nb.conn.Subscribe(nb.subject(eventType), func(msg *nats.Msg) {
		remote, err := unmarshalMessage(msg.Data)
		if err != nil {
			nb.logger.Error().Err(err).Msg("failed to unmarshal NATS message")
			return
		}
		if remote.NodeID == nb.nodeID {
			return
		}
		nb.local.Publish(eventType, remote.Payload)
	})
	if err != nil {
		nb.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("NATS subscribe failed, local delivery only")
		return sub
	}
	// Flush so the interest is registered before Subscribe returns.
	if err := nb.conn.Flush(); err != nil {
		nb.logger.Debug().Err(err).Msg("NATS flush after subscribe failed")
	}
	nb.subs[eventType] = ns
	return sub
}

// Publish sends an event payload to local subscribers and to the other nodes.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		telemetry.EventBusPublishTotal.WithLabelValues("nats", "error").Inc()
		nb.logger.Error().Err(err).Msg("failed to marshal NATS message")
		return
	}
	if err := nb.conn.Publish(nb.subject(eventType), data); err != nil {
		telemetry.EventBusPublishTotal.WithLabelValues("nats", "error").Inc()
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
		return
	}
	telemetry.EventBusPublishTotal.WithLabelValues("nats", "ok").Inc()
}

// Unsubscribe removes a subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)

	nb.mu.Lock()
	defer nb.mu.Unlock()
	if nb.refs[eventType] > 0 {
		nb.refs[eventType]--
	}
	if nb.refs[eventType] > 0 {
		return
	}
	delete(nb.refs, eventType)
	if ns, ok := nb.subs[eventType]; ok {
		_ = ns.Unsubscribe()
		delete(nb.subs, eventType)
	}
}

// Close drains the NATS connection.
func (nb *NATSBus) Close() error {
	nb.logger.Info().Msg("closing NATS event bus")
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return err
	}
	return nil
}

// NodeID builds a node identifier from the hostname and a random suffix.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + uuid.NewString()[:8]
}
