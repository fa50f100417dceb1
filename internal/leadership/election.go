/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects the one instance that runs the rotation loop.
package leadership

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/camrotator/internal/telemetry"
)

const (
	defaultElectionKey     = "camrotator:leader:rotation"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
	defaultRetryInterval   = 2 * time.Second
)

// renewScript extends the lease only while we still hold it.
const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end`

// releaseScript deletes the lease only while we still hold it.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// ElectionConfig configures leader election behavior
type ElectionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ElectionKey is the Redis key holding the lease
	ElectionKey string

	// LeaseDuration is how long the lease is valid without renewal
	LeaseDuration time.Duration

	// RenewalInterval is how often the leader renews its lease
	RenewalInterval time.Duration

	// RetryInterval is how often followers try to take the lease
	RetryInterval time.Duration

	// InstanceID uniquely identifies this instance
	InstanceID string
}

// DefaultConfig returns default election configuration
func DefaultConfig() ElectionConfig {
	return ElectionConfig{
		RedisAddr:       "localhost:6379",
		ElectionKey:     defaultElectionKey,
		LeaseDuration:   defaultLeaseDuration,
		RenewalInterval: defaultRenewalInterval,
		RetryInterval:   defaultRetryInterval,
		InstanceID:      uuid.New().String(),
	}
}

// Election holds or campaigns for a Redis lease.
type Election struct {
	client     *redis.Client
	ownsClient bool
	logger     zerolog.Logger
	config     ElectionConfig

	isLeader atomic.Bool
	leaderCh chan bool

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewElection connects to Redis and creates an election.
func NewElection(config ElectionConfig, logger zerolog.Logger) (*Election, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis for leader election: %w", err)
	}

	e := NewElectionWithClient(client, config, logger)
	e.ownsClient = true
	e.logger.Info().
		Str("redis_addr", config.RedisAddr).
		Str("instance_id", e.config.InstanceID).
		Msg("connected to Redis for leader election")
	return e, nil
}

// NewElectionWithClient creates an election on an existing client. The client is
// not closed by Stop.
func NewElectionWithClient(client *redis.Client, config ElectionConfig, logger zerolog.Logger) *Election {
	if config.ElectionKey == "" {
		config.ElectionKey = defaultElectionKey
	}
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = defaultLeaseDuration
	}
	if config.RenewalInterval <= 0 {
		config.RenewalInterval = defaultRenewalInterval
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaultRetryInterval
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.New().String()
	}
	return &Election{
		client:   client,
		logger:   logger.With().Str("component", "leader_election").Logger(),
		config:   config,
		leaderCh: make(chan bool, 1),
	}
}

// InstanceID returns the id this instance campaigns with.
func (e *Election) InstanceID() string {
	return e.config.InstanceID
}

// Start campaigns in the background until ctx is done or Stop is called.
func (e *Election) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.logger.Info().
		Str("instance_id", e.config.InstanceID).
		Dur("lease_duration", e.config.LeaseDuration).
		Msg("starting leader election")

	e.Campaign(ctx)
	e.wg.Add(1)
	go e.campaignLoop(ctx)
	return nil
}

// Stop ends the campaign and releases the lease if held.
func (e *Election) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		e.logger.Info().Msg("stopping leader election")
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()

		if e.isLeader.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if rerr := e.release(ctx); rerr != nil {
				e.logger.Error().Err(rerr).Msg("failed to release leadership lease")
			}
			e.setLeader(false)
		}
		if e.ownsClient {
			err = e.client.Close()
		}
	})
	return err
}

// IsLeader reports whether this instance holds the lease.
func (e *Election) IsLeader() bool {
	return e.isLeader.Load()
}

// LeaderCh receives leadership changes. Sends never block; a slow reader sees
// only the latest change.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

// GetLeader returns the current leader instance ID, empty when nobody holds it.
func (e *Election) GetLeader(ctx context.Context) (string, error) {
	leaderID, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return leaderID, nil
}

func (e *Election) campaignLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		interval := e.config.RetryInterval
		if e.isLeader.Load() {
			interval = e.config.RenewalInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			e.Campaign(ctx)
		}
	}
}

// Campaign makes one attempt to take or renew the lease.
func (e *Election) Campaign(ctx context.Context) {
	held, err := e.acquire(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("leader election attempt failed")
		held = false
	}
	if held != e.isLeader.Load() {
		if held {
			e.logger.Info().Str("instance_id", e.config.InstanceID).Msg("acquired leadership")
		} else {
			e.logger.Warn().Str("instance_id", e.config.InstanceID).Msg("lost leadership")
		}
	}
	e.setLeader(held)
}

func (e *Election) acquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.config.ElectionKey, e.config.InstanceID, e.config.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}
	renewed, err := e.client.Eval(ctx, renewScript, []string{e.config.ElectionKey},
		e.config.InstanceID, e.config.LeaseDuration.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return renewed == 1, nil
}

func (e *Election) release(ctx context.Context) error {
	if err := e.client.Eval(ctx, releaseScript, []string{e.config.ElectionKey}, e.config.InstanceID).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	e.logger.Info().Msg("released leadership lease")
	return nil
}

func (e *Election) setLeader(held bool) {
	if e.isLeader.Swap(held) == held {
		return
	}
	if held {
		telemetry.LeaderStatus.Set(1)
		telemetry.LeaderChangesTotal.WithLabelValues("acquired").Inc()
	} else {
		telemetry.LeaderStatus.Set(0)
		telemetry.LeaderChangesTotal.WithLabelValues("lost").Inc()
	}

	// replace a pending unread value with the latest one
	select {
	case <-e.leaderCh:
	default:
	}
	select {
	case e.leaderCh <- held:
	default:
	}
}
