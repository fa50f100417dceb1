/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rotation

import (
	"math"
	"time"

	"github.com/friendsincode/camrotator/internal/filter"
	"github.com/friendsincode/camrotator/internal/health"
	"github.com/friendsincode/camrotator/internal/vote"
)

const (
	DefaultRoundLength       = 300 * time.Second
	DefaultImageRoundLength  = 20 * time.Second
	DefaultAdvanceCooldown   = 750 * time.Millisecond
	DefaultFailureGrace      = 1500 * time.Millisecond
	DefaultHeartbeatInterval = 5 * time.Second

	minRoundLength = 10 * time.Second
	maxRoundLength = 6 * time.Hour
	minImageRound  = 5 * time.Second
	maxCooldown    = 10 * time.Second
	maxGrace       = 30 * time.Second
	minHeartbeat   = time.Second
	maxHeartbeat   = time.Minute
)

// Config holds every scheduler tunable. Out of range values are clamped.
type Config struct {
	RoundLength       time.Duration
	ImageRoundLength  time.Duration
	AdvanceCooldown   time.Duration
	FailureGrace      time.Duration
	HeartbeatInterval time.Duration
	AutoSkip          bool
	Mode              filter.Mode
	Vote              vote.Config
	Health            health.Config
	Cooldown          health.CooldownConfig
}

// DefaultConfig returns the stock scheduler settings.
func DefaultConfig() Config {
	return Config{
		RoundLength:       DefaultRoundLength,
		ImageRoundLength:  DefaultImageRoundLength,
		AdvanceCooldown:   DefaultAdvanceCooldown,
		FailureGrace:      DefaultFailureGrace,
		HeartbeatInterval: DefaultHeartbeatInterval,
		AutoSkip:          true,
		Mode:              filter.ModeMixed,
		Vote:              vote.DefaultConfig(),
		Health:            health.DefaultConfig(),
		Cooldown:          health.DefaultCooldownConfig(),
	}
}

// Clamp bounds every field instead of rejecting it.
func (c Config) Clamp() Config {
	c.RoundLength = clampRound(c.RoundLength)
	c.ImageRoundLength = clampDuration(c.ImageRoundLength, minImageRound, maxRoundLength)
	c.AdvanceCooldown = clampDuration(c.AdvanceCooldown, 0, maxCooldown)
	c.FailureGrace = clampDuration(c.FailureGrace, 0, maxGrace)
	c.HeartbeatInterval = clampDuration(c.HeartbeatInterval, minHeartbeat, maxHeartbeat)
	c.Mode = filter.ParseMode(string(c.Mode))
	c.Vote = c.Vote.Clamp()
	c.Health = c.Health.Clamp()
	c.Health.AutoSkip = c.AutoSkip
	return c
}

func clampRound(d time.Duration) time.Duration {
	return clampDuration(d, minRoundLength, maxRoundLength)
}

// scaled converts n units to a Duration, saturating where the product would
// overflow so that huge inputs clamp to the upper bound.
func scaled(n int64, unit time.Duration) time.Duration {
	limit := int64(math.MaxInt64 / unit)
	switch {
	case n > limit:
		return math.MaxInt64
	case n < -limit:
		return math.MinInt64
	}
	return time.Duration(n) * unit
}

func fromSeconds(n int) time.Duration {
	return scaled(int64(n), time.Second)
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
