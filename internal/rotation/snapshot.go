/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rotation

import (
	"time"

	"github.com/friendsincode/camrotator/internal/health"
	"github.com/friendsincode/camrotator/internal/vote"
)

// Snapshot is the outward view of the rotation, published after every mutation and
// on the heartbeat.
type Snapshot struct {
	SourceID         string     `json:"source_id"`
	SourceKind       string     `json:"source_kind"`
	SourceTitle      string     `json:"source_title,omitempty"`
	SourceURL        string     `json:"source_url,omitempty"`
	Playing          bool       `json:"playing"`
	Index            int        `json:"index"`
	Total            int        `json:"total"`
	RemainingSeconds float64    `json:"remaining_seconds"`
	SegmentSeconds   float64    `json:"segment_seconds"`
	Tier             string     `json:"tier"`
	AutoSkip         bool       `json:"auto_skip"`
	Mode             string     `json:"mode"`
	Health           HealthView `json:"health"`
	Vote             VoteView   `json:"vote"`
	Cooldowns        int        `json:"cooldowns"`
	Banned           int        `json:"banned"`
	At               time.Time  `json:"at"`
}

// HealthView is the watchdog part of a snapshot. Token is what the player must echo
// back on progress, stall and error signals.
type HealthView struct {
	StartTimeoutMS int64         `json:"start_timeout_ms"`
	StallTimeoutMS int64         `json:"stall_timeout_ms"`
	MaxStalls      int           `json:"max_stalls"`
	Token          uint64        `json:"token"`
	Status         health.Status `json:"status"`
}

// VoteView is the vote part of a snapshot: configured timing, timing resolved for
// the current round and the live session.
type VoteView struct {
	Enabled    bool        `json:"enabled"`
	Phase      vote.Phase  `json:"phase"`
	Manual     bool        `json:"manual,omitempty"`
	Configured VoteTiming  `json:"configured"`
	Resolved   VoteTiming  `json:"resolved"`
	Tally      vote.Tally  `json:"tally"`
	Boundaries *Boundaries `json:"boundaries,omitempty"`
}

// VoteTiming is a vote timing expressed in seconds.
type VoteTiming struct {
	WindowSeconds  float64 `json:"window_seconds"`
	VoteAtSeconds  float64 `json:"vote_at_seconds"`
	LeadSeconds    float64 `json:"lead_seconds"`
	UISeconds      float64 `json:"ui_seconds"`
	PreSeconds     float64 `json:"pre_seconds,omitempty"`
	StaySeconds    float64 `json:"stay_seconds,omitempty"`
	TriggerSeconds float64 `json:"trigger_seconds,omitempty"`
	Viable         bool    `json:"viable,omitempty"`
}

// Boundaries are the session phase boundaries as seconds from now. Negative values
// are in the past.
type Boundaries struct {
	LeadInSeconds   float64 `json:"lead_in_seconds"`
	OpensInSeconds  float64 `json:"opens_in_seconds"`
	ClosesInSeconds float64 `json:"closes_in_seconds"`
}

// FailureEvent is published when a playback attempt fails.
type FailureEvent struct {
	SourceID      string    `json:"source_id"`
	Kind          string    `json:"kind"`
	Reason        string    `json:"reason"`
	Token         uint64    `json:"token"`
	FailCount     int       `json:"fail_count"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

// VoteEvent is published when a vote resolves.
type VoteEvent struct {
	Decision vote.Decision `json:"decision"`
	Tally    vote.Tally    `json:"tally"`
	Manual   bool          `json:"manual"`
	Forced   bool          `json:"forced"`
	SourceID string        `json:"source_id"`
}

// Sink receives everything the scheduler emits. Calls happen on the scheduler's
// goroutine and must not block.
type Sink interface {
	State(Snapshot)
	HealthFailure(FailureEvent)
	VoteResolved(VoteEvent)
}

type nopSink struct{}

func (nopSink) State(Snapshot)             {}
func (nopSink) HealthFailure(FailureEvent) {}
func (nopSink) VoteResolved(VoteEvent)     {}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}

func configuredTiming(c vote.Config) VoteTiming {
	return VoteTiming{
		WindowSeconds: seconds(c.Window),
		VoteAtSeconds: seconds(c.VoteAt),
		LeadSeconds:   seconds(c.Lead),
		UISeconds:     seconds(c.UI),
		StaySeconds:   seconds(c.StayLength),
	}
}

func resolvedTiming(t vote.Timing) VoteTiming {
	return VoteTiming{
		WindowSeconds:  seconds(t.Window),
		VoteAtSeconds:  seconds(t.VoteAt),
		LeadSeconds:    seconds(t.Lead),
		UISeconds:      seconds(t.UI),
		PreSeconds:     seconds(t.Pre),
		TriggerSeconds: seconds(t.Trigger),
		Viable:         t.Viable,
	}
}
