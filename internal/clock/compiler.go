/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/camrotator/internal/command"
	"github.com/friendsincode/camrotator/internal/models"
	"github.com/friendsincode/camrotator/internal/rotation"
	"github.com/friendsincode/camrotator/internal/vote"
)

const (
	defaultHorizon = time.Hour
	defaultStep    = 500 * time.Millisecond
	endOpen        = "open"
	endTimer       = "timer"
)

// ErrInvalidOptions is returned for options a simulation cannot run with.
var ErrInvalidOptions = errors.New("invalid simulation options")

// Options shapes a simulated run. Every attempt is answered by a simulated player:
// sources listed in Broken always fail, the rest fail with FailureRate and report
// progress otherwise. Voters cast one ballot each per binding window.
type Options struct {
	Start       time.Time
	Horizon     time.Duration
	Step        time.Duration
	Seed        int64
	FailureRate float64
	Broken      []string
	Voters      int
	StayShare   float64
}

// Report is the compiled timeline.
type Report struct {
	Segments []Segment
	Failures []rotation.FailureEvent
	Votes    []rotation.VoteEvent
}

// Planner compiles rotation timelines.
type Planner struct {
	cfg     rotation.Config
	sources []models.Source
	logger  zerolog.Logger
}

// NewPlanner constructs a planner over a catalog.
func NewPlanner(cfg rotation.Config, sources []models.Source, logger zerolog.Logger) *Planner {
	return &Planner{cfg: cfg, sources: sources, logger: logger}
}

// Compile runs the scheduler on a manual clock over the requested horizon.
func (p *Planner) Compile(opts Options) (Report, error) {
	if opts.Horizon <= 0 {
		opts.Horizon = defaultHorizon
	}
	if opts.Step <= 0 {
		opts.Step = defaultStep
	}
	if opts.Start.IsZero() {
		opts.Start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if opts.FailureRate < 0 || opts.FailureRate > 1 {
		return Report{}, fmt.Errorf("%w: failure rate %v outside [0,1]", ErrInvalidOptions, opts.FailureRate)
	}
	if opts.StayShare < 0 || opts.StayShare > 1 {
		return Report{}, fmt.Errorf("%w: stay share %v outside [0,1]", ErrInvalidOptions, opts.StayShare)
	}
	if opts.Voters < 0 {
		return Report{}, fmt.Errorf("%w: negative voter count", ErrInvalidOptions)
	}

	clk := NewManual(opts.Start)
	rec := &recorder{}
	rng := rand.New(rand.NewSource(opts.Seed))
	sched := rotation.New(p.cfg, p.sources, p.logger,
		rotation.WithClock(clk.Now),
		rotation.WithSeed(opts.Seed),
		rotation.WithSink(rec),
	)

	broken := make(map[string]bool, len(opts.Broken))
	for _, id := range opts.Broken {
		broken[id] = true
	}

	sched.Start(true)
	end := opts.Start.Add(opts.Horizon)
	var (
		answered  uint64
		prevPhase = vote.PhaseIdle
	)
	for clk.Now().Before(end) {
		snap := rec.latest

		if tok := snap.Health.Token; tok != 0 && tok != answered && snap.SourceID != "" {
			answered = tok
			if broken[snap.SourceID] || rng.Float64() < opts.FailureRate {
				sched.Apply(command.PlaybackError{Token: tok, Reason: "simulated"})
			} else {
				sched.Apply(command.PlaybackProgress{Token: tok})
			}
		}

		phase := rec.latest.Vote.Phase
		if phase == vote.PhaseVote && prevPhase != vote.PhaseVote {
			for i := 0; i < opts.Voters; i++ {
				choice := string(vote.DecisionAdvance)
				if rng.Float64() < opts.StayShare {
					choice = string(vote.DecisionStay)
				}
				sched.Apply(command.CastBallot{Identity: fmt.Sprintf("viewer-%d", i), Choice: choice})
			}
		}
		prevPhase = phase

		sched.Tick(clk.Advance(opts.Step))
	}
	rec.finish(clk.Now())

	p.logger.Debug().
		Int("segments", len(rec.segments)).
		Int("failures", len(rec.failures)).
		Int("votes", len(rec.votes)).
		Msg("simulation compiled")

	return Report{Segments: rec.segments, Failures: rec.failures, Votes: rec.votes}, nil
}

// recorder turns the scheduler's output into segments. A segment ends when the
// source or the playback attempt changes.
type recorder struct {
	latest   rotation.Snapshot
	current  *Segment
	token    uint64
	reason   string
	segments []Segment
	failures []rotation.FailureEvent
	votes    []rotation.VoteEvent
}

func (r *recorder) State(snap rotation.Snapshot) {
	r.latest = snap
	if r.current != nil && r.current.SourceID == snap.SourceID && r.token == snap.Health.Token {
		return
	}

	reason := r.reason
	if reason == "" {
		reason = endTimer
	}
	r.close(snap.At, reason)
	r.reason = ""
	r.token = snap.Health.Token
	if snap.SourceID == "" {
		return
	}
	r.current = &Segment{SourceID: snap.SourceID, Kind: snap.SourceKind, StartsAt: snap.At}
}

func (r *recorder) HealthFailure(ev rotation.FailureEvent) {
	r.failures = append(r.failures, ev)
	r.reason = rotation.ReasonHealth
}

func (r *recorder) VoteResolved(ev rotation.VoteEvent) {
	r.votes = append(r.votes, ev)
	if ev.Decision == vote.DecisionAdvance {
		r.reason = rotation.ReasonVote
	}
}

func (r *recorder) close(at time.Time, reason string) {
	if r.current == nil {
		return
	}
	r.current.EndsAt = at
	r.current.Duration = at.Sub(r.current.StartsAt)
	r.current.EndReason = reason
	r.segments = append(r.segments, *r.current)
	r.current = nil
}

func (r *recorder) finish(at time.Time) {
	r.close(at, endOpen)
}
