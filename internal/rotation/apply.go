/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rotation

import (
	"math/rand"
	"strings"
	"time"

	"github.com/friendsincode/camrotator/internal/command"
	"github.com/friendsincode/camrotator/internal/filter"
	"github.com/friendsincode/camrotator/internal/health"
	"github.com/friendsincode/camrotator/internal/telemetry"
	"github.com/friendsincode/camrotator/internal/vote"
)

// Apply executes one command. It never fails: out of range values are clamped and
// commands that cannot take effect (stale tokens, duplicate ballots, unknown ids)
// return false and change nothing.
func (s *Scheduler) Apply(cmd command.Command) bool {
	now := s.clock()
	ok := s.apply(now, cmd)
	result := "applied"
	if !ok {
		result = "ignored"
	}
	telemetry.EngineCommandsTotal.WithLabelValues(string(cmd.Type()), result).Inc()
	s.flush(now)
	return ok
}

func (s *Scheduler) apply(now time.Time, cmd command.Command) bool {
	if !s.started {
		return false
	}

	switch c := cmd.(type) {
	case command.Advance:
		return s.advance(now, c.Direction.Step(), ReasonManual, false)

	case command.SetPlaying:
		return s.setPlaying(now, c.Playing)

	case command.SetRoundLength:
		s.cfg.RoundLength = clampRound(fromSeconds(c.Seconds))
		if src, ok := s.Current(); ok {
			s.startRound(now, s.effectiveDuration(src))
		}
		return true

	case command.Reshuffle:
		return s.reshuffle(now, c.Seed)

	case command.GoToSource:
		return s.goTo(now, strings.TrimSpace(c.SourceID))

	case command.Ban:
		id := strings.TrimSpace(c.SourceID)
		if _, dup := s.banned[id]; dup {
			return false
		}
		s.banned[id] = struct{}{}
		s.logger.Info().Str("source_id", id).Msg("source banned")
		s.refilterAndFollow(now)
		return true

	case command.Unban:
		id := strings.TrimSpace(c.SourceID)
		if _, ok := s.banned[id]; !ok {
			return false
		}
		delete(s.banned, id)
		s.logger.Info().Str("source_id", id).Msg("source unbanned")
		s.refilterAndFollow(now)
		return true

	case command.SetAutoSkip:
		s.cfg.AutoSkip = c.Enabled
		s.cfg.Health.AutoSkip = c.Enabled
		s.watchdog.SetAutoSkip(c.Enabled)
		s.dirty = true
		return true

	case command.SetPlaybackMode:
		mode := filter.ParseMode(c.Mode)
		if mode == s.cfg.Mode {
			return false
		}
		s.cfg.Mode = mode
		s.refilterAndFollow(now)
		return true

	case command.StartVote:
		if !s.state.Playing || len(s.eligible) == 0 {
			return false
		}
		window := fromSeconds(c.WindowSeconds)
		if window <= 0 {
			window = s.cfg.Vote.Window
		}
		if !s.votes.StartManual(now, window) {
			return false
		}
		s.dirty = true
		return true

	case command.StopVote:
		if !s.votes.Active() {
			return false
		}
		if outcome, ok := s.votes.Stop(now); ok {
			s.applyOutcome(now, outcome)
			return true
		}
		// a session still announcing is cancelled without an outcome
		s.dirty = true
		return true

	case command.ConfigureVote:
		s.cfg.Vote = mergeVote(s.cfg.Vote, c)
		s.votes.Configure(s.cfg.Vote)
		s.cfg.Vote = s.votes.Config()
		s.dirty = true
		return true

	case command.ConfigureHealth:
		s.cfg.Health = mergeHealth(s.cfg.Health, c)
		s.watchdog.Configure(s.cfg.Health)
		s.cfg.Health = s.watchdog.Config()
		s.dirty = true
		return true

	case command.ResetDefaults:
		return s.resetDefaults(now)

	case command.CastBallot:
		choice, ok := vote.ParseChoice(c.Choice)
		if ok {
			ok = s.votes.Cast(c.Identity, choice, now)
		}
		if !ok {
			telemetry.VoteBallotsTotal.WithLabelValues("rejected").Inc()
			return false
		}
		telemetry.VoteBallotsTotal.WithLabelValues("accepted").Inc()
		s.dirty = true
		return true

	case command.PlaybackProgress:
		applied, first := s.watchdog.Progress(c.Token, now)
		if first {
			if src, ok := s.Current(); ok && s.cooldowns.RecordSuccess(src.ID) {
				s.logger.Info().Str("source_id", src.ID).Msg("source recovered")
			}
			s.dirty = true
		}
		return applied

	case command.PlaybackStall:
		if c.Token != s.watchdog.Token() {
			return false
		}
		if f, failed := s.watchdog.Stall(c.Token, c.Reason, now); failed {
			s.handleFailure(now, f)
		}
		s.dirty = true
		return true

	case command.PlaybackError:
		if c.Token != s.watchdog.Token() {
			return false
		}
		if f, failed := s.watchdog.Error(c.Token, c.Reason, now); failed {
			s.handleFailure(now, f)
		}
		s.dirty = true
		return true
	}

	s.logger.Warn().Str("type", string(cmd.Type())).Msg("command not handled")
	return false
}

func (s *Scheduler) reshuffle(now time.Time, seed int64) bool {
	if len(s.order) < 2 {
		return false
	}
	rng := s.rng
	if seed != 0 {
		rng = rand.New(rand.NewSource(seed))
	}
	rng.Shuffle(len(s.order), func(i, j int) {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	})
	s.refilter(now)
	return true
}

// goTo jumps to id when it is eligible. It bypasses the advance cooldown.
func (s *Scheduler) goTo(now time.Time, id string) bool {
	s.refilter(now)
	idx, ok := filter.Find(s.eligible, id)
	if !ok {
		return false
	}
	s.state.CurrentIndex = idx
	s.startSource(now)
	telemetry.RotationAdvancesTotal.WithLabelValues(ReasonJump).Inc()
	s.logger.Info().Str("to", id).Msg("jumped to source")
	return true
}

// resetDefaults restores the boot configuration. Bans and cooldowns are kept.
func (s *Scheduler) resetDefaults(now time.Time) bool {
	prevMode := s.cfg.Mode
	s.cfg = s.defaults
	s.votes.Configure(s.cfg.Vote)
	s.watchdog.Configure(s.cfg.Health)
	if s.cfg.Mode != prevMode {
		s.refilterAndFollow(now)
	}
	s.dirty = true
	s.logger.Info().Msg("configuration reset to defaults")
	return true
}

func mergeVote(cfg vote.Config, c command.ConfigureVote) vote.Config {
	if c.Enabled != nil {
		cfg.Enabled = *c.Enabled
	}
	if c.WindowSeconds != nil {
		cfg.Window = fromSeconds(*c.WindowSeconds)
	}
	if c.VoteAtSeconds != nil {
		cfg.VoteAt = fromSeconds(*c.VoteAtSeconds)
	}
	if c.LeadSeconds != nil {
		cfg.Lead = fromSeconds(*c.LeadSeconds)
	}
	if c.UISeconds != nil {
		cfg.UI = fromSeconds(*c.UISeconds)
	}
	if c.StaySeconds != nil {
		cfg.StayLength = fromSeconds(*c.StaySeconds)
	}
	return cfg
}

func mergeHealth(cfg health.Config, c command.ConfigureHealth) health.Config {
	if c.StartTimeoutMS != nil {
		cfg.StartTimeout = scaled(int64(*c.StartTimeoutMS), time.Millisecond)
	}
	if c.StallTimeoutMS != nil {
		cfg.StallTimeout = scaled(int64(*c.StallTimeoutMS), time.Millisecond)
	}
	if c.MaxStalls != nil {
		cfg.MaxStalls = *c.MaxStalls
	}
	return cfg
}
