/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rotation drives the cam rotation: which source is on air, for how long,
// and what happens when a round ends, a vote resolves or a source fails.
package rotation

import (
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/camrotator/internal/filter"
	"github.com/friendsincode/camrotator/internal/health"
	"github.com/friendsincode/camrotator/internal/models"
	"github.com/friendsincode/camrotator/internal/telemetry"
	"github.com/friendsincode/camrotator/internal/vote"
)

// Advance reasons.
const (
	ReasonTimer    = "timer"
	ReasonVote     = "vote"
	ReasonManual   = "manual"
	ReasonHealth   = "health_failure"
	ReasonJump     = "go_to_source"
	ReasonFiltered = "filtered"
)

// State is the rotation position. Exactly one of Deadline (playing) and
// PausedRemaining (paused) is meaningful.
type State struct {
	CurrentIndex    int
	Playing         bool
	Segment         time.Duration
	Deadline        time.Time
	PausedRemaining time.Duration
}

type pendingFailure struct {
	token  uint64
	reason string
	at     time.Time
}

// Scheduler owns the rotation state, the cooldown cache, the vote machine and the
// watchdog. It has no locks: every method must be called from one goroutine.
type Scheduler struct {
	cfg      Config
	defaults Config

	order    []models.Source
	eligible []models.Source
	tier     filter.Tier
	banned   map[string]struct{}

	cooldowns *health.FailoverCache
	watchdog  *health.Watchdog
	votes     *vote.Machine

	state       State
	pausedAt    time.Time
	started     bool
	lastAdvance time.Time
	pending     *pendingFailure
	nextExpiry  time.Time

	sink     Sink
	dirty    bool
	lastEmit time.Time

	clock  func() time.Time
	rng    *rand.Rand
	logger zerolog.Logger
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithSeed makes reshuffles deterministic.
func WithSeed(seed int64) Option {
	return func(s *Scheduler) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithSink sets the receiver of snapshots and events.
func WithSink(sink Sink) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// New creates an idle scheduler over catalog. Call Start to begin the first round.
func New(cfg Config, catalog []models.Source, logger zerolog.Logger, opts ...Option) *Scheduler {
	cfg = cfg.Clamp()
	order := make([]models.Source, len(catalog))
	copy(order, catalog)

	s := &Scheduler{
		cfg:       cfg,
		defaults:  cfg,
		order:     order,
		banned:    make(map[string]struct{}),
		cooldowns: health.NewFailoverCache(cfg.Cooldown),
		watchdog:  health.NewWatchdog(cfg.Health),
		votes:     vote.NewMachine(cfg.Vote),
		sink:      nopSink{},
		clock:     time.Now,
		logger:    logger.With().Str("component", "rotation").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

// SetSink replaces the sink.
func (s *Scheduler) SetSink(sink Sink) {
	if sink == nil {
		sink = nopSink{}
	}
	s.sink = sink
}

// Config returns the settings in use.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// State returns a copy of the rotation position.
func (s *Scheduler) State() State {
	return s.state
}

// Eligible returns a copy of the current eligible list.
func (s *Scheduler) Eligible() []models.Source {
	out := make([]models.Source, len(s.eligible))
	copy(out, s.eligible)
	return out
}

// Cooldowns returns the failover cache entries for persistence.
func (s *Scheduler) Cooldowns() []health.CooldownEntry {
	return s.cooldowns.Entries()
}

// Current returns the source on air.
func (s *Scheduler) Current() (models.Source, bool) {
	if s.state.CurrentIndex < 0 || s.state.CurrentIndex >= len(s.eligible) {
		return models.Source{}, false
	}
	return s.eligible[s.state.CurrentIndex], true
}

// Start filters the catalog and begins the first round. It is a no-op once started.
func (s *Scheduler) Start(playing bool) {
	if s.started {
		return
	}
	now := s.clock()
	s.started = true
	s.state.Playing = playing
	if !playing {
		s.pausedAt = now
	}
	s.refilter(now)
	s.startSource(now)
	s.flush(now)
}

// StartRound begins a fresh round of length on the current source without starting
// a new playback attempt.
func (s *Scheduler) StartRound(length time.Duration) {
	now := s.clock()
	s.startRound(now, length)
	s.flush(now)
}

func (s *Scheduler) startRound(now time.Time, length time.Duration) {
	length = clampRound(length)
	s.state.Segment = length
	if s.state.Playing {
		s.state.Deadline = now.Add(length)
		s.state.PausedRemaining = 0
	} else {
		s.state.Deadline = time.Time{}
		s.state.PausedRemaining = length
	}
	s.votes.Rearm(length)
	s.dirty = true
}

// SetPlaying pauses or resumes the round. Remaining time is carried across a pause;
// watchdog deadlines and vote boundaries shift by the paused duration.
func (s *Scheduler) SetPlaying(playing bool) bool {
	now := s.clock()
	changed := s.setPlaying(now, playing)
	s.flush(now)
	return changed
}

func (s *Scheduler) setPlaying(now time.Time, playing bool) bool {
	if s.state.Playing == playing {
		return false
	}
	if playing {
		s.state.Deadline = now.Add(s.state.PausedRemaining)
		s.state.PausedRemaining = 0
		s.pausedAt = time.Time{}
		s.watchdog.Resume(now)
		s.votes.Thaw(now)
	} else {
		remaining := s.state.Deadline.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		s.state.PausedRemaining = remaining
		s.state.Deadline = time.Time{}
		s.pausedAt = now
		s.watchdog.Suspend(now)
		s.votes.Freeze(now)
	}
	s.state.Playing = playing
	s.dirty = true
	s.logger.Info().Bool("playing", playing).Msg("play state changed")
	return true
}

// Advance moves to the neighbouring source. step is +1 or -1 and wraps. Calls made
// within the advance cooldown of the previous change return false.
func (s *Scheduler) Advance(step int, reason string) bool {
	now := s.clock()
	ok := s.advance(now, step, reason, false)
	s.flush(now)
	return ok
}

func (s *Scheduler) advance(now time.Time, step int, reason string, force bool) bool {
	if !force && !s.lastAdvance.IsZero() && now.Sub(s.lastAdvance) < s.cfg.AdvanceCooldown {
		return false
	}
	if len(s.eligible) == 0 {
		s.refilter(now)
		if len(s.eligible) == 0 {
			return false
		}
	}
	if step < 0 {
		step = -1
	} else {
		step = 1
	}

	n := len(s.eligible)
	from := s.eligible[clampIndex(s.state.CurrentIndex, n)].ID
	target := s.eligible[((s.state.CurrentIndex+step)%n+n)%n].ID

	s.refilter(now)
	s.state.CurrentIndex = filter.IndexOf(s.eligible, target)
	s.startSource(now)

	telemetry.RotationAdvancesTotal.WithLabelValues(reason).Inc()
	s.logger.Info().
		Str("from", from).
		Str("to", s.currentID()).
		Str("reason", reason).
		Msg("advanced")
	return true
}

// startSource begins a fresh round and a new playback attempt on the current source.
func (s *Scheduler) startSource(now time.Time) {
	s.lastAdvance = now
	s.pending = nil

	src, ok := s.Current()
	if !ok {
		s.watchdog.Cancel()
		s.votes.Rearm(s.cfg.RoundLength)
		s.state.Segment = s.cfg.RoundLength
		s.state.Deadline = time.Time{}
		s.state.PausedRemaining = 0
		s.dirty = true
		return
	}

	s.startRound(now, s.effectiveDuration(src))
	token := s.watchdog.Begin(src.ID, src.Kind, now)
	if !s.state.Playing {
		s.watchdog.Suspend(now)
	}
	if !src.Kind.Playable() {
		if f, failed := s.watchdog.FailNow(token, health.ClassUnsupported, health.ReasonUnsupported); failed {
			s.handleFailure(now, f)
		}
	}
}

// effectiveDuration is the source override, else the image round for stills, else the
// configured round length.
func (s *Scheduler) effectiveDuration(src models.Source) time.Duration {
	if src.MaxSeconds > 0 {
		return clampRound(fromSeconds(src.MaxSeconds))
	}
	if src.Kind == models.SourceKindStillImage {
		return s.cfg.ImageRoundLength
	}
	return s.cfg.RoundLength
}

// Refilter recomputes the eligible list. When the source on air drops out of the list
// the rotation moves to the new current source.
func (s *Scheduler) Refilter() {
	now := s.clock()
	s.refilterAndFollow(now)
	s.flush(now)
}

func (s *Scheduler) refilterAndFollow(now time.Time) {
	if s.refilter(now) && s.started {
		s.startSource(now)
		telemetry.RotationAdvancesTotal.WithLabelValues(ReasonFiltered).Inc()
		s.logger.Info().Str("to", s.currentID()).Msg("source on air left the eligible list")
	}
}

// refilter replaces the eligible list, keeping the current source if it survived. It
// reports whether the current source changed.
func (s *Scheduler) refilter(now time.Time) bool {
	prevID := s.currentID()
	s.cooldowns.Prune(now)
	res := filter.Select(s.order, filter.Options{
		Banned:    s.banned,
		Cooldowns: s.cooldowns,
		Mode:      s.cfg.Mode,
		Now:       now,
	})
	if res.Tier != s.tier && res.Tier > filter.TierFiltered {
		s.logger.Warn().Str("tier", res.Tier.String()).Int("eligible", len(res.Sources)).Msg("filter fell back")
	}
	s.eligible = res.Sources
	s.tier = res.Tier

	idx, found := filter.Find(s.eligible, prevID)
	if !found {
		idx = 0
	}
	s.state.CurrentIndex = idx
	s.nextExpiry, _ = s.cooldowns.NextExpiry(now)
	s.dirty = true

	telemetry.RotationEligibleSources.Set(float64(len(s.eligible)))
	telemetry.RotationFilterTier.Set(float64(res.Tier))
	telemetry.HealthActiveCooldowns.Set(float64(s.cooldowns.Active(now)))

	return len(s.eligible) > 0 && !found
}

// Tick runs one scheduling step: vote phases first, then the round deadline, then the
// watchdog, then the heartbeat.
func (s *Scheduler) Tick(now time.Time) {
	if !s.started {
		return
	}

	// Expired cooldowns put sources back into rotation.
	if !s.nextExpiry.IsZero() && !now.Before(s.nextExpiry) {
		s.refilterAndFollow(now)
	}

	if s.state.Playing && !s.state.Deadline.IsZero() {
		if outcome, ok := s.votes.Tick(now, s.state.Deadline); ok {
			s.applyOutcome(now, outcome)
		}
		if !s.state.Deadline.IsZero() && !now.Before(s.state.Deadline) {
			if outcome, ok := s.votes.ForceResolve(); ok {
				s.applyOutcome(now, outcome)
			} else {
				s.advance(now, 1, ReasonTimer, false)
			}
		}
	}

	if f, failed := s.watchdog.Check(now); failed {
		s.handleFailure(now, f)
	}
	if p := s.pending; p != nil && !now.Before(p.at) {
		if p.token != s.watchdog.Token() {
			s.pending = nil
		} else if s.advance(now, 1, ReasonHealth, false) {
			s.logger.Debug().Str("failure", p.reason).Msg("skipped failed source")
		}
	}

	if now.Sub(s.lastEmit) >= s.cfg.HeartbeatInterval {
		s.dirty = true
	}
	s.flush(now)
}

func (s *Scheduler) applyOutcome(now time.Time, o vote.Outcome) {
	trigger := "auto"
	if o.Manual {
		trigger = "manual"
	}
	telemetry.VoteOutcomesTotal.WithLabelValues(string(o.Decision), trigger).Inc()
	s.logger.Info().
		Str("decision", string(o.Decision)).
		Int("advance", o.Tally.Advance).
		Int("stay", o.Tally.Stay).
		Bool("manual", o.Manual).
		Bool("forced", o.Forced).
		Msg("vote resolved")

	s.sink.VoteResolved(VoteEvent{
		Decision: o.Decision,
		Tally:    o.Tally,
		Manual:   o.Manual,
		Forced:   o.Forced,
		SourceID: s.currentID(),
	})
	s.dirty = true

	if o.Decision == vote.DecisionStay {
		s.startRound(now, s.cfg.Vote.StayLength)
		return
	}
	s.advance(now, 1, ReasonVote, true)
}

// handleFailure penalises the failing source, drops any vote and schedules the skip.
func (s *Scheduler) handleFailure(now time.Time, f health.Failure) {
	entry := s.cooldowns.RecordFailure(f.SourceID, f.Reason, now)
	s.votes.Cancel()
	s.votes.Disarm()
	s.pending = &pendingFailure{token: f.Token, reason: f.Reason, at: now.Add(s.cfg.FailureGrace)}
	// an earlier expiry that has not been refiltered yet must survive
	if s.nextExpiry.IsZero() || entry.Until.Before(s.nextExpiry) {
		s.nextExpiry = entry.Until
	}
	s.dirty = true

	telemetry.HealthFailuresTotal.WithLabelValues(string(f.Kind), string(f.Class)).Inc()
	telemetry.HealthActiveCooldowns.Set(float64(s.cooldowns.Active(now)))
	s.logger.Warn().
		Str("source_id", f.SourceID).
		Str("kind", string(f.Kind)).
		Str("reason", f.Reason).
		Uint64("token", f.Token).
		Int("fail_count", entry.FailCount).
		Time("cooldown_until", entry.Until).
		Msg("playback failed")

	s.sink.HealthFailure(FailureEvent{
		SourceID:      f.SourceID,
		Kind:          string(f.Kind),
		Reason:        f.Reason,
		Token:         f.Token,
		FailCount:     entry.FailCount,
		CooldownUntil: entry.Until,
	})
}

// Snapshot builds the outward view at now.
func (s *Scheduler) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		Playing:        s.state.Playing,
		Index:          s.state.CurrentIndex,
		Total:          len(s.eligible),
		SegmentSeconds: seconds(s.state.Segment),
		Tier:           s.tier.String(),
		AutoSkip:       s.cfg.AutoSkip,
		Mode:           string(s.cfg.Mode),
		Cooldowns:      s.cooldowns.Active(now),
		Banned:         len(s.banned),
		At:             now,
	}
	if src, ok := s.Current(); ok {
		snap.SourceID = src.ID
		snap.SourceKind = string(src.Kind)
		snap.SourceTitle = src.Title
		snap.SourceURL = src.URL
	}
	snap.RemainingSeconds = seconds(s.remaining(now))

	hc := s.watchdog.Config()
	snap.Health = HealthView{
		StartTimeoutMS: hc.StartTimeout.Milliseconds(),
		StallTimeoutMS: hc.StallTimeout.Milliseconds(),
		MaxStalls:      hc.MaxStalls,
		Token:          s.watchdog.Token(),
		Status:         s.watchdog.Status(now),
	}

	snap.Vote = VoteView{
		Enabled:    s.cfg.Vote.Enabled,
		Phase:      vote.PhaseIdle,
		Configured: configuredTiming(s.cfg.Vote),
		Resolved:   resolvedTiming(s.votes.Timing()),
	}
	if sess, ok := s.votes.Session(); ok {
		// Boundaries stay frozen while paused.
		ref := now
		if !s.state.Playing && !s.pausedAt.IsZero() {
			ref = s.pausedAt
		}
		snap.Vote.Phase = sess.Phase
		snap.Vote.Manual = sess.Manual
		snap.Vote.Tally = sess.Tally
		snap.Vote.Boundaries = &Boundaries{
			LeadInSeconds:   seconds(sess.LeadStart.Sub(ref)),
			OpensInSeconds:  seconds(sess.VoteStart.Sub(ref)),
			ClosesInSeconds: seconds(sess.VoteEnd.Sub(ref)),
		}
	}
	return snap
}

func (s *Scheduler) remaining(now time.Time) time.Duration {
	if !s.state.Playing {
		return s.state.PausedRemaining
	}
	if s.state.Deadline.IsZero() {
		return 0
	}
	if r := s.state.Deadline.Sub(now); r > 0 {
		return r
	}
	return 0
}

// flush emits one snapshot when anything changed since the last one.
func (s *Scheduler) flush(now time.Time) {
	if !s.dirty {
		return
	}
	s.dirty = false
	s.lastEmit = now
	telemetry.RotationPlaying.Set(boolGauge(s.state.Playing))
	s.sink.State(s.Snapshot(now))
}

// Checkpoint captures what is needed to resume the rotation after a restart.
func (s *Scheduler) Checkpoint(now time.Time) models.RotationCheckpoint {
	banned := make([]string, 0, len(s.banned))
	for id := range s.banned {
		banned = append(banned, id)
	}
	sort.Strings(banned)
	return models.RotationCheckpoint{
		ID:               models.CheckpointID,
		SourceID:         s.currentID(),
		Playing:          s.state.Playing,
		RemainingSeconds: int(s.remaining(now).Round(time.Second) / time.Second),
		SegmentSeconds:   int(s.state.Segment / time.Second),
		AutoSkip:         s.cfg.AutoSkip,
		Mode:             string(s.cfg.Mode),
		Banned:           banned,
		UpdatedAt:        now,
	}
}

// Restore loads a checkpoint and cooldown entries and starts the rotation from them.
// It replaces Start; on a started scheduler (a leader taking over again) it discards
// the local position. A checkpoint whose source is gone starts at the first source.
func (s *Scheduler) Restore(cp models.RotationCheckpoint, cooldowns []health.CooldownEntry) {
	now := s.clock()
	s.started = true
	s.votes.Cancel()
	s.cooldowns.Restore(cooldowns)
	s.banned = make(map[string]struct{}, len(cp.Banned))
	s.pausedAt = time.Time{}
	s.state.PausedRemaining = 0
	for _, id := range cp.Banned {
		s.banned[id] = struct{}{}
	}
	s.cfg.AutoSkip = cp.AutoSkip
	s.cfg.Health.AutoSkip = cp.AutoSkip
	s.watchdog.SetAutoSkip(cp.AutoSkip)
	if cp.Mode != "" {
		s.cfg.Mode = filter.ParseMode(cp.Mode)
	}
	s.state.Playing = cp.Playing
	if !cp.Playing {
		s.pausedAt = now
	}

	s.refilter(now)
	idx, found := filter.Find(s.eligible, cp.SourceID)
	if !found || cp.SegmentSeconds <= 0 || cp.RemainingSeconds <= 0 {
		s.state.CurrentIndex = 0
		s.startSource(now)
		s.flush(now)
		return
	}

	s.state.CurrentIndex = idx
	s.startSource(now)
	segment := clampRound(fromSeconds(cp.SegmentSeconds))
	remaining := fromSeconds(cp.RemainingSeconds)
	if remaining > segment {
		remaining = segment
	}
	s.state.Segment = segment
	if s.state.Playing {
		s.state.Deadline = now.Add(remaining)
	} else {
		s.state.PausedRemaining = remaining
	}
	s.votes.Rearm(segment)
	s.logger.Info().
		Str("source_id", cp.SourceID).
		Dur("remaining", remaining).
		Int("cooldowns", len(cooldowns)).
		Msg("restored rotation checkpoint")
	s.flush(now)
}

func (s *Scheduler) currentID() string {
	if src, ok := s.Current(); ok {
		return src.ID
	}
	return ""
}

func clampIndex(i, n int) int {
	if i < 0 || i >= n {
		return 0
	}
	return i
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
