/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package vote runs the audience vote that can end a round early or extend it.
package vote

import (
	"strings"
	"time"
)

// Phase is the vote session state.
type Phase string

const (
	PhaseIdle Phase = "idle"
	PhasePre  Phase = "pre"
	PhaseLead Phase = "lead"
	PhaseVote Phase = "vote"
)

// Choice is a ballot value.
type Choice string

const (
	ChoiceAdvance Choice = "advance"
	ChoiceStay    Choice = "stay"
)

// ParseChoice accepts the two canonical ballot values.
func ParseChoice(s string) (Choice, bool) {
	switch Choice(strings.ToLower(strings.TrimSpace(s))) {
	case ChoiceAdvance:
		return ChoiceAdvance, true
	case ChoiceStay:
		return ChoiceStay, true
	}
	return "", false
}

// Decision is the outcome of a resolved session.
type Decision string

const (
	DecisionAdvance Decision = "advance"
	DecisionStay    Decision = "stay"
)

// Tally counts ballots.
type Tally struct {
	Advance int `json:"advance"`
	Stay    int `json:"stay"`
}

// Total is the number of ballots cast.
func (t Tally) Total() int {
	return t.Advance + t.Stay
}

// Decide resolves a tally. No ballots and ties both advance.
func Decide(t Tally) Decision {
	if t.Total() == 0 || t.Advance >= t.Stay {
		return DecisionAdvance
	}
	return DecisionStay
}

// Outcome is what the scheduler receives when a session resolves.
type Outcome struct {
	Decision Decision
	Tally    Tally
	Manual   bool
	Forced   bool
}

// Session is the single active vote. Boundaries are fixed when it is created.
type Session struct {
	Phase     Phase
	Manual    bool
	PreStart  time.Time
	LeadStart time.Time
	VoteStart time.Time
	VoteEnd   time.Time
	Tally     Tally
	voters    map[string]struct{}
}

func (s *Session) phaseAt(now time.Time) Phase {
	switch {
	case now.Before(s.LeadStart):
		return PhasePre
	case now.Before(s.VoteStart):
		return PhaseLead
	default:
		return PhaseVote
	}
}

// Machine owns the vote session for the current round.
type Machine struct {
	cfg     Config
	timing  Timing
	armed   bool
	session *Session
	frozen  time.Time
}

// NewMachine creates an idle machine with cfg clamped.
func NewMachine(cfg Config) *Machine {
	return &Machine{cfg: cfg.Clamp()}
}

// Config returns the configured timing.
func (m *Machine) Config() Config {
	return m.cfg
}

// Timing returns the timing resolved for the current round.
func (m *Machine) Timing() Timing {
	return m.timing
}

// Configure replaces the timing and re-resolves it for the current round. An active
// session keeps the boundaries it was created with.
func (m *Machine) Configure(cfg Config) {
	m.cfg = cfg.Clamp()
	m.timing = ResolveTiming(m.cfg, m.timing.Round)
	if !m.cfg.Enabled && m.session != nil && !m.session.Manual {
		m.session = nil
	}
}

// Rearm starts a new round: the session is dropped and one automatic vote is allowed.
func (m *Machine) Rearm(round time.Duration) {
	m.session = nil
	m.armed = true
	m.frozen = time.Time{}
	m.timing = ResolveTiming(m.cfg, round)
}

// Disarm prevents an automatic vote for the rest of the round.
func (m *Machine) Disarm() {
	m.armed = false
}

// Active reports whether a session exists.
func (m *Machine) Active() bool {
	return m.session != nil
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	if m.session == nil {
		return PhaseIdle
	}
	return m.session.Phase
}

// Session returns a copy of the active session.
func (m *Machine) Session() (Session, bool) {
	if m.session == nil {
		return Session{}, false
	}
	s := *m.session
	s.voters = nil
	return s, true
}

// Tick triggers, advances and resolves the session. deadline is the absolute end of
// the round; the machine must only be ticked while the round is playing.
func (m *Machine) Tick(now, deadline time.Time) (Outcome, bool) {
	if m.session == nil {
		m.maybeTrigger(now, deadline)
	}
	s := m.session
	if s == nil {
		return Outcome{}, false
	}
	if !now.Before(s.VoteEnd) {
		return m.resolve(false), true
	}
	s.Phase = s.phaseAt(now)
	return Outcome{}, false
}

func (m *Machine) maybeTrigger(now, deadline time.Time) {
	if !m.armed || !m.cfg.Enabled || !m.timing.Viable {
		return
	}
	remaining := deadline.Sub(now)
	if remaining <= 0 || remaining > m.timing.Trigger {
		return
	}
	m.armed = false
	if remaining <= m.timing.VoteAt {
		// binding window already over for this round
		return
	}
	voteEnd := deadline.Add(-m.timing.VoteAt)
	voteStart := voteEnd.Add(-m.timing.Window)
	leadStart := voteStart.Add(-m.timing.Lead)
	s := &Session{
		VoteEnd:   voteEnd,
		VoteStart: voteStart,
		LeadStart: leadStart,
		PreStart:  leadStart.Add(-m.timing.Pre),
		voters:    make(map[string]struct{}),
	}
	s.Phase = s.phaseAt(now)
	m.session = s
}

// StartManual opens a binding window immediately. It replaces a session that is still
// announcing and is a no-op while ballots are already being taken.
func (m *Machine) StartManual(now time.Time, window time.Duration) bool {
	if m.session != nil && m.phaseAt(now) == PhaseVote {
		return false
	}
	window = clampDuration(window, minManualWindow, maxWindow)
	m.session = &Session{
		Phase:     PhaseVote,
		Manual:    true,
		PreStart:  now,
		LeadStart: now,
		VoteStart: now,
		VoteEnd:   now.Add(window),
		voters:    make(map[string]struct{}),
	}
	m.armed = false
	return true
}

// Cast records one ballot. Each identity votes once per session, and only while the
// binding window is open.
func (m *Machine) Cast(identity string, choice Choice, now time.Time) bool {
	s := m.session
	if s == nil || !m.frozen.IsZero() || s.phaseAt(now) != PhaseVote || !now.Before(s.VoteEnd) {
		return false
	}
	identity = strings.ToLower(strings.TrimSpace(identity))
	if identity == "" {
		return false
	}
	if _, seen := s.voters[identity]; seen {
		return false
	}
	switch choice {
	case ChoiceAdvance:
		s.Tally.Advance++
	case ChoiceStay:
		s.Tally.Stay++
	default:
		return false
	}
	s.voters[identity] = struct{}{}
	return true
}

// Stop ends the session early. A session whose binding window is open at now is
// resolved; one that is still announcing is cancelled.
func (m *Machine) Stop(now time.Time) (Outcome, bool) {
	if m.session == nil {
		return Outcome{}, false
	}
	if m.phaseAt(now) != PhaseVote {
		m.session = nil
		return Outcome{}, false
	}
	return m.resolve(true), true
}

// phaseAt reads the session phase at now, holding the clock at the freeze instant
// while the round is paused.
func (m *Machine) phaseAt(now time.Time) Phase {
	if !m.frozen.IsZero() {
		now = m.frozen
	}
	return m.session.phaseAt(now)
}

// ForceResolve resolves whatever session exists, used when the round runs out first.
func (m *Machine) ForceResolve() (Outcome, bool) {
	if m.session == nil {
		return Outcome{}, false
	}
	return m.resolve(true), true
}

// Cancel drops the session without an outcome.
func (m *Machine) Cancel() bool {
	if m.session == nil {
		return false
	}
	m.session = nil
	return true
}

func (m *Machine) resolve(forced bool) Outcome {
	s := m.session
	m.session = nil
	return Outcome{
		Decision: Decide(s.Tally),
		Tally:    s.Tally,
		Manual:   s.Manual,
		Forced:   forced,
	}
}

// Freeze stops the session clock while the round is paused.
func (m *Machine) Freeze(now time.Time) {
	if m.frozen.IsZero() {
		m.frozen = now
	}
}

// Thaw shifts the session boundaries by the time spent frozen.
func (m *Machine) Thaw(now time.Time) {
	if m.frozen.IsZero() {
		return
	}
	paused := now.Sub(m.frozen)
	m.frozen = time.Time{}
	if m.session == nil || paused <= 0 {
		return
	}
	s := m.session
	s.PreStart = s.PreStart.Add(paused)
	s.LeadStart = s.LeadStart.Add(paused)
	s.VoteStart = s.VoteStart.Add(paused)
	s.VoteEnd = s.VoteEnd.Add(paused)
}
