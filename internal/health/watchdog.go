/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package health watches playback attempts and penalises sources that fail to play.
package health

import (
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/camrotator/internal/models"
)

const (
	DefaultStartTimeout = 20 * time.Second
	DefaultStallTimeout = 15 * time.Second
	DefaultMaxStalls    = 4

	minTimeout   = time.Second
	maxTimeout   = 5 * time.Minute
	minMaxStalls = 1
	maxMaxStalls = 50
)

// Reason strings reported on failure.
const (
	ReasonUnsupported = "unsupported_source"
	reasonUnknown     = "unknown"
)

// Config controls when a playback attempt is declared failed.
type Config struct {
	StartTimeout time.Duration
	StallTimeout time.Duration
	MaxStalls    int
	AutoSkip     bool
}

// DefaultConfig returns the stock watchdog settings.
func DefaultConfig() Config {
	return Config{
		StartTimeout: DefaultStartTimeout,
		StallTimeout: DefaultStallTimeout,
		MaxStalls:    DefaultMaxStalls,
		AutoSkip:     true,
	}
}

// Clamp bounds every field instead of rejecting it.
func (c Config) Clamp() Config {
	c.StartTimeout = clampDuration(c.StartTimeout, minTimeout, maxTimeout)
	c.StallTimeout = clampDuration(c.StallTimeout, minTimeout, maxTimeout)
	if c.MaxStalls < minMaxStalls {
		c.MaxStalls = minMaxStalls
	}
	if c.MaxStalls > maxMaxStalls {
		c.MaxStalls = maxMaxStalls
	}
	return c
}

// Attempt is one playback attempt, scoped to its token.
type Attempt struct {
	Token         uint64
	SourceID      string
	Kind          models.SourceKind
	StartedAt     time.Time
	StartDeadline time.Time
	StallDeadline time.Time
	StallReason   string
	StallCount    int
	StartedOK     bool
	LastProgress  time.Time
	Failed        bool
}

// FailureClass buckets failure reasons into a small fixed set for metrics.
type FailureClass string

const (
	ClassStartTimeout FailureClass = "start_timeout"
	ClassStallTimeout FailureClass = "stall_timeout"
	ClassStallLimit   FailureClass = "stall_limit"
	ClassError        FailureClass = "error"
	ClassUnsupported  FailureClass = "unsupported"
)

// Failure is a failed attempt the scheduler must act on.
type Failure struct {
	Token    uint64
	SourceID string
	Kind     models.SourceKind
	Class    FailureClass
	Reason   string
}

// Status is a diagnostic view of the watchdog.
type Status struct {
	Token         uint64  `json:"token"`
	SourceID      string  `json:"source_id,omitempty"`
	StartedOK     bool    `json:"started_ok"`
	StallCount    int     `json:"stall_count"`
	StartPending  bool    `json:"start_pending"`
	StallPending  bool    `json:"stall_pending"`
	Failed        bool    `json:"failed"`
	Suspended     bool    `json:"suspended"`
	WouldFail     int     `json:"would_fail"`
	LastReason    string  `json:"last_reason,omitempty"`
	SinceProgress float64 `json:"since_progress_seconds,omitempty"`
}

// Watchdog arms start and stall deadlines per attempt. It never runs timers of its
// own; Check compares the stored deadlines against now.
type Watchdog struct {
	cfg         Config
	lastToken   uint64
	attempt     *Attempt
	suspendedAt time.Time
	wouldFail   int
	lastReason  string
}

// NewWatchdog creates a watchdog with cfg clamped.
func NewWatchdog(cfg Config) *Watchdog {
	return &Watchdog{cfg: cfg.Clamp()}
}

// Config returns the settings in use.
func (w *Watchdog) Config() Config {
	return w.cfg
}

// Configure replaces the settings. Deadlines already armed keep their values.
func (w *Watchdog) Configure(cfg Config) {
	w.cfg = cfg.Clamp()
}

// SetAutoSkip toggles whether failures are reported.
func (w *Watchdog) SetAutoSkip(on bool) {
	w.cfg.AutoSkip = on
}

// Token returns the current attempt token (0 before the first attempt).
func (w *Watchdog) Token() uint64 {
	return w.lastToken
}

// Current returns a copy of the live attempt.
func (w *Watchdog) Current() (Attempt, bool) {
	if w.attempt == nil {
		return Attempt{}, false
	}
	return *w.attempt, true
}

// Begin supersedes any previous attempt and arms the start deadline.
func (w *Watchdog) Begin(sourceID string, kind models.SourceKind, now time.Time) uint64 {
	w.lastToken++
	w.attempt = &Attempt{
		Token:         w.lastToken,
		SourceID:      sourceID,
		Kind:          kind,
		StartedAt:     now,
		StartDeadline: now.Add(w.cfg.StartTimeout),
	}
	w.suspendedAt = time.Time{}
	return w.lastToken
}

// Cancel supersedes the current attempt without starting a new one.
func (w *Watchdog) Cancel() {
	w.lastToken++
	w.attempt = nil
	w.suspendedAt = time.Time{}
}

func (w *Watchdog) live(token uint64) *Attempt {
	if w.attempt == nil || w.attempt.Token != token || w.attempt.Failed {
		return nil
	}
	return w.attempt
}

// Progress records a progress signal. It returns applied=false for stale tokens and
// first=true the first time the attempt shows progress.
func (w *Watchdog) Progress(token uint64, now time.Time) (applied, first bool) {
	a := w.live(token)
	if a == nil {
		return false, false
	}
	first = !a.StartedOK
	a.StartedOK = true
	a.StallCount = 0
	a.StartDeadline = time.Time{}
	a.StallDeadline = time.Time{}
	a.StallReason = ""
	a.LastProgress = now
	return true, first
}

// Stall records a stall signal. Reaching MaxStalls fails the attempt immediately.
func (w *Watchdog) Stall(token uint64, reason string, now time.Time) (Failure, bool) {
	a := w.live(token)
	if a == nil {
		return Failure{}, false
	}
	reason = sanitizeReason(reason)
	a.StallCount++
	if a.StallCount >= w.cfg.MaxStalls {
		return w.fail(a, ClassStallLimit, "stall_limit_"+reason)
	}
	base := a.LastProgress
	if base.IsZero() {
		base = now
	}
	a.StallDeadline = base.Add(w.cfg.StallTimeout)
	a.StallReason = reason
	return Failure{}, false
}

// Error records a fatal player error.
func (w *Watchdog) Error(token uint64, reason string, now time.Time) (Failure, bool) {
	a := w.live(token)
	if a == nil {
		return Failure{}, false
	}
	return w.fail(a, ClassError, fmt.Sprintf("%s_error_%s", a.Kind, sanitizeReason(reason)))
}

// FailNow fails the current attempt with reason, bypassing deadlines.
func (w *Watchdog) FailNow(token uint64, class FailureClass, reason string) (Failure, bool) {
	a := w.live(token)
	if a == nil {
		return Failure{}, false
	}
	return w.fail(a, class, reason)
}

// Check fires whichever armed deadline has passed.
func (w *Watchdog) Check(now time.Time) (Failure, bool) {
	a := w.attempt
	if a == nil || a.Failed || !w.suspendedAt.IsZero() {
		return Failure{}, false
	}
	if !a.StartDeadline.IsZero() && !now.Before(a.StartDeadline) {
		a.StartDeadline = time.Time{}
		return w.fail(a, ClassStartTimeout, string(a.Kind)+"_start_timeout")
	}
	if !a.StallDeadline.IsZero() && !now.Before(a.StallDeadline) {
		a.StallDeadline = time.Time{}
		return w.fail(a, ClassStallTimeout, "stall_timeout_"+a.StallReason)
	}
	return Failure{}, false
}

// fail marks the attempt failed. With auto-skip off the failure is only counted.
func (w *Watchdog) fail(a *Attempt, class FailureClass, reason string) (Failure, bool) {
	w.lastReason = reason
	if !w.cfg.AutoSkip {
		w.wouldFail++
		a.StartDeadline = time.Time{}
		a.StallDeadline = time.Time{}
		a.StallCount = 0
		return Failure{}, false
	}
	a.Failed = true
	a.StartDeadline = time.Time{}
	a.StallDeadline = time.Time{}
	return Failure{Token: a.Token, SourceID: a.SourceID, Kind: a.Kind, Class: class, Reason: reason}, true
}

// Suspend freezes the deadlines while playback is paused.
func (w *Watchdog) Suspend(now time.Time) {
	if w.attempt == nil || !w.suspendedAt.IsZero() {
		return
	}
	w.suspendedAt = now
}

// Resume shifts the deadlines by the time spent suspended.
func (w *Watchdog) Resume(now time.Time) {
	if w.suspendedAt.IsZero() {
		return
	}
	paused := now.Sub(w.suspendedAt)
	w.suspendedAt = time.Time{}
	if w.attempt == nil || paused <= 0 {
		return
	}
	a := w.attempt
	if !a.StartDeadline.IsZero() {
		a.StartDeadline = a.StartDeadline.Add(paused)
	}
	if !a.StallDeadline.IsZero() {
		a.StallDeadline = a.StallDeadline.Add(paused)
	}
	if !a.LastProgress.IsZero() {
		a.LastProgress = a.LastProgress.Add(paused)
	}
}

// Status returns diagnostics for the snapshot.
func (w *Watchdog) Status(now time.Time) Status {
	st := Status{
		Token:      w.lastToken,
		Suspended:  !w.suspendedAt.IsZero(),
		WouldFail:  w.wouldFail,
		LastReason: w.lastReason,
	}
	if a := w.attempt; a != nil && a.Token == w.lastToken {
		st.SourceID = a.SourceID
		st.StartedOK = a.StartedOK
		st.StallCount = a.StallCount
		st.StartPending = !a.StartDeadline.IsZero()
		st.StallPending = !a.StallDeadline.IsZero()
		st.Failed = a.Failed
		if !a.LastProgress.IsZero() {
			st.SinceProgress = now.Sub(a.LastProgress).Seconds()
		}
	}
	return st
}

func sanitizeReason(reason string) string {
	reason = strings.ToLower(strings.TrimSpace(reason))
	if reason == "" {
		return reasonUnknown
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, reason)
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
