/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package vote

import "time"

const (
	DefaultWindow     = 60 * time.Second
	DefaultVoteAt     = 60 * time.Second
	DefaultLead       = 5 * time.Second
	DefaultStayLength = 300 * time.Second

	maxWindow       = 10 * time.Minute
	maxLead         = 2 * time.Minute
	maxUI           = 30 * time.Minute
	minStayLength   = 10 * time.Second
	maxStayLength   = 6 * time.Hour
	minManualWindow = 5 * time.Second
)

// Config is the operator-facing vote timing.
type Config struct {
	Enabled bool
	// Window is the length of the binding window.
	Window time.Duration
	// VoteAt is the time remaining in the round when the binding window closes.
	VoteAt time.Duration
	// Lead is the notice shown right before the binding window opens.
	Lead time.Duration
	// UI is the total early notice. Zero or less means Lead+Window (no pre phase).
	UI time.Duration
	// StayLength sizes the round restarted by a stay outcome.
	StayLength time.Duration
}

// DefaultConfig returns the stock timing.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Window:     DefaultWindow,
		VoteAt:     DefaultVoteAt,
		Lead:       DefaultLead,
		StayLength: DefaultStayLength,
	}
}

// Clamp bounds every field instead of rejecting it.
func (c Config) Clamp() Config {
	c.Window = clampDuration(c.Window, time.Second, maxWindow)
	c.VoteAt = clampDuration(c.VoteAt, time.Second, maxStayLength)
	c.Lead = clampDuration(c.Lead, 0, maxLead)
	c.UI = clampDuration(c.UI, 0, maxUI)
	c.StayLength = clampDuration(c.StayLength, minStayLength, maxStayLength)
	return c
}

// Timing is Config resolved against one round length.
type Timing struct {
	Round   time.Duration
	VoteAt  time.Duration
	Window  time.Duration
	Lead    time.Duration
	Pre     time.Duration
	UI      time.Duration
	Trigger time.Duration
	Viable  bool
}

// ResolveTiming fits cfg into a round. The binding window closes VoteAt before the
// end of the round and never exceeds VoteAt, so a vote always resolves before the
// round would time out. Lead and pre notice shrink until the trigger threshold fits.
func ResolveTiming(cfg Config, round time.Duration) Timing {
	cfg = cfg.Clamp()
	if round < 0 {
		round = 0
	}
	t := Timing{Round: round}

	t.VoteAt = minDuration(cfg.VoteAt, round)
	t.Window = minDuration(cfg.Window, t.VoteAt)
	t.Window = minDuration(t.Window, round-t.VoteAt)
	if t.Window <= 0 || t.VoteAt <= 0 {
		t.Window = 0
		return t
	}

	ui := cfg.UI
	if ui <= 0 {
		ui = cfg.Lead + t.Window
	}
	pre := ui - (cfg.Lead + t.Window)
	if pre < 0 {
		pre = 0
	}

	budget := round - t.VoteAt - t.Window
	t.Lead = minDuration(cfg.Lead, budget)
	t.Pre = minDuration(pre, budget-t.Lead)
	t.UI = t.Pre + t.Lead + t.Window
	t.Trigger = t.VoteAt + t.Window + t.Lead + t.Pre
	t.Viable = true
	return t
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
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
