/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package vote

import (
	"testing"
	"time"
)

func TestResolveTimingDefaults(t *testing.T) {
	cfg := Config{Enabled: true, Window: 60 * time.Second, VoteAt: 60 * time.Second, Lead: 5 * time.Second}
	got := ResolveTiming(cfg, 300*time.Second)

	if !got.Viable {
		t.Fatal("expected viable timing")
	}
	if got.Trigger != 125*time.Second {
		t.Errorf("Trigger = %v, want 125s", got.Trigger)
	}
	if got.Pre != 0 {
		t.Errorf("Pre = %v, want 0 when UI is unset", got.Pre)
	}
	if got.UI != 65*time.Second {
		t.Errorf("UI = %v, want 65s", got.UI)
	}
}

func TestResolveTimingPreAnnounce(t *testing.T) {
	cfg := Config{Window: 30 * time.Second, VoteAt: 40 * time.Second, Lead: 10 * time.Second, UI: 90 * time.Second}
	got := ResolveTiming(cfg, 600*time.Second)
	if got.Pre != 50*time.Second {
		t.Errorf("Pre = %v, want 50s", got.Pre)
	}
	if got.Trigger != 130*time.Second {
		t.Errorf("Trigger = %v, want 130s", got.Trigger)
	}
}

func TestResolveTimingFitsRound(t *testing.T) {
	rounds := []time.Duration{0, time.Second, 10 * time.Second, 45 * time.Second, 90 * time.Second, 121 * time.Second, 300 * time.Second, time.Hour}
	voteAts := []time.Duration{time.Second, 10 * time.Second, 60 * time.Second, 120 * time.Second, 400 * time.Second}
	windows := []time.Duration{time.Second, 30 * time.Second, 60 * time.Second, 300 * time.Second}

	for _, round := range rounds {
		for _, voteAt := range voteAts {
			for _, window := range windows {
				cfg := Config{Window: window, VoteAt: voteAt, Lead: 5 * time.Second, UI: 200 * time.Second}
				got := ResolveTiming(cfg, round)
				if got.Trigger > round {
					t.Fatalf("round=%v voteAt=%v window=%v: Trigger %v exceeds round", round, voteAt, window, got.Trigger)
				}
				if got.Window > got.VoteAt {
					t.Fatalf("round=%v voteAt=%v window=%v: Window %v exceeds VoteAt %v", round, voteAt, window, got.Window, got.VoteAt)
				}
				if voteAt <= round && got.VoteAt != voteAt {
					t.Fatalf("round=%v: VoteAt %v changed to %v", round, voteAt, got.VoteAt)
				}
				if got.Viable && got.Window <= 0 {
					t.Fatalf("viable timing with empty window: %+v", got)
				}
			}
		}
	}
}

func TestResolveTimingShortRoundNotViable(t *testing.T) {
	got := ResolveTiming(Config{Window: 60 * time.Second, VoteAt: 60 * time.Second}, 50*time.Second)
	if got.Viable {
		t.Fatalf("expected non-viable timing, got %+v", got)
	}
}

func TestConfigClamp(t *testing.T) {
	c := Config{Window: -1, VoteAt: 0, Lead: -5 * time.Second, UI: -time.Second, StayLength: time.Second}.Clamp()
	if c.Window != time.Second || c.VoteAt != time.Second || c.Lead != 0 || c.UI != 0 || c.StayLength != minStayLength {
		t.Fatalf("Clamp() = %+v", c)
	}
}
