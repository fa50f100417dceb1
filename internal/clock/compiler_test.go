/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/camrotator/internal/models"
	"github.com/friendsincode/camrotator/internal/rotation"
	"github.com/friendsincode/camrotator/internal/vote"
)

func streams(ids ...string) []models.Source {
	out := make([]models.Source, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Source{ID: id, Kind: models.SourceKindSegmentedStream})
	}
	return out
}

func noVoteConfig() rotation.Config {
	cfg := rotation.DefaultConfig()
	cfg.Vote.Enabled = false
	return cfg
}

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := NewManual(start)
	if !clk.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", clk.Now(), start)
	}
	if got := clk.Advance(90 * time.Second); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Advance() = %v", got)
	}
	if !clk.Now().Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v", clk.Now())
	}
}

func TestCompileHealthyRotation(t *testing.T) {
	planner := NewPlanner(noVoteConfig(), streams("A", "B", "C"), zerolog.Nop())
	report, err := planner.Compile(Options{Horizon: 20 * time.Minute, Seed: 1})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	want := []string{"A", "B", "C", "A"}
	if len(report.Segments) != len(want) {
		t.Fatalf("segments = %d, want %d: %+v", len(report.Segments), len(want), report.Segments)
	}
	for i, id := range want {
		seg := report.Segments[i]
		if seg.SourceID != id {
			t.Errorf("segment %d source = %q, want %q", i, seg.SourceID, id)
		}
		if i < len(want)-1 && (seg.Duration != 300*time.Second || seg.EndReason != "timer") {
			t.Errorf("segment %d = %v ended by %q, want 5m by timer", i, seg.Duration, seg.EndReason)
		}
	}
	if last := report.Segments[len(want)-1]; last.EndReason != "open" {
		t.Errorf("last segment reason = %q, want open", last.EndReason)
	}
	if len(report.Failures) != 0 || len(report.Votes) != 0 {
		t.Errorf("unexpected failures %d votes %d", len(report.Failures), len(report.Votes))
	}
}

func TestCompileBrokenSourceCoolsDown(t *testing.T) {
	planner := NewPlanner(noVoteConfig(), streams("A", "B", "C"), zerolog.Nop())
	report, err := planner.Compile(Options{Horizon: 20 * time.Minute, Broken: []string{"B"}})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if len(report.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(report.Failures))
	}
	if f := report.Failures[0]; f.SourceID != "B" || f.Reason != "segmented_stream_error_simulated" || f.FailCount != 1 {
		t.Errorf("failure = %+v", f)
	}

	if len(report.Segments) < 3 {
		t.Fatalf("segments = %+v", report.Segments)
	}
	b := report.Segments[1]
	if b.SourceID != "B" || b.EndReason != rotation.ReasonHealth {
		t.Errorf("segment 1 = %+v, want B ended by health_failure", b)
	}
	if b.Duration > 5*time.Second {
		t.Errorf("broken source stayed on air %v", b.Duration)
	}
	for _, seg := range report.Segments[2:] {
		if seg.SourceID == "B" {
			t.Errorf("B back in rotation at %v while cooling down", seg.StartsAt)
		}
	}
}

func TestCompileStayVotesHoldSource(t *testing.T) {
	planner := NewPlanner(rotation.DefaultConfig(), streams("A", "B"), zerolog.Nop())
	report, err := planner.Compile(Options{Horizon: 15 * time.Minute, Voters: 3, StayShare: 1})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(report.Votes) < 2 {
		t.Fatalf("votes = %d, want at least 2", len(report.Votes))
	}
	for _, v := range report.Votes {
		if v.Decision != vote.DecisionStay || v.Tally.Stay != 3 {
			t.Errorf("vote = %+v, want stay 3-0", v)
		}
	}
	if len(report.Segments) != 1 || report.Segments[0].SourceID != "A" {
		t.Errorf("segments = %+v, want A held for the whole run", report.Segments)
	}
}

func TestCompileUnattendedVotesAdvance(t *testing.T) {
	planner := NewPlanner(rotation.DefaultConfig(), streams("A", "B"), zerolog.Nop())
	report, err := planner.Compile(Options{Horizon: 10 * time.Minute})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(report.Votes) == 0 {
		t.Fatal("no votes resolved")
	}
	if v := report.Votes[0]; v.Decision != vote.DecisionAdvance {
		t.Errorf("empty vote decision = %q, want advance", v.Decision)
	}
	if seg := report.Segments[0]; seg.EndReason != rotation.ReasonVote || seg.Duration >= 300*time.Second {
		t.Errorf("first segment = %+v, want ended early by vote", seg)
	}
}

func TestCompileEmptyCatalog(t *testing.T) {
	report, err := NewPlanner(noVoteConfig(), nil, zerolog.Nop()).Compile(Options{Horizon: time.Minute})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(report.Segments) != 0 {
		t.Errorf("segments = %+v, want none", report.Segments)
	}
}

func TestCompileRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"failure rate", Options{FailureRate: 1.5}},
		{"stay share", Options{StayShare: -0.1}},
		{"voters", Options{Voters: -1}},
	}
	planner := NewPlanner(noVoteConfig(), streams("A"), zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := planner.Compile(tt.opts); !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("Compile() error = %v, want ErrInvalidOptions", err)
			}
		})
	}
}
