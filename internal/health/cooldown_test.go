/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package health

import (
	"testing"
	"time"
)

func TestPenaltyGrowsAndCaps(t *testing.T) {
	cfg := CooldownConfig{Base: 30 * time.Minute, Cap: 24 * time.Hour}

	prev := time.Duration(0)
	for n := 1; n <= 13; n++ {
		got := Penalty(cfg, n)
		if got < prev {
			t.Fatalf("Penalty(%d) = %v, smaller than Penalty(%d) = %v", n, got, n-1, prev)
		}
		prev = got
	}

	tests := []struct {
		failCount int
		want      time.Duration
	}{
		{0, 30 * time.Minute},
		{1, 30 * time.Minute},
		{2, 60 * time.Minute},
		{3, 90 * time.Minute},
		{12, 360 * time.Minute},
		{13, 360 * time.Minute},
		{100, 360 * time.Minute},
	}
	for _, tt := range tests {
		if got := Penalty(cfg, tt.failCount); got != tt.want {
			t.Errorf("Penalty(%d) = %v, want %v", tt.failCount, got, tt.want)
		}
	}

	small := CooldownConfig{Base: time.Minute, Cap: 5 * time.Minute}
	if got := Penalty(small, 9); got != 5*time.Minute {
		t.Errorf("Penalty capped = %v, want 5m", got)
	}
}

func TestFailoverCacheRecordFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewFailoverCache(CooldownConfig{Base: 30 * time.Minute, Cap: 24 * time.Hour})

	for n := 1; n <= 13; n++ {
		entry := c.RecordFailure("cam", "hls_start_timeout", now)
		wantCount := n
		if wantCount > MaxFailCount {
			wantCount = MaxFailCount
		}
		if entry.FailCount != wantCount {
			t.Fatalf("failure %d: FailCount = %d, want %d", n, entry.FailCount, wantCount)
		}
		want := now.Add(time.Duration(wantCount) * 30 * time.Minute)
		if !entry.Until.Equal(want) {
			t.Fatalf("failure %d: Until = %v, want %v", n, entry.Until, want)
		}
	}

	if !c.CoolingDown("cam", now.Add(time.Minute)) {
		t.Fatal("expected cam cooling down")
	}
	if c.CoolingDown("cam", now.Add(6*time.Hour)) {
		t.Fatal("cooldown must end at Until")
	}
	if c.CoolingDown("other", now) {
		t.Fatal("unknown id must not be cooling down")
	}
}

func TestFailoverCacheEpisode(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewFailoverCache(CooldownConfig{Base: time.Minute, Cap: time.Hour})

	c.RecordFailure("cam", "x", now)
	// relapse after the first penalty expired keeps escalating
	entry := c.RecordFailure("cam", "y", now.Add(2*time.Minute))
	if entry.FailCount != 2 || entry.LastReason != "y" {
		t.Fatalf("relapse entry = %+v", entry)
	}

	if !c.RecordSuccess("cam") {
		t.Fatal("RecordSuccess should report a removed entry")
	}
	if _, ok := c.Lookup("cam"); ok {
		t.Fatal("success must end the episode")
	}
	if c.RecordSuccess("cam") {
		t.Fatal("second RecordSuccess should be a no-op")
	}
}

func TestFailoverCachePrune(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewFailoverCache(CooldownConfig{Base: time.Minute, Cap: 10 * time.Minute})
	c.RecordFailure("a", "x", now)
	c.RecordFailure("b", "x", now.Add(5*time.Minute))

	// a expired at +1m and is forgotten at +11m
	if n := c.Prune(now.Add(10 * time.Minute)); n != 0 {
		t.Fatalf("Prune early removed %d", n)
	}
	if n := c.Prune(now.Add(11 * time.Minute)); n != 1 {
		t.Fatalf("Prune removed %d, want 1", n)
	}
	if _, ok := c.Lookup("a"); ok {
		t.Fatal("a should be pruned")
	}
	if _, ok := c.Lookup("b"); !ok {
		t.Fatal("b should remain")
	}
	if got := c.Active(now.Add(5 * time.Minute)); got != 1 {
		t.Fatalf("Active = %d, want 1", got)
	}
}

func TestFailoverCacheNextExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewFailoverCache(CooldownConfig{Base: time.Minute, Cap: 10 * time.Minute})
	if _, ok := c.NextExpiry(now); ok {
		t.Fatal("empty cache has an expiry")
	}
	c.RecordFailure("a", "x", now)
	c.RecordFailure("b", "x", now.Add(30*time.Second))

	tests := []struct {
		at   time.Duration
		want time.Duration
		ok   bool
	}{
		{0, time.Minute, true},
		{time.Minute, 90 * time.Second, true},
		{90 * time.Second, 0, false},
	}
	for _, tt := range tests {
		got, ok := c.NextExpiry(now.Add(tt.at))
		if ok != tt.ok || (ok && !got.Equal(now.Add(tt.want))) {
			t.Errorf("NextExpiry(+%v) = %v,%v, want +%v,%v", tt.at, got.Sub(now), ok, tt.want, tt.ok)
		}
	}
}

func TestFailoverCacheRestore(t *testing.T) {
	c := NewFailoverCache(DefaultCooldownConfig())
	until := time.Now().Add(time.Hour)
	c.Restore([]CooldownEntry{
		{SourceID: "b", FailCount: 40, Until: until},
		{SourceID: "a", FailCount: 0, Until: until},
		{SourceID: ""},
	})

	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries len = %d, want 2", len(entries))
	}
	if entries[0].SourceID != "a" || entries[0].FailCount != 1 {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].SourceID != "b" || entries[1].FailCount != MaxFailCount {
		t.Errorf("entries[1] = %+v", entries[1])
	}
}
