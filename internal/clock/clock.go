/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package clock drives the rotation scheduler on simulated time and compiles the
// resulting timeline.
package clock

import (
	"sync"
	"time"
)

// Segment is one stretch of the timeline spent on a single source.
type Segment struct {
	SourceID string
	Kind     string
	StartsAt time.Time
	EndsAt   time.Time
	Duration time.Duration
	// EndReason is why the segment ended: timer, vote, health_failure or open when
	// the horizon cut it short.
	EndReason string
}

// Manual is a clock that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a clock stopped at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current simulated time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}
