/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package health

import (
	"sort"
	"time"
)

// MaxFailCount caps both the stored fail counter and the backoff multiplier.
const MaxFailCount = 12

const (
	DefaultCooldownBase = 30 * time.Minute
	DefaultCooldownCap  = 24 * time.Hour
)

// CooldownConfig sizes the failure penalty.
type CooldownConfig struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultCooldownConfig returns the stock penalty sizing.
func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{Base: DefaultCooldownBase, Cap: DefaultCooldownCap}
}

func (c CooldownConfig) normalized() CooldownConfig {
	if c.Base <= 0 {
		c.Base = DefaultCooldownBase
	}
	if c.Cap < c.Base {
		c.Cap = c.Base
	}
	return c
}

// Penalty is clamp(base*min(failCount,12), base, cap).
func Penalty(cfg CooldownConfig, failCount int) time.Duration {
	cfg = cfg.normalized()
	if failCount < 1 {
		failCount = 1
	}
	if failCount > MaxFailCount {
		failCount = MaxFailCount
	}
	d := cfg.Base * time.Duration(failCount)
	if d > cfg.Cap {
		d = cfg.Cap
	}
	return d
}

// CooldownEntry is the penalty state of one failing source.
type CooldownEntry struct {
	SourceID   string    `json:"source_id"`
	FailCount  int       `json:"fail_count"`
	Until      time.Time `json:"until"`
	LastReason string    `json:"last_reason"`
}

// FailoverCache tracks cooldowns for failed sources. Entries are never evicted by a
// background goroutine; Prune drops stale ones when the owner reads the cache.
type FailoverCache struct {
	cfg     CooldownConfig
	entries map[string]*CooldownEntry
}

// NewFailoverCache creates an empty cache.
func NewFailoverCache(cfg CooldownConfig) *FailoverCache {
	return &FailoverCache{
		cfg:     cfg.normalized(),
		entries: make(map[string]*CooldownEntry),
	}
}

// Config returns the penalty sizing in use.
func (c *FailoverCache) Config() CooldownConfig {
	return c.cfg
}

// RecordFailure refreshes the entry for id and returns it.
func (c *FailoverCache) RecordFailure(id, reason string, now time.Time) CooldownEntry {
	entry, ok := c.entries[id]
	if !ok {
		entry = &CooldownEntry{SourceID: id}
		c.entries[id] = entry
	}
	if entry.FailCount < MaxFailCount {
		entry.FailCount++
	}
	entry.Until = now.Add(Penalty(c.cfg, entry.FailCount))
	entry.LastReason = reason
	return *entry
}

// RecordSuccess ends the failure episode for id.
func (c *FailoverCache) RecordSuccess(id string) bool {
	if _, ok := c.entries[id]; !ok {
		return false
	}
	delete(c.entries, id)
	return true
}

// CoolingDown reports whether id is still serving its penalty. It does not mutate.
func (c *FailoverCache) CoolingDown(id string, now time.Time) bool {
	entry, ok := c.entries[id]
	return ok && now.Before(entry.Until)
}

// Lookup returns the entry for id, expired or not.
func (c *FailoverCache) Lookup(id string) (CooldownEntry, bool) {
	entry, ok := c.entries[id]
	if !ok {
		return CooldownEntry{}, false
	}
	return *entry, true
}

// Prune drops entries whose penalty ended more than one cap ago. An entry that merely
// expired keeps its fail count so a relapse within that window escalates the penalty.
func (c *FailoverCache) Prune(now time.Time) int {
	removed := 0
	for id, entry := range c.entries {
		if !now.Before(entry.Until.Add(c.cfg.Cap)) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Active counts entries still serving a penalty.
func (c *FailoverCache) Active(now time.Time) int {
	n := 0
	for _, entry := range c.entries {
		if now.Before(entry.Until) {
			n++
		}
	}
	return n
}

// NextExpiry returns the earliest penalty end after now.
func (c *FailoverCache) NextExpiry(now time.Time) (time.Time, bool) {
	var next time.Time
	for _, entry := range c.entries {
		if now.Before(entry.Until) && (next.IsZero() || entry.Until.Before(next)) {
			next = entry.Until
		}
	}
	return next, !next.IsZero()
}

// Entries returns a copy of every entry ordered by source id.
func (c *FailoverCache) Entries() []CooldownEntry {
	out := make([]CooldownEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Restore replaces the cache content, clamping counters into range.
func (c *FailoverCache) Restore(entries []CooldownEntry) {
	c.entries = make(map[string]*CooldownEntry, len(entries))
	for _, e := range entries {
		if e.SourceID == "" {
			continue
		}
		if e.FailCount < 1 {
			e.FailCount = 1
		}
		if e.FailCount > MaxFailCount {
			e.FailCount = MaxFailCount
		}
		entry := e
		c.entries[e.SourceID] = &entry
	}
}

// Clear removes every entry.
func (c *FailoverCache) Clear() {
	c.entries = make(map[string]*CooldownEntry)
}
