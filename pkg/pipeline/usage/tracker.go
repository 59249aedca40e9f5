// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package usage provides the per-job token-usage accumulator shared by
// processors that call token-billed AI providers.
package usage

import "sync"

// Key identifies one accumulator entry.
type Key struct {
	Model     string
	Processor string
}

// Stat is the accumulated usage of one (model, processor) pair.
type Stat struct {
	PromptTokens     int `json:"promptTokens"`
	CandidatesTokens int `json:"candidatesTokens"`
	TotalTokens      int `json:"totalTokens"`
	CallCount        int `json:"callCount"`
}

// Entry is one snapshot row of the tracker.
type Entry struct {
	Key  Key
	Stat Stat
}

// Summary is an ordered snapshot plus running totals.
type Summary struct {
	Entries []Entry
	Totals  Stat
}

// Tracker accumulates token usage keyed by (model, processor). It is owned
// by the processor context and shared by reference; increments are
// serialised by a mutex.
type Tracker struct {
	mu      sync.Mutex
	order   []Key
	entries map[Key]*Stat
}

// NewTracker creates an empty tracker. Construction is cheap; one exists per
// job.
func NewTracker() *Tracker {
	return &Tracker{entries: map[Key]*Stat{}}
}

// Record adds one provider call's token counts to the accumulator.
func (t *Tracker) Record(model, processor string, promptTokens, candidatesTokens int) {
	key := Key{Model: model, Processor: processor}
	t.mu.Lock()
	defer t.mu.Unlock()
	stat, ok := t.entries[key]
	if !ok {
		stat = &Stat{}
		t.entries[key] = stat
		t.order = append(t.order, key)
	}
	stat.PromptTokens += promptTokens
	stat.CandidatesTokens += candidatesTokens
	stat.TotalTokens += promptTokens + candidatesTokens
	stat.CallCount++
}

// Reset empties the accumulator.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = nil
	t.entries = map[Key]*Stat{}
}

// Summary returns the entries in first-recorded order plus running totals.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	summary := Summary{}
	for _, key := range t.order {
		stat := t.entries[key]
		summary.Entries = append(summary.Entries, Entry{Key: key, Stat: *stat})
		summary.Totals.PromptTokens += stat.PromptTokens
		summary.Totals.CandidatesTokens += stat.CandidatesTokens
		summary.Totals.TotalTokens += stat.TotalTokens
		summary.Totals.CallCount += stat.CallCount
	}
	return summary
}
