// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_events

import (
	"sync"
	"time"
)

// Event is one entry in the interview event log.
type Event struct {
	Name      string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// Log is the append-only interview event log. Accumulated for the
// whole session and flushed once into the proctoring payload at
// finalization. Entries are never mutated in place.
type Log struct {
	mu      sync.Mutex
	entries []Event
	clock   func() time.Time
}

func NewLog() *Log {
	return &Log{clock: time.Now}
}

// NewLogWithClock lets tests pin timestamps.
func NewLogWithClock(clock func() time.Time) *Log {
	return &Log{clock: clock}
}

func (l *Log) Append(name string, details string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Event{
		Name:      name,
		Timestamp: l.clock(),
		Details:   details,
	})
}

// Entries returns a snapshot copy in append order.
func (l *Log) Entries() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
