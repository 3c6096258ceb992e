// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_media

import (
	"sync"

	internal_type "github.com/vettaai/api/interview-api/internal/type"
)

const trackChannelSize = 256

// Track is the buffered MediaTrack used by every producer in the
// service (media channel, mixer, test fakes). Push is non-blocking:
// when the single consumer falls behind, frames are dropped and
// counted rather than stalling the capture path.
type Track struct {
	id    string
	kind  internal_type.TrackKind
	codec string

	mu      sync.Mutex
	frames  chan internal_type.Frame
	enabled bool
	stopped bool
	dropped uint64
}

func NewTrack(id string, kind internal_type.TrackKind, codec string) *Track {
	return &Track{
		id:      id,
		kind:    kind,
		codec:   codec,
		frames:  make(chan internal_type.Frame, trackChannelSize),
		enabled: true,
	}
}

func (t *Track) ID() string                    { return t.id }
func (t *Track) Kind() internal_type.TrackKind { return t.kind }
func (t *Track) Codec() string                 { return t.codec }

func (t *Track) Frames() <-chan internal_type.Frame { return t.frames }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// Push delivers a frame to the consumer. Frames pushed while the track
// is disabled or after Stop are silently discarded.
func (t *Track) Push(frame internal_type.Frame) {
	t.mu.Lock()
	if t.stopped || !t.enabled {
		t.mu.Unlock()
		return
	}
	select {
	case t.frames <- frame:
	default:
		t.dropped++
	}
	t.mu.Unlock()
}

// Stop closes the frame channel exactly once and marks the track dead.
func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.frames)
}

func (t *Track) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

// Dropped reports how many frames were discarded due to consumer lag.
func (t *Track) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}
