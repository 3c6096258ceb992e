// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_type

import (
	"sync"
)

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// MediaTrack is a single-consumer stream of media frames: raw PCM for
// audio tracks, encoded codec frames for video tracks. Frames() is
// closed when the track stops; producers must never write after Stop.
type MediaTrack interface {
	ID() string
	Kind() TrackKind
	// Codec names the payload carried by this track ("pcm16", "vp8",
	// "opus"). Format selection reads it through the support predicate.
	Codec() string
	Frames() <-chan Frame
	// Enabled toggles delivery without stopping the producer. A disabled
	// track keeps its device lock alive but drops frames - used for
	// display video, which must stay live for display audio to flow.
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
	Live() bool
}

// Frame is one media payload placed on the track timeline.
// TimestampMS is relative to track start.
type Frame struct {
	Data        []byte
	TimestampMS int64
	// Keyframe is meaningful for video payloads only.
	Keyframe bool
}

// MediaStream groups tracks that share one lifetime. All constituent
// tracks stop together on Teardown.
type MediaStream struct {
	mu     sync.Mutex
	tracks []MediaTrack
}

func NewMediaStream(tracks ...MediaTrack) *MediaStream {
	return &MediaStream{tracks: tracks}
}

func (s *MediaStream) AddTrack(t MediaTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t)
}

func (s *MediaStream) Tracks() []MediaTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MediaTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *MediaStream) AudioTracks() []MediaTrack {
	return s.tracksOfKind(TrackKindAudio)
}

func (s *MediaStream) VideoTracks() []MediaTrack {
	return s.tracksOfKind(TrackKindVideo)
}

func (s *MediaStream) tracksOfKind(kind TrackKind) []MediaTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []MediaTrack
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// Teardown stops every track. Safe to call more than once.
func (s *MediaStream) Teardown() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// Live reports whether at least one track is still producing.
func (s *MediaStream) Live() bool {
	for _, t := range s.Tracks() {
		if t.Live() {
			return true
		}
	}
	return false
}
