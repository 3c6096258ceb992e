// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_recording

import (
	internal_type "github.com/vettaai/api/interview-api/internal/type"
)

// Muxer frames combined-stream media into container bytes. The
// recording session pumps decoded/encoded frames in and drains
// container segments out on a fixed interval; the segment bytes are
// opaque to everything downstream of the session.
//
// Implementations must be safe for concurrent writers: the session
// pumps audio and video from separate goroutines while the segment
// ticker drains.
type Muxer interface {
	WriteVideo(frame internal_type.Frame) error
	WriteAudio(frame internal_type.Frame) error
	// Segment returns the container bytes accumulated since the last
	// drain, nil when nothing accumulated.
	Segment() []byte
	// Close flushes the container trailer and returns any remaining
	// bytes. The muxer is unusable afterwards.
	Close() ([]byte, error)
}

// MuxerFactory builds the muxer for the chosen recording format.
type MuxerFactory func(format RecordingFormat) (Muxer, error)
