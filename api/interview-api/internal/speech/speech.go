// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_speech

import "context"

// Transcript is one recognition result. Err carries a recoverable
// recognition failure instead of text.
type Transcript struct {
	Text       string
	Confidence float64
	IsFinal    bool
	Err        error
}

// SpeechToText is a push-audio continuous recognizer. Callers write
// 16kHz 16-bit mono PCM and read transcripts from Results; the channel
// stays open across Start/Stop cycles until Close.
type SpeechToText interface {
	Name() string
	Initialize() error
	Start(ctx context.Context) error
	Stop() error
	WriteAudio(ctx context.Context, pcm []byte) error
	Results() <-chan Transcript
	Close(ctx context.Context) error
}

// TextToSpeech synthesizes a question into 16kHz 16-bit mono PCM for
// playback to the candidate and for the recording's system audio lane.
type TextToSpeech interface {
	Name() string
	Initialize() error
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Close(ctx context.Context) error
}
