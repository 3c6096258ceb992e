// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_audio

// AudioConfig describes a PCM stream layout.
type AudioConfig struct {
	SampleRate uint32
	Channels   uint8
}

// VETTA_INTERNAL_AUDIO_CONFIG is the in-process PCM layout. Everything
// between the media channel and the speech/recording layers is LINEAR16
// mono 16kHz; channels convert at their own edges.
var VETTA_INTERNAL_AUDIO_CONFIG = AudioConfig{
	SampleRate: 16000,
	Channels:   1,
}

// WEBRTC_AUDIO_CONFIG is the layout on the wire: Opus over WebRTC is
// always clocked at 48kHz.
var WEBRTC_AUDIO_CONFIG = AudioConfig{
	SampleRate: 48000,
	Channels:   1,
}

const (
	// BytesPerSample for LINEAR16.
	BytesPerSample = 2
	// BitsPerSample for LINEAR16.
	BitsPerSample = 16
)

// BytesPerSecond returns the PCM byte rate of cfg.
func BytesPerSecond(cfg AudioConfig) int {
	return int(cfg.SampleRate) * int(cfg.Channels) * BytesPerSample
}
